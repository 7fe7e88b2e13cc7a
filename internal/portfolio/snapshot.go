package portfolio

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is a periodic full-state dump of the ledger, written for
// observability and cold-start inspection. A running process never reads
// it back; the trade log is the source of truth.
type Snapshot struct {
	TakenAt        time.Time       `json:"taken_at"`
	BaseCurrency   string          `json:"base_currency"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	Holdings       []Holding       `json:"holdings"`
	OpenPositions  []Position      `json:"open_positions"`
	ClosedTrades   int             `json:"closed_trades"`
}

// Snapshot captures the current state under the ledger lock.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	positions := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		positions = append(positions, *pos)
	}

	holdings := make([]Holding, 0, len(l.holdings))
	for asset, amount := range l.holdings {
		if !amount.IsZero() {
			holdings = append(holdings, Holding{Asset: asset, Amount: amount})
		}
	}

	return Snapshot{
		TakenAt:        l.now(),
		BaseCurrency:   l.baseCurrency,
		PortfolioValue: l.portfolioValueLocked(),
		Holdings:       holdings,
		OpenPositions:  positions,
		ClosedTrades:   len(l.closed),
	}
}

// WriteSnapshot atomically replaces the snapshot file.
func (l *Ledger) WriteSnapshot(path string) error {
	snap := l.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}
