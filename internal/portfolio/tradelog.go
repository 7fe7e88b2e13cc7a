package portfolio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/models"
)

const (
	recordOpen  = "open"
	recordClose = "close"
)

// TradeRecord is one line of the append-only trade log. Open and close
// records share a trade id.
type TradeRecord struct {
	Type       string           `json:"type"`
	TradeID    string           `json:"trade_id"`
	Symbol     string           `json:"symbol"`
	Action     models.Action    `json:"action"`
	Price      decimal.Decimal  `json:"price"`
	Size       decimal.Decimal  `json:"size"`
	CostBasis  decimal.Decimal  `json:"cost_basis,omitempty"`
	StopLoss   *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal `json:"take_profit,omitempty"`
	PnLPct     float64          `json:"pnl_percentage,omitempty"`
	ExitReason string           `json:"exit_reason,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// TradeLog is a JSONL file of open/close records. It is append-only; lines
// are never rewritten.
type TradeLog struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

func NewTradeLog(path string, logger *zap.Logger) *TradeLog {
	return &TradeLog{path: path, logger: logger.Named("tradelog")}
}

func (t *TradeLog) AppendOpen(pos *Position) error {
	return t.append(TradeRecord{
		Type:       recordOpen,
		TradeID:    pos.TradeID,
		Symbol:     pos.Pair.String(),
		Action:     pos.Action,
		Price:      pos.EntryPrice,
		Size:       pos.Size,
		CostBasis:  pos.CostBasis,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		Timestamp:  pos.OpenedAt,
	})
}

func (t *TradeLog) AppendClose(closed *ClosedTrade) error {
	return t.append(TradeRecord{
		Type:       recordClose,
		TradeID:    closed.TradeID,
		Symbol:     closed.Pair.String(),
		Action:     closed.Action,
		Price:      closed.ExitPrice,
		Size:       closed.Size,
		CostBasis:  closed.CostBasis,
		PnLPct:     closed.PnLPct,
		ExitReason: closed.ExitReason,
		Timestamp:  closed.ClosedAt,
	})
}

func (t *TradeLog) append(rec TradeRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal trade record: %w", err)
	}

	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open trade log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append trade record: %w", err)
	}
	return nil
}

// Load reads the full log, skipping malformed lines, and returns records
// ordered by timestamp with opens replayed before closes at equal times.
// An open with no matching close simply stays active after replay.
func (t *TradeLog) Load() ([]TradeRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open trade log: %w", err)
	}
	defer f.Close()

	var records []TradeRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec TradeRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			t.logger.Warn("skipping malformed trade log line", zap.Int("line", line), zap.Error(err))
			continue
		}
		if rec.Type != recordOpen && rec.Type != recordClose {
			t.logger.Warn("skipping trade log line with unknown type",
				zap.Int("line", line), zap.String("type", rec.Type))
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trade log: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.Before(records[j].Timestamp)
		}
		return records[i].Type == recordOpen && records[j].Type == recordClose
	})
	return records, nil
}
