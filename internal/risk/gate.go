// Package risk implements the hard risk gate. The gate runs an ordered
// battery of independent checks and aggregates every failure into a single
// verdict, so a rejection reason names everything wrong with the proposal,
// not just the first finding.
package risk

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/config"
	"github.com/dyike/TradeFuseGo/internal/models"
)

const historyLimit = 100

// PortfolioView is the read-only slice of the ledger the gate consults.
type PortfolioView interface {
	PortfolioValue() decimal.Decimal
	OpenCount() int
	HasOpenPair(pair models.Pair) bool
}

// acceptedTrade is one entry of the gate's bounded trade-history buffer.
type acceptedTrade struct {
	Pair       models.Pair     `json:"pair"`
	Action     models.Action   `json:"action"`
	Notional   decimal.Decimal `json:"notional"`
	AcceptedAt time.Time       `json:"accepted_at"`
}

// Gate evaluates proposals against the configured risk battery. The
// last-accepted timestamp and the history buffer are owned exclusively by
// the gate; nothing else reads or writes them.
type Gate struct {
	cfg       config.RiskConfig
	portfolio PortfolioView
	logger    *zap.Logger
	now       func() time.Time

	mu           sync.Mutex
	lastAccepted time.Time
	history      []acceptedTrade
}

type GateOption func(*Gate)

func WithGateClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

func NewGate(cfg config.RiskConfig, portfolio PortfolioView, logger *zap.Logger, opts ...GateOption) *Gate {
	g := &Gate{
		cfg:       cfg,
		portfolio: portfolio,
		logger:    logger.Named("risk"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate runs the full battery. All failures are joined into one reason.
// An approval updates the gate's last-accepted state; a rejection is
// appended to the rejection log.
func (g *Gate) Evaluate(proposal models.TradeProposal) models.RiskVerdict {
	if !g.cfg.Enabled {
		return models.RiskVerdict{Approved: true, Reason: "risk checks disabled"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var failures []string
	add := func(format string, args ...any) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	g.checkPositionSize(proposal, add)
	g.checkConfidenceBand(proposal, add)
	g.checkVolatility(proposal, add)
	g.checkConcurrentPositions(proposal, add)
	g.checkTradeFrequency(add)
	g.checkRestrictedSymbols(proposal, add)
	g.checkDrawdown(add)

	if len(failures) > 0 {
		verdict := models.Reject(strings.Join(failures, "; "))
		g.logRejection(proposal, verdict)
		return verdict
	}

	now := g.now()
	g.lastAccepted = now
	g.history = append(g.history, acceptedTrade{
		Pair:       proposal.Pair,
		Action:     proposal.Action,
		Notional:   proposal.Notional,
		AcceptedAt: now,
	})
	if len(g.history) > historyLimit {
		g.history = g.history[len(g.history)-historyLimit:]
	}

	return models.RiskVerdict{Approved: true}
}

func (g *Gate) checkPositionSize(p models.TradeProposal, add func(string, ...any)) {
	value := g.portfolio.PortfolioValue()
	if !value.IsPositive() {
		add("portfolio value is not positive")
		return
	}
	pct := p.Notional.Div(value).InexactFloat64() * 100
	if pct > g.cfg.MaxPositionSizePct {
		add("position size %.2f%% exceeds ceiling %.2f%%", pct, g.cfg.MaxPositionSizePct)
	}
}

func (g *Gate) checkConfidenceBand(p models.TradeProposal, add func(string, ...any)) {
	if p.Confidence < g.cfg.MinConfidence {
		add("confidence %.1f below minimum %.1f", p.Confidence, g.cfg.MinConfidence)
	}
	if p.Confidence > g.cfg.MaxConfidence {
		add("confidence %.1f above maximum %.1f (implausible signal)", p.Confidence, g.cfg.MaxConfidence)
	}
}

// checkVolatility skips, not fails, when no estimate is available.
func (g *Gate) checkVolatility(p models.TradeProposal, add func(string, ...any)) {
	if p.Volatility == nil {
		return
	}
	if *p.Volatility > g.cfg.MaxVolatility {
		add("volatility %.4f exceeds ceiling %.4f", *p.Volatility, g.cfg.MaxVolatility)
	}
}

// checkConcurrentPositions exempts proposals that add to an already-open
// pair; those never count against the ceiling.
func (g *Gate) checkConcurrentPositions(p models.TradeProposal, add func(string, ...any)) {
	if g.portfolio.HasOpenPair(p.Pair) {
		return
	}
	if g.portfolio.OpenCount() >= g.cfg.MaxConcurrent {
		add("concurrent positions at ceiling %d", g.cfg.MaxConcurrent)
	}
}

func (g *Gate) checkTradeFrequency(add func(string, ...any)) {
	now := g.now()
	minInterval := time.Duration(g.cfg.MinTradeIntervalSecs) * time.Second
	if !g.lastAccepted.IsZero() && minInterval > 0 {
		if since := now.Sub(g.lastAccepted); since < minInterval {
			add("only %s since last accepted trade, minimum interval %s",
				since.Round(time.Second), minInterval)
		}
	}

	if g.cfg.MaxTradesPerDay > 0 {
		day := now.UTC().Truncate(24 * time.Hour)
		count := 0
		for _, t := range g.history {
			if t.AcceptedAt.UTC().Truncate(24 * time.Hour).Equal(day) {
				count++
			}
		}
		if count >= g.cfg.MaxTradesPerDay {
			add("daily trade count %d at limit %d", count, g.cfg.MaxTradesPerDay)
		}
	}
}

func (g *Gate) checkRestrictedSymbols(p models.TradeProposal, add func(string, ...any)) {
	for _, restricted := range g.cfg.RestrictedSymbols {
		r := strings.ToUpper(restricted)
		if r == p.Pair.Base || r == p.Pair.String() {
			add("symbol %s is restricted", p.Pair)
			return
		}
	}
}

// checkDrawdown is an extension point. It always passes until a drawdown
// data source is wired in.
func (g *Gate) checkDrawdown(add func(string, ...any)) {
	_ = add
}

// LastAccepted returns when the gate most recently approved a trade.
func (g *Gate) LastAccepted() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastAccepted
}

// AcceptedToday returns the number of approvals on the current UTC day.
func (g *Gate) AcceptedToday() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	day := g.now().UTC().Truncate(24 * time.Hour)
	count := 0
	for _, t := range g.history {
		if t.AcceptedAt.UTC().Truncate(24 * time.Hour).Equal(day) {
			count++
		}
	}
	return count
}

type rejectionRecord struct {
	Pair       string    `json:"pair"`
	Action     string    `json:"action"`
	Notional   string    `json:"notional"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
	RejectedAt time.Time `json:"rejected_at"`
}

// logRejection appends the rejection to the append-only rejection log.
// Logging failure never blocks the verdict.
func (g *Gate) logRejection(p models.TradeProposal, verdict models.RiskVerdict) {
	g.logger.Info("proposal rejected",
		zap.String("pair", p.Pair.String()),
		zap.String("action", string(p.Action)),
		zap.String("reason", verdict.Reason))

	if g.cfg.RejectionLogPath == "" {
		return
	}
	rec := rejectionRecord{
		Pair:       p.Pair.String(),
		Action:     string(p.Action),
		Notional:   p.Notional.String(),
		Confidence: p.Confidence,
		Reason:     verdict.Reason,
		RejectedAt: g.now(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	f, err := os.OpenFile(g.cfg.RejectionLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		g.logger.Warn("rejection log open failed", zap.Error(err))
		return
	}
	defer f.Close()
	_, _ = f.Write(append(data, '\n'))
}
