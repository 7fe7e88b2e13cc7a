package risk

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/config"
	"github.com/dyike/TradeFuseGo/internal/models"
)

type fakePortfolio struct {
	value     decimal.Decimal
	openCount int
	openPairs map[models.Pair]bool
}

func (f *fakePortfolio) PortfolioValue() decimal.Decimal { return f.value }
func (f *fakePortfolio) OpenCount() int                  { return f.openCount }
func (f *fakePortfolio) HasOpenPair(pair models.Pair) bool {
	return f.openPairs[pair]
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		Enabled:              true,
		MaxPositionSizePct:   25,
		MinConfidence:        40,
		MaxConfidence:        98,
		MaxVolatility:        0.12,
		MaxConcurrent:        5,
		MinTradeIntervalSecs: 300,
		MaxTradesPerDay:      10,
	}
}

func proposal() models.TradeProposal {
	return models.TradeProposal{
		Pair:       models.Pair{Base: "BTC", Quote: "USDT"},
		Action:     models.ActionBuy,
		Notional:   decimal.NewFromInt(1000),
		Price:      decimal.NewFromInt(50000),
		Confidence: 80,
	}
}

func book() *fakePortfolio {
	return &fakePortfolio{
		value:     decimal.NewFromInt(10000),
		openPairs: map[models.Pair]bool{},
	}
}

func TestGateDisabledApprovesEverything(t *testing.T) {
	cfg := testRiskConfig()
	cfg.Enabled = false
	gate := NewGate(cfg, book(), zap.NewNop())

	p := proposal()
	p.Confidence = 1
	p.Notional = decimal.NewFromInt(999999)

	verdict := gate.Evaluate(p)
	assert.True(t, verdict.Approved)
}

func TestGateApprovesCleanProposal(t *testing.T) {
	gate := NewGate(testRiskConfig(), book(), zap.NewNop())

	verdict := gate.Evaluate(proposal())
	require.True(t, verdict.Approved)
	assert.False(t, gate.LastAccepted().IsZero())
	assert.Equal(t, 1, gate.AcceptedToday())
}

func TestGateAggregatesAllFailures(t *testing.T) {
	gate := NewGate(testRiskConfig(), book(), zap.NewNop())

	p := proposal()
	p.Notional = decimal.NewFromInt(5000) // 50% of the book, ceiling is 25%
	p.Confidence = 20                     // below the 40 minimum
	vol := 0.5
	p.Volatility = &vol // above the 0.12 ceiling

	verdict := gate.Evaluate(p)
	require.False(t, verdict.Approved)
	assert.Contains(t, verdict.Reason, "position size")
	assert.Contains(t, verdict.Reason, "confidence 20.0 below minimum")
	assert.Contains(t, verdict.Reason, "volatility")
	assert.Equal(t, 3, strings.Count(verdict.Reason, ";")+1,
		"every failed check contributes one clause")
}

func TestGateImplausiblyHighConfidence(t *testing.T) {
	gate := NewGate(testRiskConfig(), book(), zap.NewNop())

	p := proposal()
	p.Confidence = 99.5

	verdict := gate.Evaluate(p)
	assert.False(t, verdict.Approved)
	assert.Contains(t, verdict.Reason, "implausible")
}

func TestGateSkipsVolatilityWhenUnknown(t *testing.T) {
	gate := NewGate(testRiskConfig(), book(), zap.NewNop())

	p := proposal()
	p.Volatility = nil

	assert.True(t, gate.Evaluate(p).Approved)
}

func TestGateConcurrentCeiling(t *testing.T) {
	b := book()
	b.openCount = 5
	gate := NewGate(testRiskConfig(), b, zap.NewNop())

	verdict := gate.Evaluate(proposal())
	assert.False(t, verdict.Approved)
	assert.Contains(t, verdict.Reason, "concurrent positions at ceiling")
}

func TestGateSamePairExemptFromConcurrentCeiling(t *testing.T) {
	b := book()
	b.openCount = 5
	b.openPairs[models.Pair{Base: "BTC", Quote: "USDT"}] = true
	gate := NewGate(testRiskConfig(), b, zap.NewNop())

	verdict := gate.Evaluate(proposal())
	assert.True(t, verdict.Approved, "adding to an open pair skips the ceiling")
}

func TestGateTradeFrequencyInterval(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gate := NewGate(testRiskConfig(), book(), zap.NewNop(),
		WithGateClock(func() time.Time { return current }))

	require.True(t, gate.Evaluate(proposal()).Approved)

	current = current.Add(2 * time.Minute)
	verdict := gate.Evaluate(proposal())
	require.False(t, verdict.Approved)
	assert.Contains(t, verdict.Reason, "minimum interval")

	current = current.Add(10 * time.Minute)
	assert.True(t, gate.Evaluate(proposal()).Approved)
}

func TestGateDailyTradeLimit(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MinTradeIntervalSecs = 0
	cfg.MaxTradesPerDay = 2

	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	gate := NewGate(cfg, book(), zap.NewNop(),
		WithGateClock(func() time.Time { return current }))

	require.True(t, gate.Evaluate(proposal()).Approved)
	current = current.Add(time.Hour)
	require.True(t, gate.Evaluate(proposal()).Approved)

	current = current.Add(time.Hour)
	verdict := gate.Evaluate(proposal())
	require.False(t, verdict.Approved)
	assert.Contains(t, verdict.Reason, "daily trade count")

	// A new UTC day resets the count.
	current = current.Add(24 * time.Hour)
	assert.True(t, gate.Evaluate(proposal()).Approved)
}

func TestGateRestrictedSymbols(t *testing.T) {
	cfg := testRiskConfig()
	cfg.RestrictedSymbols = []string{"doge", "SHIB/USDT"}
	gate := NewGate(cfg, book(), zap.NewNop())

	p := proposal()
	p.Pair = models.Pair{Base: "DOGE", Quote: "USDT"}
	verdict := gate.Evaluate(p)
	require.False(t, verdict.Approved)
	assert.Contains(t, verdict.Reason, "restricted")

	p.Pair = models.Pair{Base: "SHIB", Quote: "USDT"}
	assert.False(t, gate.Evaluate(p).Approved, "full pair form matches too")
}

func TestGateWritesRejectionLog(t *testing.T) {
	cfg := testRiskConfig()
	cfg.RejectionLogPath = filepath.Join(t.TempDir(), "rejections.jsonl")
	gate := NewGate(cfg, book(), zap.NewNop())

	p := proposal()
	p.Confidence = 10
	require.False(t, gate.Evaluate(p).Approved)
	require.False(t, gate.Evaluate(p).Approved)

	f, err := os.Open(cfg.RejectionLogPath)
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		assert.Equal(t, "BTC/USDT", rec["pair"])
		assert.Contains(t, rec["reason"], "confidence")
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestGateRejectionDoesNotTouchAcceptedState(t *testing.T) {
	gate := NewGate(testRiskConfig(), book(), zap.NewNop())

	p := proposal()
	p.Confidence = 10
	require.False(t, gate.Evaluate(p).Approved)

	assert.True(t, gate.LastAccepted().IsZero())
	assert.Zero(t, gate.AcceptedToday())
}
