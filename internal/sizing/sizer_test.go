package sizing

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/config"
	"github.com/dyike/TradeFuseGo/internal/models"
)

var btc = models.Pair{Base: "BTC", Quote: "USDT"}

type fakeHistory struct {
	prices []float64
	err    error
}

func (f *fakeHistory) History(context.Context, models.Pair, int) ([]float64, error) {
	return f.prices, f.err
}

func sizingConfig() config.SizingConfig {
	return config.SizingConfig{
		Strategy:             "confidence",
		ConfidenceMap:        map[string]float64{"50": 0.05, "70": 0.10, "90": 0.25},
		MinSize:              0.01,
		MaxSize:              0.25,
		DefaultSize:          0.05,
		RiskPerTrade:         0.01,
		MaxVolatility:        0.10,
		VolatilityMultiplier: 2.0,
		ConfidenceWeight:     0.7,
		VolatilityWeight:     0.3,
		VolatilityLookback:   30,
	}
}

func newTestSizer(t *testing.T, cfg config.SizingConfig, history HistorySource) *Sizer {
	t.Helper()
	s, err := NewSizer(cfg, history, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestNewSizerRejectsBadCurveKey(t *testing.T) {
	cfg := sizingConfig()
	cfg.ConfidenceMap = map[string]float64{"high": 0.2}
	_, err := NewSizer(cfg, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestConfidenceInterpolation(t *testing.T) {
	s := newTestSizer(t, sizingConfig(), nil)
	vol := 0.05

	cases := []struct {
		confidence float64
		want       float64
	}{
		{50, 0.05},
		{70, 0.10},
		{90, 0.25},
		{60, 0.075},  // midway between the 50 and 70 nodes
		{80, 0.175},  // midway between the 70 and 90 nodes
		{30, 0.05},   // clamped at the curve's low edge
		{100, 0.25},  // clamped at the high edge
		{75, 0.1375}, // quarter of the way from 70 to 90
	}
	for _, tc := range cases {
		res := s.Size(context.Background(), btc, tc.confidence, &vol)
		assert.InDelta(t, tc.want, res.ConfidenceFactor, 1e-9, "confidence %.0f", tc.confidence)
	}
}

func TestConfidenceStrategyUsesOnlyConfidence(t *testing.T) {
	s := newTestSizer(t, sizingConfig(), nil)
	vol := 0.09

	res := s.Size(context.Background(), btc, 70, &vol)
	assert.InDelta(t, 0.10, res.Fraction, 1e-9)
}

func TestEmptyCurveFallsBackToDefault(t *testing.T) {
	cfg := sizingConfig()
	cfg.ConfidenceMap = nil
	s := newTestSizer(t, cfg, nil)
	vol := 0.05

	res := s.Size(context.Background(), btc, 85, &vol)
	assert.InDelta(t, cfg.DefaultSize, res.ConfidenceFactor, 1e-9)
}

func TestVolatilityStrategyShrinksWithVolatility(t *testing.T) {
	cfg := sizingConfig()
	cfg.Strategy = "volatility"
	s := newTestSizer(t, cfg, nil)

	lowVol, highVol := 0.02, 0.08
	low := s.Size(context.Background(), btc, 70, &lowVol)
	high := s.Size(context.Background(), btc, 70, &highVol)

	// risk_per_trade / (vol * multiplier)
	assert.InDelta(t, 0.01/(0.02*2), low.Fraction, 1e-9)
	assert.InDelta(t, 0.01/(0.08*2), high.Fraction, 1e-9)
	assert.Greater(t, low.Fraction, high.Fraction)
}

func TestVolatilityIsClampedBeforeUse(t *testing.T) {
	cfg := sizingConfig()
	cfg.Strategy = "volatility"
	cfg.MaxSize = 10
	s := newTestSizer(t, cfg, nil)

	tiny, huge := 0.000001, 5.0
	floorRes := s.Size(context.Background(), btc, 70, &tiny)
	capRes := s.Size(context.Background(), btc, 70, &huge)

	assert.InDelta(t, 0.01/(0.001*2), floorRes.VolatilityFactor, 1e-9)
	assert.InDelta(t, 0.01/(0.10*2), capRes.VolatilityFactor, 1e-9)
}

func TestCombinedStrategyWeighsBothFactors(t *testing.T) {
	cfg := sizingConfig()
	cfg.Strategy = "combined"
	s := newTestSizer(t, cfg, nil)
	vol := 0.05

	res := s.Size(context.Background(), btc, 70, &vol)
	wantVol := 0.01 / (0.05 * 2)
	want := 0.7*0.10 + 0.3*wantVol
	assert.InDelta(t, want, res.Fraction, 1e-9)
}

func TestFractionClampedToBounds(t *testing.T) {
	cfg := sizingConfig()
	cfg.Strategy = "volatility"
	s := newTestSizer(t, cfg, nil)

	// Very low volatility would size far above MaxSize.
	vol := 0.002
	res := s.Size(context.Background(), btc, 70, &vol)
	assert.InDelta(t, cfg.MaxSize, res.Fraction, 1e-9)

	cfg.Strategy = "confidence"
	cfg.ConfidenceMap = map[string]float64{"50": 0.001}
	s = newTestSizer(t, cfg, nil)
	res = s.Size(context.Background(), btc, 50, &vol)
	assert.InDelta(t, cfg.MinSize, res.Fraction, 1e-9)
}

func TestEstimatesVolatilityFromHistory(t *testing.T) {
	prices := []float64{100, 102, 101, 103, 105, 104, 106, 108}
	s := newTestSizer(t, sizingConfig(), &fakeHistory{prices: prices})

	res := s.Size(context.Background(), btc, 70, nil)
	require.NotNil(t, res.Volatility)

	want, ok := LogReturnVolatility(prices)
	require.True(t, ok)
	assert.InDelta(t, want, *res.Volatility, 1e-12)
}

func TestHistoryErrorFallsBackToDefault(t *testing.T) {
	cfg := sizingConfig()
	cfg.Strategy = "volatility"
	s := newTestSizer(t, cfg, &fakeHistory{err: errors.New("feed down")})

	res := s.Size(context.Background(), btc, 70, nil)
	assert.Nil(t, res.Volatility)
	assert.InDelta(t, cfg.DefaultSize, res.VolatilityFactor, 1e-9)
}

func TestThinHistoryFallsBackToDefault(t *testing.T) {
	cfg := sizingConfig()
	cfg.Strategy = "volatility"
	s := newTestSizer(t, cfg, &fakeHistory{prices: []float64{100, 101}})

	res := s.Size(context.Background(), btc, 70, nil)
	assert.Nil(t, res.Volatility)
	assert.InDelta(t, cfg.DefaultSize, res.VolatilityFactor, 1e-9)
}

func TestLogReturnVolatility(t *testing.T) {
	_, ok := LogReturnVolatility(nil)
	assert.False(t, ok)
	_, ok = LogReturnVolatility([]float64{100, 101})
	assert.False(t, ok)

	// A constant series has zero volatility.
	v, ok := LogReturnVolatility([]float64{100, 100, 100, 100})
	require.True(t, ok)
	assert.Zero(t, v)

	// Alternating +1%/-1% style moves: verify against a hand computation.
	prices := []float64{100, 101, 100, 101, 100}
	v, ok = LogReturnVolatility(prices)
	require.True(t, ok)

	r := math.Log(101.0 / 100.0)
	// returns are +r, -r, +r, -r with mean 0; sample variance = 4r^2/3.
	want := math.Sqrt(4 * r * r / 3)
	assert.InDelta(t, want, v, 1e-12)

	// Non-positive prices are skipped, not fatal.
	v2, ok := LogReturnVolatility([]float64{100, 0, 100, 101, 100, 101, 100})
	require.True(t, ok)
	assert.Greater(t, v2, 0.0)
}
