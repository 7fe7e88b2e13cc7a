package signal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/TradeFuseGo/internal/models"
)

type stubHistory struct {
	prices []float64
	err    error
}

func (s stubHistory) History(context.Context, models.Pair, int) ([]float64, error) {
	return s.prices, s.err
}

var btc = models.Pair{Base: "BTC", Quote: "USDT"}

func TestMomentumAnalyst(t *testing.T) {
	cases := []struct {
		name       string
		prices     []float64
		action     string
		confidence float64
	}{
		{"uptrend buys", []float64{100, 100, 100, 102}, "BUY", 79.85},
		{"downtrend sells", []float64{100, 100, 100, 98}, "SELL", 80.15},
		{"flat holds", []float64{100, 100, 100}, "HOLD", 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewMomentumAnalyst(stubHistory{prices: tc.prices}, 20)
			report, err := a.Analyze(context.Background(), btc, "1h")
			require.NoError(t, err)
			assert.Equal(t, tc.action, report.Action)
			assert.InDelta(t, tc.confidence, report.Confidence, 0.01)
			assert.NotEmpty(t, report.Rationale)
		})
	}
}

func TestMomentumAnalystErrors(t *testing.T) {
	t.Run("history failure", func(t *testing.T) {
		a := NewMomentumAnalyst(stubHistory{err: errors.New("feed down")}, 20)
		_, err := a.Analyze(context.Background(), btc, "1h")
		assert.Error(t, err)
	})

	t.Run("too little history", func(t *testing.T) {
		a := NewMomentumAnalyst(stubHistory{prices: []float64{100}}, 20)
		_, err := a.Analyze(context.Background(), btc, "1h")
		assert.Error(t, err)
	})
}

func TestMeanReversionAnalyst(t *testing.T) {
	t.Run("stretched above mean sells", func(t *testing.T) {
		// mean 102, stdev sqrt(20), z ~ +1.79
		a := NewMeanReversionAnalyst(stubHistory{prices: []float64{100, 100, 100, 100, 110}}, 20)
		report, err := a.Analyze(context.Background(), btc, "1h")
		require.NoError(t, err)
		assert.Equal(t, "SELL", report.Action)
		assert.InDelta(t, 71.83, report.Confidence, 0.01)
	})

	t.Run("stretched below mean buys", func(t *testing.T) {
		a := NewMeanReversionAnalyst(stubHistory{prices: []float64{100, 100, 100, 100, 90}}, 20)
		report, err := a.Analyze(context.Background(), btc, "1h")
		require.NoError(t, err)
		assert.Equal(t, "BUY", report.Action)
	})

	t.Run("mild deviation holds", func(t *testing.T) {
		a := NewMeanReversionAnalyst(stubHistory{prices: []float64{100, 101, 99, 100, 100.5}}, 20)
		report, err := a.Analyze(context.Background(), btc, "1h")
		require.NoError(t, err)
		assert.Equal(t, "HOLD", report.Action)
	})

	t.Run("flat series holds at baseline", func(t *testing.T) {
		a := NewMeanReversionAnalyst(stubHistory{prices: []float64{100, 100, 100, 100}}, 20)
		report, err := a.Analyze(context.Background(), btc, "1h")
		require.NoError(t, err)
		assert.Equal(t, "HOLD", report.Action)
		assert.InDelta(t, 50, report.Confidence, 1e-9)
	})

	t.Run("too little history", func(t *testing.T) {
		a := NewMeanReversionAnalyst(stubHistory{prices: []float64{100, 101}}, 20)
		_, err := a.Analyze(context.Background(), btc, "1h")
		assert.Error(t, err)
	})
}
