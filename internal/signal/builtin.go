package signal

import (
	"context"
	"fmt"
	"math"

	"github.com/dyike/TradeFuseGo/internal/models"
)

// HistorySource supplies closing prices, newest last.
type HistorySource interface {
	History(ctx context.Context, pair models.Pair, n int) ([]float64, error)
}

// Built-in analysts for paper runs. Real deployments register external
// analysts; these two keep the loop meaningful without any upstream.

// MomentumAnalyst votes with the trend: price above its moving average is
// a BUY, below a SELL, and the distance sets the confidence.
type MomentumAnalyst struct {
	history HistorySource
	window  int
}

func NewMomentumAnalyst(history HistorySource, window int) *MomentumAnalyst {
	if window <= 0 {
		window = 20
	}
	return &MomentumAnalyst{history: history, window: window}
}

func (a *MomentumAnalyst) Name() string { return "momentum" }

func (a *MomentumAnalyst) Analyze(ctx context.Context, pair models.Pair, _ string) (*models.AnalystReport, error) {
	prices, err := a.history.History(ctx, pair, a.window)
	if err != nil {
		return nil, err
	}
	if len(prices) < 2 {
		return nil, fmt.Errorf("momentum: insufficient history for %s", pair)
	}

	mean := 0.0
	for _, p := range prices {
		mean += p
	}
	mean /= float64(len(prices))

	last := prices[len(prices)-1]
	if mean <= 0 {
		return nil, fmt.Errorf("momentum: degenerate history for %s", pair)
	}
	drift := (last - mean) / mean

	action := "HOLD"
	if drift > 0.002 {
		action = "BUY"
	} else if drift < -0.002 {
		action = "SELL"
	}
	confidence := math.Min(95, 50+math.Abs(drift)*2000)

	return &models.AnalystReport{
		Action:     action,
		Confidence: confidence,
		Rationale:  fmt.Sprintf("price %.4f vs %d-sample mean %.4f (drift %+.2f%%)", last, len(prices), mean, drift*100),
	}, nil
}

// MeanReversionAnalyst leans against stretched moves: far above the mean
// is a SELL, far below a BUY.
type MeanReversionAnalyst struct {
	history HistorySource
	window  int
}

func NewMeanReversionAnalyst(history HistorySource, window int) *MeanReversionAnalyst {
	if window <= 0 {
		window = 20
	}
	return &MeanReversionAnalyst{history: history, window: window}
}

func (a *MeanReversionAnalyst) Name() string { return "mean_reversion" }

func (a *MeanReversionAnalyst) Analyze(ctx context.Context, pair models.Pair, _ string) (*models.AnalystReport, error) {
	prices, err := a.history.History(ctx, pair, a.window)
	if err != nil {
		return nil, err
	}
	if len(prices) < 3 {
		return nil, fmt.Errorf("mean reversion: insufficient history for %s", pair)
	}

	mean, variance := 0.0, 0.0
	for _, p := range prices {
		mean += p
	}
	mean /= float64(len(prices))
	for _, p := range prices {
		d := p - mean
		variance += d * d
	}
	stdev := math.Sqrt(variance / float64(len(prices)-1))
	if stdev == 0 {
		return &models.AnalystReport{Action: "HOLD", Confidence: 50, Rationale: "flat series"}, nil
	}

	z := (prices[len(prices)-1] - mean) / stdev
	action := "HOLD"
	if z > 1.5 {
		action = "SELL"
	} else if z < -1.5 {
		action = "BUY"
	}
	confidence := math.Min(90, 45+math.Abs(z)*15)

	return &models.AnalystReport{
		Action:     action,
		Confidence: confidence,
		Rationale:  fmt.Sprintf("z-score %+.2f over %d samples", z, len(prices)),
	}, nil
}
