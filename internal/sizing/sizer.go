// Package sizing turns confidence and volatility into a bounded position
// fraction of portfolio value.
package sizing

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/config"
	"github.com/dyike/TradeFuseGo/internal/models"
)

// HistorySource supplies recent closing prices, newest last. The static
// paper feed and any live feed both satisfy it.
type HistorySource interface {
	History(ctx context.Context, pair models.Pair, n int) ([]float64, error)
}

// point is one node of the confidence interpolation curve.
type point struct {
	confidence float64
	size       float64
}

// Result carries the sized fraction plus the factors that produced it, for
// the decision log.
type Result struct {
	Fraction         float64
	ConfidenceFactor float64
	VolatilityFactor float64
	Volatility       *float64
}

// Sizer computes position fractions using the configured strategy.
type Sizer struct {
	cfg     config.SizingConfig
	curve   []point
	history HistorySource
	logger  *zap.Logger
}

func NewSizer(cfg config.SizingConfig, history HistorySource, logger *zap.Logger) (*Sizer, error) {
	curve, err := parseCurve(cfg.ConfidenceMap)
	if err != nil {
		return nil, err
	}
	return &Sizer{
		cfg:     cfg,
		curve:   curve,
		history: history,
		logger:  logger.Named("sizing"),
	}, nil
}

func parseCurve(confidenceMap map[string]float64) ([]point, error) {
	curve := make([]point, 0, len(confidenceMap))
	for key, size := range confidenceMap {
		conf, err := strconv.ParseFloat(key, 64)
		if err != nil {
			return nil, fmt.Errorf("sizing: confidence map key %q is not numeric", key)
		}
		curve = append(curve, point{confidence: conf, size: size})
	}
	sort.Slice(curve, func(i, j int) bool { return curve[i].confidence < curve[j].confidence })
	return curve, nil
}

// Size returns the position fraction for the proposal. volatility may be
// nil; it is then estimated from price history, and a thin history falls
// back to the configured default size for the volatility component.
func (s *Sizer) Size(ctx context.Context, pair models.Pair, confidence float64, volatility *float64) Result {
	vol := volatility
	if vol == nil {
		if estimated, ok := s.estimateVolatility(ctx, pair); ok {
			vol = &estimated
		}
	}

	confFactor := s.confidenceSize(confidence)
	volFactor := s.volatilitySize(vol)

	var fraction float64
	switch s.cfg.Strategy {
	case "confidence":
		fraction = confFactor
	case "volatility":
		fraction = volFactor
	default: // combined
		fraction = s.cfg.ConfidenceWeight*confFactor + s.cfg.VolatilityWeight*volFactor
	}

	return Result{
		Fraction:         s.clampSize(fraction),
		ConfidenceFactor: confFactor,
		VolatilityFactor: volFactor,
		Volatility:       vol,
	}
}

// confidenceSize interpolates linearly between the configured curve points
// and clamps outside the curve's domain.
func (s *Sizer) confidenceSize(confidence float64) float64 {
	if len(s.curve) == 0 {
		return s.cfg.DefaultSize
	}
	if confidence <= s.curve[0].confidence {
		return s.curve[0].size
	}
	last := s.curve[len(s.curve)-1]
	if confidence >= last.confidence {
		return last.size
	}
	for i := 1; i < len(s.curve); i++ {
		lo, hi := s.curve[i-1], s.curve[i]
		if confidence > hi.confidence {
			continue
		}
		t := (confidence - lo.confidence) / (hi.confidence - lo.confidence)
		return lo.size + t*(hi.size-lo.size)
	}
	return last.size
}

// volatilitySize shrinks the position as volatility grows. An unknown
// volatility yields the fixed default instead of an error.
func (s *Sizer) volatilitySize(vol *float64) float64 {
	if vol == nil {
		return s.cfg.DefaultSize
	}
	v := *vol
	if v < 0.001 {
		v = 0.001
	}
	if v > s.cfg.MaxVolatility {
		v = s.cfg.MaxVolatility
	}
	return s.cfg.RiskPerTrade / (v * s.cfg.VolatilityMultiplier)
}

func (s *Sizer) clampSize(fraction float64) float64 {
	if fraction < s.cfg.MinSize {
		return s.cfg.MinSize
	}
	if fraction > s.cfg.MaxSize {
		return s.cfg.MaxSize
	}
	return fraction
}

func (s *Sizer) estimateVolatility(ctx context.Context, pair models.Pair) (float64, bool) {
	if s.history == nil || s.cfg.VolatilityLookback <= 0 {
		return 0, false
	}
	prices, err := s.history.History(ctx, pair, s.cfg.VolatilityLookback)
	if err != nil {
		s.logger.Debug("history unavailable for volatility estimate",
			zap.String("pair", pair.String()), zap.Error(err))
		return 0, false
	}
	return LogReturnVolatility(prices)
}
