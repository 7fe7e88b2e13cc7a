// Package fusion combines independent signal votes into a single trade
// decision. Every path out of the engine returns a well-formed decision;
// failures degrade to HOLD instead of escaping the package boundary.
package fusion

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/models"
)

const (
	// downgradeCap is the highest confidence a gated decision may report.
	downgradeCap = 65.0

	defaultWeight = 1.0
)

// Engine implements weighted multi-vote consensus with rule-based and
// model-based fallbacks.
type Engine struct {
	weights   map[string]float64
	threshold float64
	fallback  *LLMFallback // nil when the model fallback is disabled
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Engine)

// WithLLMFallback arms the last-resort language-model path for ticks that
// produced no structured votes.
func WithLLMFallback(fb *LLMFallback) Option {
	return func(e *Engine) { e.fallback = fb }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(weights map[string]float64, threshold float64, logger *zap.Logger, opts ...Option) *Engine {
	if weights == nil {
		weights = map[string]float64{}
	}
	e := &Engine{
		weights:   weights,
		threshold: threshold,
		logger:    logger.Named("fusion"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fuse produces exactly one decision for the tick. It never panics past its
// boundary and never returns a malformed decision.
func (e *Engine) Fuse(ctx context.Context, pair models.Pair, coll Collection) (decision models.FusedDecision) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("fusion panicked", zap.Any("panic", r))
			decision = e.holdDecision(pair, models.MethodFallback, fmt.Sprintf("fusion panic: %v", r), true)
		}
	}()

	switch {
	case len(coll.Votes) >= 2:
		return e.fuseWeighted(pair, coll.Votes)
	case len(coll.Votes) == 1:
		return e.fuseSingle(pair, coll.Votes[0])
	case len(coll.RawReports) > 0 && e.fallback != nil:
		return e.fuseFromModel(ctx, pair, coll.RawReports)
	default:
		return e.holdDecision(pair, models.MethodFallback, "no signals available", false)
	}
}

// Collection mirrors the signal package's gathering result without
// importing it, keeping the engine testable in isolation.
type Collection struct {
	Votes      []models.SignalVote
	RawReports map[string]string
}

func (e *Engine) fuseWeighted(pair models.Pair, votes []models.SignalVote) models.FusedDecision {
	scores := map[models.Action]float64{}
	counts := map[models.Action]int{}
	contributions := make(map[string]models.Contribution, len(votes))
	votedWeight := 0.0

	for _, vote := range votes {
		weight, ok := e.weights[vote.SourceID]
		if !ok {
			weight = defaultWeight
			e.logger.Warn("no weight configured for source, using default",
				zap.String("source", vote.SourceID), zap.Float64("default", defaultWeight))
		}
		weighted := vote.Confidence * weight
		scores[vote.Action] += weighted
		counts[vote.Action]++
		votedWeight += weight
		contributions[vote.SourceID] = models.Contribution{
			Action:        vote.Action,
			Confidence:    vote.Confidence,
			Weight:        weight,
			WeightedScore: weighted,
		}
	}

	winner := pickWinner(scores, counts)

	finalConfidence := 0.0
	if votedWeight > 0 {
		// Normalized by the weight of sources that actually voted this
		// tick, not by the full configured weight set.
		finalConfidence = scores[winner] / votedWeight
	}

	reason := fmt.Sprintf("weighted consensus of %d votes: %s scored %.1f", len(votes), winner, scores[winner])
	decision := models.FusedDecision{
		Action:        winner,
		Pair:          pair,
		Confidence:    finalConfidence,
		Reason:        reason,
		Contributions: contributions,
		Method:        models.MethodWeighted,
		CreatedAt:     e.now(),
	}
	return e.applyConfidenceGate(decision)
}

// pickWinner returns the action with the highest score. Ties prefer HOLD,
// then the action with more raw votes.
func pickWinner(scores map[models.Action]float64, counts map[models.Action]int) models.Action {
	actions := make([]models.Action, 0, len(scores))
	for action := range scores {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool {
		a, b := actions[i], actions[j]
		if scores[a] != scores[b] {
			return scores[a] > scores[b]
		}
		if (a == models.ActionHold) != (b == models.ActionHold) {
			return a == models.ActionHold
		}
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		return a < b
	})
	if len(actions) == 0 {
		return models.ActionHold
	}
	return actions[0]
}

func (e *Engine) fuseSingle(pair models.Pair, vote models.SignalVote) models.FusedDecision {
	weight, ok := e.weights[vote.SourceID]
	if !ok {
		weight = defaultWeight
	}
	decision := models.FusedDecision{
		Action:     vote.Action,
		Pair:       pair,
		Confidence: vote.Confidence,
		Reason:     fmt.Sprintf("single source %s: %s", vote.SourceID, vote.Rationale),
		Contributions: map[string]models.Contribution{
			vote.SourceID: {
				Action:        vote.Action,
				Confidence:    vote.Confidence,
				Weight:        weight,
				WeightedScore: vote.Confidence * weight,
			},
		},
		Method:    models.MethodRuleBased,
		CreatedAt: e.now(),
	}
	return e.applyConfidenceGate(decision)
}

// applyConfidenceGate forces BUY/SELL below the threshold down to HOLD and
// caps the reported confidence of the downgraded decision.
func (e *Engine) applyConfidenceGate(d models.FusedDecision) models.FusedDecision {
	if !d.Action.IsTradable() || d.Confidence >= e.threshold {
		return d
	}

	e.logger.Info("confidence gate downgraded decision",
		zap.String("pair", d.Pair.String()),
		zap.String("from", string(d.Action)),
		zap.Float64("confidence", d.Confidence),
		zap.Float64("threshold", e.threshold))

	d.Reason = fmt.Sprintf("%s downgraded to HOLD: confidence %.1f below threshold %.1f (%s)",
		d.Action, d.Confidence, e.threshold, d.Reason)
	d.Action = models.ActionHold
	if d.Confidence > downgradeCap {
		d.Confidence = downgradeCap
	}
	return d
}

func (e *Engine) holdDecision(pair models.Pair, method models.Method, reason string, failed bool) models.FusedDecision {
	return models.FusedDecision{
		Action:     models.ActionHold,
		Pair:       pair,
		Confidence: 0,
		Reason:     reason,
		Method:     method,
		Err:        failed,
		CreatedAt:  e.now(),
	}
}
