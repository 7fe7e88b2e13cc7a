package signal

import (
	"strconv"
	"time"

	"github.com/dyike/TradeFuseGo/internal/models"
)

// Analyst payloads arrive in a handful of known shapes: an explicit action
// field, a signal/side field, or a bare rating buried in Extra. Each shape
// has its own parser; a report matching none of them simply votes nothing.

func parseReport(source string, report models.AnalystReport, now time.Time) (models.SignalVote, bool) {
	for _, parse := range []func(models.AnalystReport) (models.Action, bool){
		parseActionField,
		parseSignalField,
		parseSideField,
		parseExtraRating,
	} {
		action, ok := parse(report)
		if !ok {
			continue
		}
		return models.SignalVote{
			SourceID:   source,
			Action:     action,
			Confidence: clampConfidence(parseConfidence(report.Confidence)),
			Rationale:  report.RawText(),
			ProducedAt: now,
		}, true
	}
	return models.SignalVote{}, false
}

func parseActionField(r models.AnalystReport) (models.Action, bool) {
	if r.Action == "" {
		return models.ActionHold, false
	}
	return models.ParseAction(r.Action)
}

func parseSignalField(r models.AnalystReport) (models.Action, bool) {
	if r.Signal == "" {
		return models.ActionHold, false
	}
	return models.ParseAction(r.Signal)
}

func parseSideField(r models.AnalystReport) (models.Action, bool) {
	if r.Side == "" {
		return models.ActionHold, false
	}
	return models.ParseAction(r.Side)
}

func parseExtraRating(r models.AnalystReport) (models.Action, bool) {
	if r.Extra == nil {
		return models.ActionHold, false
	}
	for _, key := range []string{"rating", "recommendation", "stance"} {
		if v, ok := r.Extra[key]; ok {
			if s, ok := v.(string); ok {
				return models.ParseAction(s)
			}
		}
	}
	return models.ActionHold, false
}

// parseConfidence accepts the numeric shapes seen in the wild: float64,
// int, a numeric string, or a 0..1 fraction that needs scaling.
func parseConfidence(v any) float64 {
	var conf float64
	switch c := v.(type) {
	case float64:
		conf = c
	case int:
		conf = float64(c)
	case string:
		parsed, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return 50
		}
		conf = parsed
	default:
		return 50
	}
	if conf > 0 && conf <= 1 {
		conf *= 100
	}
	return conf
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
