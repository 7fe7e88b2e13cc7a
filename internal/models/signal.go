package models

import "time"

// SignalVote is one analyst's normalized opinion on a pair. Votes are
// immutable; the fusion engine consumes and discards them within a tick.
type SignalVote struct {
	SourceID   string    `json:"source_id"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"` // 0..100
	Rationale  string    `json:"rationale"`
	ProducedAt time.Time `json:"produced_at"`
}

// AnalystReport is the raw payload an analyst returns before normalization.
// Fields are optional because analyst implementations disagree on shape; the
// signal package owns the per-shape parsers.
type AnalystReport struct {
	Action     string         `json:"action,omitempty"`
	Signal     string         `json:"signal,omitempty"`
	Side       string         `json:"side,omitempty"`
	Confidence any            `json:"confidence,omitempty"`
	Rationale  string         `json:"rationale,omitempty"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Text       string         `json:"text,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// RawText returns whatever prose the report carries, used by the
// language-model fallback when no structured vote could be extracted.
func (r AnalystReport) RawText() string {
	switch {
	case r.Text != "":
		return r.Text
	case r.Rationale != "":
		return r.Rationale
	default:
		return r.Reasoning
	}
}
