package models

import "time"

// Method records which fusion path produced a decision.
type Method string

const (
	MethodWeighted      Method = "weighted"
	MethodRuleBased     Method = "rule_based"
	MethodLLMBased      Method = "llm_based"
	MethodFallback      Method = "fallback"
	MethodErrorFallback Method = "error_fallback"
	MethodTimeout       Method = "timeout"
)

// Contribution is one source's share of a fused decision.
type Contribution struct {
	Action        Action  `json:"action"`
	Confidence    float64 `json:"confidence"`
	Weight        float64 `json:"weight"`
	WeightedScore float64 `json:"weighted_score"`
}

// FusedDecision is the single consensus decision for one tick. It is created
// once, appended to the decision log and never mutated afterwards.
type FusedDecision struct {
	Action        Action                  `json:"action"`
	Pair          Pair                    `json:"pair"`
	Confidence    float64                 `json:"confidence"`
	Reason        string                  `json:"reason"`
	Contributions map[string]Contribution `json:"contributions,omitempty"`
	Method        Method                  `json:"method"`
	Err           bool                    `json:"error,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}
