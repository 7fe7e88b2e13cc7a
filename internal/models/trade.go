package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeProposal is the candidate trade the orchestrator carries through the
// ledger admissibility check and the risk gate.
type TradeProposal struct {
	Pair       Pair            `json:"pair"`
	Action     Action          `json:"action"`
	Notional   decimal.Decimal `json:"notional"`
	Price      decimal.Decimal `json:"price"`
	Confidence float64         `json:"confidence"`
	// Volatility is nil when no estimate is available; risk checks that
	// depend on it are skipped rather than failed.
	Volatility *float64  `json:"volatility,omitempty"`
	ProposedAt time.Time `json:"proposed_at"`
}

// RiskVerdict is the outcome of a ledger or risk-gate evaluation. Ephemeral;
// only rejections are persisted.
type RiskVerdict struct {
	Approved          bool    `json:"approved"`
	Reason            string  `json:"reason"`
	ProjectedTotalPct float64 `json:"projected_total_pct,omitempty"`
	ProjectedAssetPct float64 `json:"projected_asset_pct,omitempty"`
}

// Approve builds an approving verdict carrying the projected exposure figures.
func Approve(totalPct, assetPct float64) RiskVerdict {
	return RiskVerdict{Approved: true, ProjectedTotalPct: totalPct, ProjectedAssetPct: assetPct}
}

// Reject builds a rejecting verdict with a human-readable reason.
func Reject(reason string) RiskVerdict {
	return RiskVerdict{Approved: false, Reason: reason}
}

// SizedOrder is the execution-ready order handed to the sink. Consumed once.
type SizedOrder struct {
	Pair             Pair            `json:"pair"`
	Action           Action          `json:"action"`
	NotionalSize     decimal.Decimal `json:"notional_size"`
	AssetQuantity    decimal.Decimal `json:"asset_quantity"`
	Price            decimal.Decimal `json:"price"`
	ConfidenceFactor float64         `json:"confidence_factor"`
	VolatilityFactor float64         `json:"volatility_factor"`
}

// Fill is the execution sink's acknowledgement of a submitted order.
type Fill struct {
	TradeID  string          `json:"trade_id"`
	Pair     Pair            `json:"pair"`
	Action   Action          `json:"action"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Notional decimal.Decimal `json:"notional"`
	Message  string          `json:"message,omitempty"`
	FilledAt time.Time       `json:"filled_at"`
}
