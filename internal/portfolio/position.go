package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/TradeFuseGo/internal/models"
)

// Holding is the balance of a single asset.
type Holding struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// Position is one open trade. It is created by Ledger.OpenPosition, mutated
// only by MarkToMarket, and terminally by ClosePosition. A closed trade id
// is never reopened.
type Position struct {
	TradeID    string           `json:"trade_id"`
	Pair       models.Pair      `json:"pair"`
	Action     models.Action    `json:"action"`
	EntryPrice decimal.Decimal  `json:"entry_price"`
	Size       decimal.Decimal  `json:"size"`
	CostBasis  decimal.Decimal  `json:"cost_basis"`
	StopLoss   *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal `json:"take_profit,omitempty"`
	OpenedAt   time.Time        `json:"opened_at"`

	CurrentPrice     decimal.Decimal `json:"current_price"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnLPct float64         `json:"unrealized_pnl_pct"`
}

// Notional is the position's monetary size at the current mark.
func (p *Position) Notional() decimal.Decimal {
	if p.CurrentPrice.IsZero() {
		return p.CostBasis
	}
	return p.Size.Mul(p.CurrentPrice)
}

// pnlPct returns the signed percentage move from entry to price, taking
// direction into account: long gains when price rises, short when it falls.
func (p *Position) pnlPct(price decimal.Decimal) float64 {
	if p.EntryPrice.IsZero() {
		return 0
	}
	move := price.Sub(p.EntryPrice).Div(p.EntryPrice)
	if p.Action == models.ActionSell {
		move = move.Neg()
	}
	return move.InexactFloat64() * 100
}

// ClosedTrade is the terminal record of a position, appended to the closed
// log and the trade log.
type ClosedTrade struct {
	TradeID     string          `json:"trade_id"`
	Pair        models.Pair     `json:"pair"`
	Action      models.Action   `json:"action"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	ExitPrice   decimal.Decimal `json:"exit_price"`
	Size        decimal.Decimal `json:"size"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	PnLPct      float64         `json:"pnl_percentage"`
	ExitReason  string          `json:"exit_reason"`
	OpenedAt    time.Time       `json:"opened_at"`
	ClosedAt    time.Time       `json:"closed_at"`
}

// Exit reasons written by the stop/target sweep.
const (
	ExitReasonStopLoss   = "STOP_LOSS"
	ExitReasonTakeProfit = "TAKE_PROFIT"
)

// ExposureLimits caps how much of the portfolio may be deployed at once.
type ExposureLimits struct {
	MaxTotalExposurePct    float64 `json:"max_total_exposure_pct"`
	MaxPerAssetExposurePct float64 `json:"max_per_asset_exposure_pct"`
	MaxOpenTrades          int     `json:"max_open_trades"`
}

// OpenRequest describes a fill the ledger should book as a new position.
type OpenRequest struct {
	TradeID    string
	Symbol     string
	Action     models.Action
	Price      decimal.Decimal
	Size       decimal.Decimal
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
}
