// Package portfolio owns holdings and open positions for the process
// lifetime. The Ledger is the single writer of this state: every mutation
// and every admissibility check runs under one lock, so a validate followed
// by a concurrent open can never exceed the exposure limits.
package portfolio

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/models"
)

// PriceLookup resolves the current mark for a pair. The second return is
// false when no price is known; callers skip rather than fail.
type PriceLookup func(pair models.Pair) (decimal.Decimal, bool)

// Ledger is the durable portfolio state and its exposure math.
type Ledger struct {
	mu sync.Mutex

	baseCurrency string
	holdings     map[string]decimal.Decimal
	positions    map[string]*Position
	closed       []ClosedTrade
	closedIDs    map[string]struct{}
	limits       ExposureLimits

	tradeLog *TradeLog // nil disables persistence
	logger   *zap.Logger
	now      func() time.Time
}

type LedgerOption func(*Ledger)

// WithTradeLog attaches the append-only trade log. Existing records are
// replayed into the ledger before it accepts new mutations.
func WithTradeLog(tl *TradeLog) LedgerOption {
	return func(l *Ledger) { l.tradeLog = tl }
}

func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(baseCurrency string, initialBalance decimal.Decimal, limits ExposureLimits, logger *zap.Logger, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		baseCurrency: baseCurrency,
		holdings:     map[string]decimal.Decimal{baseCurrency: initialBalance},
		positions:    map[string]*Position{},
		closedIDs:    map[string]struct{}{},
		limits:       limits,
		logger:       logger.Named("ledger"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.tradeLog != nil {
		l.replayTradeLog()
	}
	return l
}

// OpenPosition books a fill as a new position: BUY debits the quote asset
// by cost and credits the base asset by size, SELL the inverse. Malformed
// requests are logged and ignored; HOLD is always ignored.
func (l *Ledger) OpenPosition(req OpenRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.openLocked(req, true)
}

func (l *Ledger) openLocked(req OpenRequest, persist bool) {
	if req.Action == models.ActionHold {
		return
	}
	if req.TradeID == "" || req.Symbol == "" || !req.Action.Valid() {
		l.logger.Warn("ignoring malformed open request",
			zap.String("trade_id", req.TradeID),
			zap.String("symbol", req.Symbol),
			zap.String("action", string(req.Action)))
		return
	}
	if _, exists := l.positions[req.TradeID]; exists {
		l.logger.Warn("ignoring duplicate trade id", zap.String("trade_id", req.TradeID))
		return
	}
	if _, wasClosed := l.closedIDs[req.TradeID]; wasClosed {
		l.logger.Warn("ignoring reopen of closed trade id", zap.String("trade_id", req.TradeID))
		return
	}

	pair, err := models.ParsePair(req.Symbol)
	if err != nil {
		l.logger.Warn("ignoring open request with unresolvable pair",
			zap.String("symbol", req.Symbol), zap.Error(err))
		return
	}

	cost := req.Price.Mul(req.Size)
	switch req.Action {
	case models.ActionBuy:
		l.holdings[pair.Quote] = l.holdings[pair.Quote].Sub(cost)
		l.holdings[pair.Base] = l.holdings[pair.Base].Add(req.Size)
	case models.ActionSell:
		l.holdings[pair.Quote] = l.holdings[pair.Quote].Add(cost)
		l.holdings[pair.Base] = l.holdings[pair.Base].Sub(req.Size)
	}

	pos := &Position{
		TradeID:      req.TradeID,
		Pair:         pair,
		Action:       req.Action,
		EntryPrice:   req.Price,
		Size:         req.Size,
		CostBasis:    cost,
		StopLoss:     req.StopLoss,
		TakeProfit:   req.TakeProfit,
		OpenedAt:     l.now(),
		CurrentPrice: req.Price,
	}
	l.positions[req.TradeID] = pos

	l.logger.Info("position opened",
		zap.String("trade_id", req.TradeID),
		zap.String("pair", pair.String()),
		zap.String("action", string(req.Action)),
		zap.String("size", req.Size.String()),
		zap.String("cost_basis", cost.String()))

	if persist && l.tradeLog != nil {
		if err := l.tradeLog.AppendOpen(pos); err != nil {
			l.logger.Error("trade log append failed", zap.Error(err))
		}
	}
}

// ClosePosition realizes a position at exitPrice, reverses its holding
// deltas and moves it to the closed log. Returns the realized PnL in the
// quote asset.
func (l *Ledger) ClosePosition(tradeID string, exitPrice decimal.Decimal, reason string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	closed, err := l.closeLocked(tradeID, exitPrice, reason, true)
	if err != nil {
		return decimal.Zero, err
	}
	return closed.RealizedPnL, nil
}

func (l *Ledger) closeLocked(tradeID string, exitPrice decimal.Decimal, reason string, persist bool) (*ClosedTrade, error) {
	pos, ok := l.positions[tradeID]
	if !ok {
		return nil, fmt.Errorf("close position: unknown trade id %q", tradeID)
	}

	pnlPct := pos.pnlPct(exitPrice)
	proceeds := pos.Size.Mul(exitPrice)

	// Realized PnL equals cost_basis * pnl_pct; computed directly from the
	// price delta to avoid float round-tripping.
	var realized decimal.Decimal
	switch pos.Action {
	case models.ActionBuy:
		realized = proceeds.Sub(pos.CostBasis)
		l.holdings[pos.Pair.Base] = l.holdings[pos.Pair.Base].Sub(pos.Size)
		l.holdings[pos.Pair.Quote] = l.holdings[pos.Pair.Quote].Add(proceeds)
	case models.ActionSell:
		realized = pos.CostBasis.Sub(proceeds)
		l.holdings[pos.Pair.Base] = l.holdings[pos.Pair.Base].Add(pos.Size)
		l.holdings[pos.Pair.Quote] = l.holdings[pos.Pair.Quote].Sub(proceeds)
	default:
		return nil, fmt.Errorf("close position %q: unexpected action %s", tradeID, pos.Action)
	}

	closed := ClosedTrade{
		TradeID:     pos.TradeID,
		Pair:        pos.Pair,
		Action:      pos.Action,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitPrice,
		Size:        pos.Size,
		CostBasis:   pos.CostBasis,
		RealizedPnL: realized,
		PnLPct:      pnlPct,
		ExitReason:  reason,
		OpenedAt:    pos.OpenedAt,
		ClosedAt:    l.now(),
	}

	delete(l.positions, tradeID)
	l.closedIDs[tradeID] = struct{}{}
	l.closed = append(l.closed, closed)

	l.logger.Info("position closed",
		zap.String("trade_id", tradeID),
		zap.String("pair", pos.Pair.String()),
		zap.String("reason", reason),
		zap.Float64("pnl_pct", pnlPct),
		zap.String("realized_pnl", realized.String()))

	if persist && l.tradeLog != nil {
		if err := l.tradeLog.AppendClose(&closed); err != nil {
			l.logger.Error("trade log append failed", zap.Error(err))
		}
	}
	return &closed, nil
}

// ValidateTrade checks a proposal against the open-trade ceiling and the
// exposure limits. Exposure percentages are recomputed live on every call,
// never cached.
func (l *Ledger) ValidateTrade(proposal models.TradeProposal) models.RiskVerdict {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.positions) >= l.limits.MaxOpenTrades {
		return models.Reject(fmt.Sprintf("Maximum open trades reached (%d)", l.limits.MaxOpenTrades))
	}

	value := l.portfolioValueLocked()
	if !value.IsPositive() {
		return models.Reject("portfolio value is not positive")
	}

	newPct := proposal.Notional.Div(value).InexactFloat64() * 100
	totalPct := l.totalExposurePctLocked(value)
	if totalPct+newPct > l.limits.MaxTotalExposurePct {
		return models.Reject(fmt.Sprintf(
			"total exposure %.2f%% would exceed limit %.2f%%",
			totalPct+newPct, l.limits.MaxTotalExposurePct))
	}

	assetPct := l.assetExposurePctLocked(proposal.Pair.Base, value)
	if assetPct+newPct > l.limits.MaxPerAssetExposurePct {
		return models.Reject(fmt.Sprintf(
			"per-asset exposure for %s %.2f%% would exceed limit %.2f%%",
			proposal.Pair.Base, assetPct+newPct, l.limits.MaxPerAssetExposurePct))
	}

	return models.Approve(totalPct+newPct, assetPct+newPct)
}

// PortfolioValue is the base-currency balance plus the notional of every
// open position at its current mark.
func (l *Ledger) PortfolioValue() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.portfolioValueLocked()
}

func (l *Ledger) portfolioValueLocked() decimal.Decimal {
	value := l.holdings[l.baseCurrency]
	for _, pos := range l.positions {
		value = value.Add(pos.Notional())
	}
	return value
}

// TotalExposurePct is the share of portfolio value currently deployed in
// open positions, at live marks.
func (l *Ledger) TotalExposurePct() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalExposurePctLocked(l.portfolioValueLocked())
}

func (l *Ledger) totalExposurePctLocked(value decimal.Decimal) float64 {
	if !value.IsPositive() {
		return 0
	}
	exposure := decimal.Zero
	for _, pos := range l.positions {
		exposure = exposure.Add(pos.Notional())
	}
	return exposure.Div(value).InexactFloat64() * 100
}

func (l *Ledger) assetExposurePctLocked(asset string, value decimal.Decimal) float64 {
	if !value.IsPositive() {
		return 0
	}
	exposure := decimal.Zero
	for _, pos := range l.positions {
		if pos.Pair.Base == asset {
			exposure = exposure.Add(pos.Notional())
		}
	}
	return exposure.Div(value).InexactFloat64() * 100
}

// MarkToMarket refreshes every open position against the lookup. A missing
// price skips that position and keeps its stale mark.
func (l *Ledger) MarkToMarket(lookup PriceLookup) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, pos := range l.positions {
		price, ok := lookup(pos.Pair)
		if !ok {
			l.logger.Debug("no price for pair, keeping stale mark",
				zap.String("pair", pos.Pair.String()))
			continue
		}
		pos.CurrentPrice = price
		pos.UnrealizedPnLPct = pos.pnlPct(price)
		if pos.Action == models.ActionBuy {
			pos.UnrealizedPnL = pos.Size.Mul(price.Sub(pos.EntryPrice))
		} else {
			pos.UnrealizedPnL = pos.Size.Mul(pos.EntryPrice.Sub(price))
		}
	}
}

// CheckStopTakeProfit closes positions whose stop or target is breached.
// Only positions with both levels set participate; a stop-only position is
// never auto-closed. Breach direction follows the position: long stops on
// price at or below the stop, shorts on price at or above it.
func (l *Ledger) CheckStopTakeProfit(lookup PriceLookup) []ClosedTrade {
	l.mu.Lock()
	defer l.mu.Unlock()

	var toClose []struct {
		tradeID string
		price   decimal.Decimal
		reason  string
	}

	for _, pos := range l.positions {
		if pos.StopLoss == nil || pos.TakeProfit == nil {
			continue
		}
		price, ok := lookup(pos.Pair)
		if !ok {
			continue
		}

		var reason string
		if pos.Action == models.ActionBuy {
			switch {
			case price.Cmp(*pos.StopLoss) <= 0:
				reason = ExitReasonStopLoss
			case price.Cmp(*pos.TakeProfit) >= 0:
				reason = ExitReasonTakeProfit
			}
		} else {
			switch {
			case price.Cmp(*pos.StopLoss) >= 0:
				reason = ExitReasonStopLoss
			case price.Cmp(*pos.TakeProfit) <= 0:
				reason = ExitReasonTakeProfit
			}
		}
		if reason == "" {
			continue
		}
		toClose = append(toClose, struct {
			tradeID string
			price   decimal.Decimal
			reason  string
		}{pos.TradeID, price, reason})
	}

	var closed []ClosedTrade
	for _, c := range toClose {
		ct, err := l.closeLocked(c.tradeID, c.price, c.reason, true)
		if err != nil {
			l.logger.Error("sweep close failed", zap.String("trade_id", c.tradeID), zap.Error(err))
			continue
		}
		closed = append(closed, *ct)
	}
	return closed
}

// HasOpenPair reports whether any open position trades the given pair.
func (l *Ledger) HasOpenPair(pair models.Pair) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, pos := range l.positions {
		if pos.Pair == pair {
			return true
		}
	}
	return false
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

// OpenPositions returns copies of the open positions, sorted by open time.
func (l *Ledger) OpenPositions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// ClosedTrades returns copies of the closed-trade log.
func (l *Ledger) ClosedTrades() []ClosedTrade {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ClosedTrade, len(l.closed))
	copy(out, l.closed)
	return out
}

// Holdings returns a copy of every non-zero asset balance.
func (l *Ledger) Holdings() []Holding {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Holding, 0, len(l.holdings))
	for asset, amount := range l.holdings {
		if amount.IsZero() {
			continue
		}
		out = append(out, Holding{Asset: asset, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// BaseBalance returns the free base-currency balance.
func (l *Ledger) BaseBalance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holdings[l.baseCurrency]
}

func (l *Ledger) replayTradeLog() {
	records, err := l.tradeLog.Load()
	if err != nil {
		l.logger.Error("trade log load failed, starting from initial state", zap.Error(err))
		return
	}
	opens, closes := 0, 0
	for _, rec := range records {
		switch rec.Type {
		case recordOpen:
			l.openLocked(OpenRequest{
				TradeID:    rec.TradeID,
				Symbol:     rec.Symbol,
				Action:     rec.Action,
				Price:      rec.Price,
				Size:       rec.Size,
				StopLoss:   rec.StopLoss,
				TakeProfit: rec.TakeProfit,
			}, false)
			opens++
		case recordClose:
			if _, err := l.closeLocked(rec.TradeID, rec.Price, rec.ExitReason, false); err != nil {
				l.logger.Warn("trade log close replay skipped", zap.String("trade_id", rec.TradeID), zap.Error(err))
				continue
			}
			closes++
		}
	}
	if opens > 0 || closes > 0 {
		l.logger.Info("trade log replayed",
			zap.Int("opens", opens), zap.Int("closes", closes),
			zap.Int("active", len(l.positions)))
	}
}
