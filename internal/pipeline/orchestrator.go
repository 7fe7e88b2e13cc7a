// Package pipeline sequences one tick through the trading stages with
// per-stage failure containment. A stage failure is caught at its boundary
// and converted to a terminal HOLD; rejections are normal terminal states;
// only execution failures propagate to the caller.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/execution"
	"github.com/dyike/TradeFuseGo/internal/fusion"
	"github.com/dyike/TradeFuseGo/internal/marketdata"
	"github.com/dyike/TradeFuseGo/internal/metrics"
	"github.com/dyike/TradeFuseGo/internal/models"
	"github.com/dyike/TradeFuseGo/internal/portfolio"
	"github.com/dyike/TradeFuseGo/internal/risk"
	"github.com/dyike/TradeFuseGo/internal/signal"
	"github.com/dyike/TradeFuseGo/internal/sizing"
	"github.com/dyike/TradeFuseGo/internal/storage"
	"github.com/dyike/TradeFuseGo/internal/storage/sqlite"
)

// Stage names, logged with every containment event.
type Stage string

const (
	StageCollecting  Stage = "COLLECTING"
	StageFusing      Stage = "FUSING"
	StageLedgerCheck Stage = "LEDGER_CHECK"
	StageRiskCheck   Stage = "RISK_CHECK"
	StageSizing      Stage = "SIZING"
	StageExecuting   Stage = "EXECUTING"
	StageDone        Stage = "DONE"
	StageErrored     Stage = "ERROR"
)

// Status is the terminal outcome of a tick. Every tick ends in exactly one.
type Status string

const (
	StatusExecuted       Status = "executed"
	StatusHold           Status = "hold"
	StatusRejectedLedger Status = "rejected_by_ledger"
	StatusRejectedRisk   Status = "rejected_by_risk"
	StatusError          Status = "error"
)

// TickResult is the single terminal record of one pipeline tick.
type TickResult struct {
	TickID     string               `json:"tick_id"`
	Pair       models.Pair          `json:"pair"`
	Status     Status               `json:"status"`
	Stage      Stage                `json:"stage"`
	Decision   models.FusedDecision `json:"decision"`
	Verdict    *models.RiskVerdict  `json:"verdict,omitempty"`
	Order      *models.SizedOrder   `json:"order,omitempty"`
	Fill       *models.Fill         `json:"fill,omitempty"`
	Err        string               `json:"error,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}

// Collector is the signal-gathering dependency.
type Collector interface {
	Collect(ctx context.Context, symbol, interval string) signal.Collection
}

// Options tune orchestrator behavior beyond its collaborators.
type Options struct {
	Interval      string
	TickDeadline  time.Duration
	StopLossPct   float64
	TakeProfitPct float64
	// HoldOnError converts stage failures to terminal HOLDs. When false,
	// the terminal record carries the error payload instead.
	HoldOnError bool
}

// Orchestrator runs the per-tick state machine and owns the background
// scheduler that sweeps and snapshots the ledger.
type Orchestrator struct {
	collector Collector
	engine    *fusion.Engine
	ledger    *portfolio.Ledger
	gate      *risk.Gate
	sizer     *sizing.Sizer
	sink      execution.Sink
	feed      marketdata.PriceFeed
	recorder  *storage.Recorder // nil disables persistence
	metrics   *metrics.Metrics  // nil disables metrics
	logger    *zap.Logger
	opts      Options
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

func NewOrchestrator(
	collector Collector,
	engine *fusion.Engine,
	ledger *portfolio.Ledger,
	gate *risk.Gate,
	sizer *sizing.Sizer,
	sink execution.Sink,
	feed marketdata.PriceFeed,
	recorder *storage.Recorder,
	m *metrics.Metrics,
	logger *zap.Logger,
	opts Options,
) *Orchestrator {
	return &Orchestrator{
		collector: collector,
		engine:    engine,
		ledger:    ledger,
		gate:      gate,
		sizer:     sizer,
		sink:      sink,
		feed:      feed,
		recorder:  recorder,
		metrics:   m,
		logger:    logger.Named("pipeline"),
		opts:      opts,
		now:       time.Now,
		inflight:  map[string]*sync.Mutex{},
	}
}

// RunTick executes one full tick for the symbol. Ticks for the same pair
// serialize on a per-pair lock because they read and mutate shared ledger
// state.
func (o *Orchestrator) RunTick(ctx context.Context, symbol string) TickResult {
	lock := o.pairLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	if o.opts.TickDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.TickDeadline)
		defer cancel()
	}

	result := o.runStages(ctx, symbol)
	o.finalize(&result)
	return result
}

func (o *Orchestrator) pairLock(symbol string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.inflight[symbol]
	if !ok {
		lock = &sync.Mutex{}
		o.inflight[symbol] = lock
	}
	return lock
}

func (o *Orchestrator) runStages(ctx context.Context, symbol string) TickResult {
	result := TickResult{
		TickID:    uuid.NewString(),
		StartedAt: o.now(),
	}

	// COLLECTING
	var coll signal.Collection
	if err := o.guard(ctx, StageCollecting, func() error {
		coll = o.collector.Collect(ctx, symbol, o.opts.Interval)
		return nil
	}); err != nil {
		return o.terminalFailure(result, StageCollecting, err)
	}
	result.Pair = coll.Pair
	if coll.Pair.IsZero() {
		// Unresolvable symbol: the adapter already logged the parse error.
		return o.terminalFailure(result, StageCollecting,
			&models.ValidationError{Field: "symbol", Msg: fmt.Sprintf("unresolvable %q", symbol)})
	}

	// FUSING
	if err := o.guard(ctx, StageFusing, func() error {
		result.Decision = o.engine.Fuse(ctx, coll.Pair, fusion.Collection{
			Votes:      coll.Votes,
			RawReports: coll.RawReports,
		})
		return nil
	}); err != nil {
		return o.terminalFailure(result, StageFusing, err)
	}

	// A HOLD decision skips every stage through EXECUTING.
	if !result.Decision.Action.IsTradable() {
		result.Status = StatusHold
		result.Stage = StageDone
		return result
	}

	// LEDGER_CHECK (includes proposal construction: price, provisional size)
	var proposal models.TradeProposal
	var sizeRes sizing.Result
	var price decimal.Decimal
	if err := o.guard(ctx, StageLedgerCheck, func() error {
		var err error
		price, err = o.feed.Price(ctx, coll.Pair)
		if err != nil {
			return &models.DataFetchingError{Source: "price feed", Err: err}
		}
		sizeRes = o.sizer.Size(ctx, coll.Pair, result.Decision.Confidence, nil)
		value := o.ledger.PortfolioValue()
		proposal = models.TradeProposal{
			Pair:       coll.Pair,
			Action:     result.Decision.Action,
			Notional:   value.Mul(decimal.NewFromFloat(sizeRes.Fraction)),
			Price:      price,
			Confidence: result.Decision.Confidence,
			Volatility: sizeRes.Volatility,
			ProposedAt: o.now(),
		}
		verdict := o.ledger.ValidateTrade(proposal)
		result.Verdict = &verdict
		return nil
	}); err != nil {
		return o.terminalFailure(result, StageLedgerCheck, err)
	}
	if !result.Verdict.Approved {
		result.Status = StatusRejectedLedger
		result.Stage = StageLedgerCheck
		o.countRejection("ledger")
		return result
	}

	// RISK_CHECK
	if err := o.guard(ctx, StageRiskCheck, func() error {
		verdict := o.gate.Evaluate(proposal)
		result.Verdict = &verdict
		return nil
	}); err != nil {
		return o.terminalFailure(result, StageRiskCheck, err)
	}
	if !result.Verdict.Approved {
		result.Status = StatusRejectedRisk
		result.Stage = StageRiskCheck
		o.countRejection("risk")
		return result
	}

	// SIZING
	if err := o.guard(ctx, StageSizing, func() error {
		if !price.IsPositive() {
			return &models.ValidationError{Field: "price", Msg: "not positive"}
		}
		result.Order = &models.SizedOrder{
			Pair:             proposal.Pair,
			Action:           proposal.Action,
			NotionalSize:     proposal.Notional,
			AssetQuantity:    proposal.Notional.Div(price),
			Price:            price,
			ConfidenceFactor: sizeRes.ConfidenceFactor,
			VolatilityFactor: sizeRes.VolatilityFactor,
		}
		return nil
	}); err != nil {
		return o.terminalFailure(result, StageSizing, err)
	}

	// EXECUTING
	if err := o.guard(ctx, StageExecuting, func() error {
		fill, err := o.sink.Execute(ctx, *result.Order)
		if err != nil {
			return err
		}
		result.Fill = fill
		o.ledger.OpenPosition(o.openRequest(fill))
		return nil
	}); err != nil {
		if models.IsExecutionError(err) {
			// Money-moving failures are never converted to a silent HOLD.
			result.Status = StatusError
			result.Stage = StageErrored
			result.Err = err.Error()
			o.countExecution("failure")
			return result
		}
		return o.terminalFailure(result, StageExecuting, err)
	}

	o.countExecution("success")
	result.Status = StatusExecuted
	result.Stage = StageDone
	return result
}

// openRequest derives stop and target levels from the configured
// percentages, direction-aware.
func (o *Orchestrator) openRequest(fill *models.Fill) portfolio.OpenRequest {
	req := portfolio.OpenRequest{
		TradeID: fill.TradeID,
		Symbol:  fill.Pair.String(),
		Action:  fill.Action,
		Price:   fill.Price,
		Size:    fill.Quantity,
	}
	if o.opts.StopLossPct > 0 {
		req.StopLoss = levelFrom(fill.Price, o.opts.StopLossPct, fill.Action == models.ActionSell)
	}
	if o.opts.TakeProfitPct > 0 {
		req.TakeProfit = levelFrom(fill.Price, o.opts.TakeProfitPct, fill.Action == models.ActionBuy)
	}
	return req
}

func levelFrom(price decimal.Decimal, pct float64, above bool) *decimal.Decimal {
	delta := price.Mul(decimal.NewFromFloat(pct / 100))
	var level decimal.Decimal
	if above {
		level = price.Add(delta)
	} else {
		level = price.Sub(delta)
	}
	return &level
}

// guard runs one stage with panic containment and deadline awareness.
func (o *Orchestrator) guard(ctx context.Context, stage Stage, fn func() error) (err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("tick deadline exceeded before %s: %w", stage, ctxErr)
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("stage panicked",
				zap.String("stage", string(stage)), zap.Any("panic", r))
			err = fmt.Errorf("stage %s panicked: %v", stage, r)
		}
	}()
	if err := fn(); err != nil {
		o.logger.Warn("stage failed",
			zap.String("stage", string(stage)), zap.Error(err))
		return err
	}
	return nil
}

// terminalFailure converts a contained stage failure into the terminal
// record: a HOLD by default, or an explicit error payload when the hold
// fallback is disabled. Deadline overruns are always HOLDs with the
// timeout method.
func (o *Orchestrator) terminalFailure(result TickResult, stage Stage, err error) TickResult {
	method := models.MethodErrorFallback
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		method = models.MethodTimeout
	}

	if o.opts.HoldOnError || method == models.MethodTimeout {
		result.Decision = models.FusedDecision{
			Action:     models.ActionHold,
			Pair:       result.Pair,
			Confidence: 0,
			Reason:     fmt.Sprintf("stage %s failed: %v", stage, err),
			Method:     method,
			Err:        true,
			CreatedAt:  o.now(),
		}
		result.Status = StatusHold
		result.Stage = StageDone
		return result
	}

	result.Status = StatusError
	result.Stage = StageErrored
	result.Err = fmt.Sprintf("stage %s: %v", stage, err)
	return result
}

// finalize stamps, records and counts the terminal result.
func (o *Orchestrator) finalize(result *TickResult) {
	result.FinishedAt = o.now()

	o.logger.Info("tick finished",
		zap.String("tick_id", result.TickID),
		zap.String("pair", result.Pair.String()),
		zap.String("status", string(result.Status)),
		zap.String("action", string(result.Decision.Action)),
		zap.String("method", string(result.Decision.Method)),
		zap.Float64("confidence", result.Decision.Confidence))

	if o.metrics != nil {
		o.metrics.TicksTotal.WithLabelValues(string(result.Status)).Inc()
		o.metrics.DecisionsTotal.WithLabelValues(
			string(result.Decision.Action), string(result.Decision.Method)).Inc()
		o.metrics.TickDuration.Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
		o.metrics.OpenPositions.Set(float64(o.ledger.OpenCount()))
		o.metrics.PortfolioValue.Set(o.ledger.PortfolioValue().InexactFloat64())
		o.metrics.TotalExposure.Set(o.ledger.TotalExposurePct())
	}

	if o.recorder != nil {
		o.recorder.Record(decisionRow(*result))
	}
}

func (o *Orchestrator) countRejection(stage string) {
	if o.metrics != nil {
		o.metrics.RejectionsTotal.WithLabelValues(stage).Inc()
	}
}

func (o *Orchestrator) countExecution(outcome string) {
	if o.metrics != nil {
		o.metrics.ExecutionsTotal.WithLabelValues(outcome).Inc()
	}
}

func decisionRow(result TickResult) sqlite.DecisionRow {
	row := sqlite.DecisionRow{
		TickID:     result.TickID,
		Pair:       result.Pair.String(),
		Status:     string(result.Status),
		Action:     string(result.Decision.Action),
		Confidence: result.Decision.Confidence,
		Method:     string(result.Decision.Method),
		Reason:     result.Decision.Reason,
		Error:      result.Err,
		CreatedAt:  result.FinishedAt,
	}
	if len(result.Decision.Contributions) > 0 {
		if data, err := json.Marshal(result.Decision.Contributions); err == nil {
			row.Contributions = string(data)
		}
	}
	if result.Order != nil {
		if data, err := json.Marshal(result.Order); err == nil {
			row.OrderJSON = string(data)
		}
	}
	if result.Fill != nil {
		row.TradeID = result.Fill.TradeID
	}
	return row
}
