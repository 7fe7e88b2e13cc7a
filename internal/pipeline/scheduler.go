package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/marketdata"
)

// SchedulerOptions configure the background sweep and snapshot cadence.
// Zero intervals disable the corresponding job.
type SchedulerOptions struct {
	SweepInterval    time.Duration
	SnapshotInterval time.Duration
	SnapshotPath     string
}

// RunScheduler drives the periodic mark-to-market, stop/target sweep and
// portfolio snapshot. It is the only background owner of ledger mutation:
// every job goes through the ledger's own serialization point, so it can
// interleave safely with tick processing. Blocks until ctx is done.
func (o *Orchestrator) RunScheduler(ctx context.Context, opts SchedulerOptions) {
	logger := o.logger.Named("scheduler")

	var sweepC, snapC <-chan time.Time
	if opts.SweepInterval > 0 {
		sweep := time.NewTicker(opts.SweepInterval)
		defer sweep.Stop()
		sweepC = sweep.C
	}
	if opts.SnapshotInterval > 0 && opts.SnapshotPath != "" {
		snap := time.NewTicker(opts.SnapshotInterval)
		defer snap.Stop()
		snapC = snap.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepC:
			o.sweep(ctx, logger)
		case <-snapC:
			if err := o.ledger.WriteSnapshot(opts.SnapshotPath); err != nil {
				logger.Warn("snapshot failed", zap.Error(err))
			}
		}
	}
}

// sweep refreshes marks and closes any position whose stop or target is
// breached. Positions with only one of the two levels are left alone.
func (o *Orchestrator) sweep(ctx context.Context, logger *zap.Logger) {
	lookup := marketdata.Lookup(ctx, o.feed)
	o.ledger.MarkToMarket(lookup)

	closed := o.ledger.CheckStopTakeProfit(lookup)
	for _, trade := range closed {
		logger.Info("position auto-closed",
			zap.String("trade_id", trade.TradeID),
			zap.String("pair", trade.Pair.String()),
			zap.String("reason", trade.ExitReason),
			zap.Float64("pnl_pct", trade.PnLPct))
	}
	if o.metrics != nil {
		o.metrics.OpenPositions.Set(float64(o.ledger.OpenCount()))
		o.metrics.PortfolioValue.Set(o.ledger.PortfolioValue().InexactFloat64())
		o.metrics.TotalExposure.Set(o.ledger.TotalExposurePct())
	}
}
