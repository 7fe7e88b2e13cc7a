package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunnerOptions configure the continuous tick loop.
type RunnerOptions struct {
	Pairs        []string
	TickInterval time.Duration
	Scheduler    SchedulerOptions
	// OnResult, when set, receives every terminal tick record (the CLI
	// uses it to render summaries).
	OnResult func(TickResult)
}

// Run ticks every configured pair on the given cadence until ctx is done.
// The background scheduler runs alongside and shares the ledger's
// serialization point. Execution failures are logged and the loop
// continues; a dead venue must not take the sweep down with it.
func (o *Orchestrator) Run(ctx context.Context, opts RunnerOptions) error {
	go o.RunScheduler(ctx, opts.Scheduler)

	ticker := time.NewTicker(opts.TickInterval)
	defer ticker.Stop()

	// First round immediately; the ticker drives the rest.
	o.tickAll(ctx, opts)
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("run loop stopped")
			return ctx.Err()
		case <-ticker.C:
			o.tickAll(ctx, opts)
		}
	}
}

func (o *Orchestrator) tickAll(ctx context.Context, opts RunnerOptions) {
	for _, symbol := range opts.Pairs {
		if ctx.Err() != nil {
			return
		}
		result := o.RunTick(ctx, symbol)
		if result.Status == StatusError {
			o.logger.Error("tick ended in execution failure",
				zap.String("pair", symbol), zap.String("error", result.Err))
		}
		if opts.OnResult != nil {
			opts.OnResult(result)
		}
	}
}
