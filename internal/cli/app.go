package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/config"
	"github.com/dyike/TradeFuseGo/internal/execution"
	"github.com/dyike/TradeFuseGo/internal/fusion"
	"github.com/dyike/TradeFuseGo/internal/llm"
	"github.com/dyike/TradeFuseGo/internal/marketdata"
	"github.com/dyike/TradeFuseGo/internal/metrics"
	"github.com/dyike/TradeFuseGo/internal/pipeline"
	"github.com/dyike/TradeFuseGo/internal/portfolio"
	"github.com/dyike/TradeFuseGo/internal/risk"
	"github.com/dyike/TradeFuseGo/internal/signal"
	"github.com/dyike/TradeFuseGo/internal/sizing"
	"github.com/dyike/TradeFuseGo/internal/storage"
	"github.com/dyike/TradeFuseGo/internal/storage/sqlite"
)

// App bundles the wired pipeline and everything that must be shut down
// with it.
type App struct {
	Cfg          config.Config
	Logger       *zap.Logger
	Ledger       *portfolio.Ledger
	Orchestrator *pipeline.Orchestrator
	Recorder     *storage.Recorder
	Store        *sqlite.Store
}

// buildApp wires every component from the config. The feed is a seeded
// random walk so paper runs work with no venue connection; an http
// execution sink still trades against it.
func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("create data directories: %w", err)
	}

	feed := marketdata.NewCachedFeed(
		marketdata.NewSimFeed(time.Now().UnixNano(), 0, 0.004),
		2*time.Second, logger)

	analysts := []signal.Analyst{
		signal.NewMomentumAnalyst(feed, cfg.Sizing.VolatilityLookback),
		signal.NewMeanReversionAnalyst(feed, cfg.Sizing.VolatilityLookback),
	}
	collector := signal.NewCollector(analysts, logger)

	ledger := portfolio.NewLedger(
		cfg.Portfolio.BaseCurrency,
		decimal.NewFromFloat(cfg.Portfolio.InitialBalance),
		portfolio.ExposureLimits{
			MaxTotalExposurePct:    cfg.Portfolio.MaxTotalExposurePct,
			MaxPerAssetExposurePct: cfg.Portfolio.MaxPerAssetExposurePct,
			MaxOpenTrades:          cfg.Portfolio.MaxOpenTrades,
		},
		logger,
		portfolio.WithTradeLog(portfolio.NewTradeLog(cfg.Portfolio.TradeLogPath, logger)),
	)

	gate := risk.NewGate(cfg.Risk, ledger, logger)

	sizer, err := sizing.NewSizer(cfg.Sizing, feed, logger)
	if err != nil {
		return nil, fmt.Errorf("build sizer: %w", err)
	}

	var fusionOpts []fusion.Option
	if cfg.Fusion.FallbackEnabled && cfg.LLM.APIKey != "" {
		completer, err := llm.NewChatModel(ctx, cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("build chat model: %w", err)
		}
		timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
		fusionOpts = append(fusionOpts, fusion.WithLLMFallback(
			fusion.NewLLMFallback(completer, timeout, logger)))
	} else if cfg.Fusion.FallbackEnabled {
		logger.Info("llm fallback disabled, no api key configured")
	}
	engine := fusion.NewEngine(cfg.Fusion.Weights, cfg.Fusion.ConfidenceThreshold, logger, fusionOpts...)

	var sink execution.Sink
	switch cfg.Execution.Mode {
	case "http":
		sink = execution.NewHTTPSink(cfg.Execution.Endpoint,
			time.Duration(cfg.Execution.TimeoutSeconds)*time.Second, logger)
	default:
		sink = execution.NewPaperSink(logger)
	}

	store, err := sqlite.Open(filepath.Join(cfg.DataDir, "decisions.db"))
	if err != nil {
		return nil, fmt.Errorf("open decision store: %w", err)
	}
	recorder, err := storage.NewRecorder(store, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build decision recorder: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		m = metrics.New(registry)
		metrics.Serve(cfg.Metrics.Listen, registry, logger)
	}

	orch := pipeline.NewOrchestrator(
		collector, engine, ledger, gate, sizer, sink, feed, recorder, m, logger,
		pipeline.Options{
			Interval:      cfg.Interval,
			TickDeadline:  cfg.TickDeadline(),
			StopLossPct:   cfg.Portfolio.StopLossPct,
			TakeProfitPct: cfg.Portfolio.TakeProfitPct,
			HoldOnError:   true,
		})

	return &App{
		Cfg:          cfg,
		Logger:       logger,
		Ledger:       ledger,
		Orchestrator: orch,
		Recorder:     recorder,
		Store:        store,
	}, nil
}

func (a *App) schedulerOptions() pipeline.SchedulerOptions {
	return pipeline.SchedulerOptions{
		SweepInterval:    time.Duration(a.Cfg.Portfolio.SweepSeconds) * time.Second,
		SnapshotInterval: time.Duration(a.Cfg.Portfolio.SnapshotSeconds) * time.Second,
		SnapshotPath:     a.Cfg.Portfolio.SnapshotPath,
	}
}

// Close flushes the decision recorder and the underlying store.
func (a *App) Close() {
	if a.Recorder != nil {
		if err := a.Recorder.Close(); err != nil {
			a.Logger.Warn("recorder shutdown", zap.Error(err))
		}
	}
}
