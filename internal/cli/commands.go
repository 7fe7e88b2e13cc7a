package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/config"
	"github.com/dyike/TradeFuseGo/internal/logging"
	"github.com/dyike/TradeFuseGo/internal/pipeline"
	"github.com/dyike/TradeFuseGo/internal/portfolio"
)

const version = "1.0.0"

type appState struct {
	manager *config.Manager
	logger  *zap.Logger
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	state := &appState{}

	rootCmd := &cobra.Command{
		Use:   "tradefuse",
		Short: "TradeFuse - signal fusion trading pipeline",
		Long: `TradeFuse fuses directional votes from independent analysts into a single
trading decision per tick, then walks that decision through portfolio,
risk and sizing checks before handing it to the execution sink.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnv()

			configPath, _ := cmd.Flags().GetString("config")
			debug, _ := cmd.Flags().GetBool("debug")

			opts := []config.ManagerOption{config.WithInitialConfig(config.DefaultConfig())}
			if configPath != "" {
				opts = append(opts, config.WithConfigPath(configPath))
			}
			manager, err := config.NewManager(opts...)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			cfg := manager.Get()
			cfg.ApplyEnvOverrides()
			if debug {
				cfg.Debug = true
			}
			if err := manager.Update(cfg); err != nil {
				return fmt.Errorf("apply configuration: %w", err)
			}

			logger, err := logging.New(cfg.Debug)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}

			state.manager = manager
			state.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if state.logger != nil {
				_ = state.logger.Sync()
			}
		},
	}

	rootCmd.AddCommand(newRunCmd(state))
	rootCmd.AddCommand(newTickCmd(state))
	rootCmd.AddCommand(newStatusCmd(state))
	rootCmd.AddCommand(newConfigCmd(state))
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "Configuration file path")

	return rootCmd
}

// newRunCmd creates the continuous pipeline loop command
func newRunCmd(state *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the decision pipeline continuously",
		Long: `Run ticks every configured pair on the configured cadence until
interrupted. The background scheduler sweeps stop/target levels and
snapshots the portfolio alongside.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := state.manager.Get()
			app, err := buildApp(ctx, cfg, state.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := state.manager.Watch(ctx, func(next config.Config) {
				state.logger.Info("config file changed, restart to apply",
					zap.String("path", state.manager.Path()))
			}); err != nil {
				state.logger.Warn("config watch unavailable", zap.Error(err))
			}

			fmt.Println(renderBanner(cfg))
			err = app.Orchestrator.Run(ctx, pipeline.RunnerOptions{
				Pairs:        cfg.Pairs,
				TickInterval: cfg.TickInterval(),
				Scheduler:    app.schedulerOptions(),
				OnResult: func(res pipeline.TickResult) {
					fmt.Println(renderTickResult(res))
				},
			})
			if errors.Is(err, context.Canceled) {
				fmt.Println(renderShutdown(app.Ledger))
				return nil
			}
			return err
		},
	}
}

// newTickCmd creates the single-tick command
func newTickCmd(state *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "tick [PAIR]",
		Short: "Run one pipeline tick for a single pair",
		Long: `Run the full decision pipeline once for one trading pair and print
the terminal record. Example: tradefuse tick BTC/USDT`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := buildApp(ctx, state.manager.Get(), state.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			result := app.Orchestrator.RunTick(ctx, args[0])
			fmt.Println(renderTickResult(result))
			fmt.Println(renderPortfolio(app.Ledger))
			return nil
		},
	}
}

// newStatusCmd creates the portfolio status command
func newStatusCmd(state *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current portfolio state",
		Long:  "Rebuild the portfolio from the trade log and print balances, open positions and closed trades.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := state.manager.Get()
			ledger := portfolio.NewLedger(
				cfg.Portfolio.BaseCurrency,
				decimal.NewFromFloat(cfg.Portfolio.InitialBalance),
				portfolio.ExposureLimits{
					MaxTotalExposurePct:    cfg.Portfolio.MaxTotalExposurePct,
					MaxPerAssetExposurePct: cfg.Portfolio.MaxPerAssetExposurePct,
					MaxOpenTrades:          cfg.Portfolio.MaxOpenTrades,
				},
				state.logger,
				portfolio.WithTradeLog(portfolio.NewTradeLog(cfg.Portfolio.TradeLogPath, state.logger)),
			)
			fmt.Println(renderPortfolio(ledger))
			return nil
		},
	}
}

// newConfigCmd creates the config command group
func newConfigCmd(state *appState) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := state.manager.Get()
			cfg.LLM.APIKey = redact(cfg.LLM.APIKey)
			out, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := state.manager.Get()
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Printf("Configuration at %s is valid.\n", state.manager.Path())
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(state.manager.Path())
		},
	})

	return configCmd
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("TradeFuse v%s\n", version)
			fmt.Println("Signal fusion trading pipeline")
		},
	}
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
