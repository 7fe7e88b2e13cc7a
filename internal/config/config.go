package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the full runtime configuration. It is loaded once at startup,
// validated, and handed to component constructors as an immutable value;
// components never read it back through a global.
type Config struct {
	ProjectDir string `json:"project_dir"`
	DataDir    string `json:"data_dir"`
	ResultsDir string `json:"results_dir"`

	Pairs        []string `json:"pairs"`
	Interval     string   `json:"interval"`
	TickSeconds  int      `json:"tick_seconds"`
	TickTimeout  int      `json:"tick_timeout_seconds"`
	Debug        bool     `json:"debug"`

	LLM       LLMConfig       `json:"llm"`
	Fusion    FusionConfig    `json:"fusion"`
	Portfolio PortfolioConfig `json:"portfolio"`
	Risk      RiskConfig      `json:"risk"`
	Sizing    SizingConfig    `json:"sizing"`
	Execution ExecutionConfig `json:"execution"`
	Metrics   MetricsConfig   `json:"metrics"`
}

// LLMConfig configures the language-model fallback client.
type LLMConfig struct {
	Provider       string `json:"provider"` // openai | deepseek
	Model          string `json:"model"`
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	MaxTokens      int    `json:"max_tokens"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// FusionConfig configures the decision fusion engine.
type FusionConfig struct {
	// Weights maps analyst source id to its fusion weight. Sources absent
	// from the map weigh 1.0.
	Weights             map[string]float64 `json:"weights"`
	ConfidenceThreshold float64            `json:"confidence_threshold"`
	FallbackEnabled     bool               `json:"fallback_enabled"`
}

// PortfolioConfig configures the ledger and its durable state.
type PortfolioConfig struct {
	BaseCurrency           string  `json:"base_currency"`
	InitialBalance         float64 `json:"initial_balance"`
	MaxTotalExposurePct    float64 `json:"max_total_exposure_pct"`
	MaxPerAssetExposurePct float64 `json:"max_per_asset_exposure_pct"`
	MaxOpenTrades          int     `json:"max_open_trades"`
	// StopLossPct/TakeProfitPct of 0 leave the level unset on new
	// positions. The sweep only auto-closes positions with both levels.
	StopLossPct            float64 `json:"stop_loss_pct"`
	TakeProfitPct          float64 `json:"take_profit_pct"`
	TradeLogPath           string  `json:"trade_log_path"`
	SnapshotPath           string  `json:"snapshot_path"`
	SnapshotSeconds        int     `json:"snapshot_seconds"`
	SweepSeconds           int     `json:"sweep_seconds"`
}

// RiskConfig configures the risk gate battery.
type RiskConfig struct {
	Enabled              bool     `json:"enabled"`
	MaxPositionSizePct   float64  `json:"max_position_size_pct"`
	MinConfidence        float64  `json:"min_confidence"`
	MaxConfidence        float64  `json:"max_confidence"`
	MaxVolatility        float64  `json:"max_volatility"`
	MaxConcurrent        int      `json:"max_concurrent_positions"`
	MinTradeIntervalSecs int      `json:"min_trade_interval_seconds"`
	MaxTradesPerDay      int      `json:"max_trades_per_day"`
	RestrictedSymbols    []string `json:"restricted_symbols"`
	MaxDrawdownPct       float64  `json:"max_drawdown_pct"`
	RejectionLogPath     string   `json:"rejection_log_path"`
}

// SizingConfig configures the position sizer.
type SizingConfig struct {
	Strategy string `json:"strategy"` // confidence | volatility | combined
	// ConfidenceMap maps confidence levels (JSON keys, e.g. "50") to
	// position fractions; the sizer interpolates linearly between points.
	ConfidenceMap        map[string]float64 `json:"confidence_map"`
	MinSize              float64            `json:"min_size"`
	MaxSize              float64            `json:"max_size"`
	DefaultSize          float64            `json:"default_size"`
	RiskPerTrade         float64            `json:"risk_per_trade"`
	MaxVolatility        float64            `json:"max_volatility"`
	VolatilityMultiplier float64            `json:"volatility_multiplier"`
	ConfidenceWeight     float64            `json:"confidence_weight"`
	VolatilityWeight     float64            `json:"volatility_weight"`
	VolatilityLookback   int                `json:"volatility_lookback"`
}

// ExecutionConfig selects and configures the execution sink.
type ExecutionConfig struct {
	Mode           string `json:"mode"` // paper | http
	Endpoint       string `json:"endpoint"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// MetricsConfig configures the optional Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	return DefaultConfigWithRoot(currentDir)
}

func DefaultConfigWithRoot(root string) *Config {
	dataDir := filepath.Join(root, "data")
	return &Config{
		ProjectDir:  root,
		DataDir:     dataDir,
		ResultsDir:  filepath.Join(root, "results"),
		Pairs:       []string{"BTC/USDT", "ETH/USDT"},
		Interval:    "1h",
		TickSeconds: 60,
		TickTimeout: 45,

		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			BaseURL:        "https://api.openai.com/v1",
			MaxTokens:      1024,
			TimeoutSeconds: 20,
		},
		Fusion: FusionConfig{
			Weights:             map[string]float64{},
			ConfidenceThreshold: 70,
			FallbackEnabled:     true,
		},
		Portfolio: PortfolioConfig{
			BaseCurrency:           "USDT",
			InitialBalance:         10000,
			MaxTotalExposurePct:    85,
			MaxPerAssetExposurePct: 40,
			MaxOpenTrades:          5,
			StopLossPct:            5,
			TakeProfitPct:          10,
			TradeLogPath:           filepath.Join(dataDir, "trades.jsonl"),
			SnapshotPath:           filepath.Join(dataDir, "portfolio_snapshot.json"),
			SnapshotSeconds:        300,
			SweepSeconds:           30,
		},
		Risk: RiskConfig{
			Enabled:              true,
			MaxPositionSizePct:   25,
			MinConfidence:        40,
			MaxConfidence:        98,
			MaxVolatility:        0.12,
			MaxConcurrent:        5,
			MinTradeIntervalSecs: 300,
			MaxTradesPerDay:      10,
			RestrictedSymbols:    []string{},
			MaxDrawdownPct:       20,
			RejectionLogPath:     filepath.Join(dataDir, "risk_rejections.jsonl"),
		},
		Sizing: SizingConfig{
			Strategy:             "combined",
			ConfidenceMap:        map[string]float64{"50": 0.05, "70": 0.10, "90": 0.25},
			MinSize:              0.01,
			MaxSize:              0.25,
			DefaultSize:          0.05,
			RiskPerTrade:         0.01,
			MaxVolatility:        0.10,
			VolatilityMultiplier: 2.0,
			ConfidenceWeight:     0.7,
			VolatilityWeight:     0.3,
			VolatilityLookback:   30,
		},
		Execution: ExecutionConfig{
			Mode:           "paper",
			TimeoutSeconds: 10,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9109",
		},
	}
}

// TickInterval returns the tick cadence as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// TickDeadline returns the per-tick deadline.
func (c *Config) TickDeadline() time.Duration {
	return time.Duration(c.TickTimeout) * time.Second
}

func (c *Config) Validate() error {
	if len(c.Pairs) == 0 {
		return fmt.Errorf("config: at least one trading pair is required")
	}
	if c.TickSeconds <= 0 {
		return fmt.Errorf("config: tick_seconds must be positive")
	}
	if c.TickTimeout <= 0 || c.TickTimeout > c.TickSeconds*10 {
		return fmt.Errorf("config: tick_timeout_seconds out of range")
	}
	if c.Fusion.ConfidenceThreshold < 0 || c.Fusion.ConfidenceThreshold > 100 {
		return fmt.Errorf("config: fusion confidence_threshold must be in [0,100]")
	}
	for source, w := range c.Fusion.Weights {
		if w < 0 {
			return fmt.Errorf("config: fusion weight for %s is negative", source)
		}
	}
	if c.Portfolio.InitialBalance < 0 {
		return fmt.Errorf("config: initial_balance must not be negative")
	}
	if c.Portfolio.MaxTotalExposurePct <= 0 || c.Portfolio.MaxTotalExposurePct > 100 {
		return fmt.Errorf("config: max_total_exposure_pct must be in (0,100]")
	}
	if c.Portfolio.MaxPerAssetExposurePct <= 0 || c.Portfolio.MaxPerAssetExposurePct > 100 {
		return fmt.Errorf("config: max_per_asset_exposure_pct must be in (0,100]")
	}
	if c.Portfolio.MaxOpenTrades <= 0 {
		return fmt.Errorf("config: max_open_trades must be positive")
	}
	if c.Sizing.MinSize <= 0 || c.Sizing.MaxSize < c.Sizing.MinSize {
		return fmt.Errorf("config: sizing min/max out of order")
	}
	switch c.Sizing.Strategy {
	case "confidence", "volatility", "combined":
	default:
		return fmt.Errorf("config: unknown sizing strategy %q", c.Sizing.Strategy)
	}
	switch c.Execution.Mode {
	case "paper", "http":
	default:
		return fmt.Errorf("config: unknown execution mode %q", c.Execution.Mode)
	}
	if c.Execution.Mode == "http" && c.Execution.Endpoint == "" {
		return fmt.Errorf("config: execution endpoint required in http mode")
	}
	return nil
}

// EnsureDirectories creates the directories durable state is written to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.DataDir, c.ResultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
