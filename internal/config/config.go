// Package config defines all configuration for the arbitrage bot. Config is
// loaded from a YAML file with sensitive fields overridable via ARB_*
// environment variables, and validated before the engine starts so a bad
// config fails fast instead of mid-run.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"arbbot/internal/types"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	Mode        types.Mode       `mapstructure:"mode"`
	ConfirmLive bool             `mapstructure:"confirm_live"`
	Wallet      WalletConfig     `mapstructure:"wallet"`
	Registry    RegistryConfig   `mapstructure:"registry"`
	Discovery   DiscoveryConfig  `mapstructure:"discovery"`
	Risk        RiskConfig       `mapstructure:"risk"`
	Sizing      SizingConfig     `mapstructure:"sizing"`
	Execution   ExecutionConfig  `mapstructure:"execution"`
	Venues      []VenueConfig    `mapstructure:"venues"`
	Store       StoreConfig      `mapstructure:"store"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	Dashboard   DashboardConfig  `mapstructure:"dashboard"`
}

// WalletConfig holds settlement-layer credentials. Retained as a stub for
// venues (like Polymarket) that require an on-chain funding address even
// though this engine never submits on-chain settlement transactions itself
// (see DESIGN.md: on-chain settlement is an explicit Non-goal).
type WalletConfig struct {
	FunderAddress string `mapstructure:"funder_address"`
}

// RegistryConfig controls where the canonical event/mapping CSVs live.
// FlushInterval is parsed but not read by the engine, which saves the
// registry once, on Stop.
type RegistryConfig struct {
	EventsPath    string        `mapstructure:"events_path"`
	MappingsPath  string        `mapstructure:"mappings_path"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// DiscoveryConfig tunes the Discovery Engine's admission thresholds and
// polling cadence.
type DiscoveryConfig struct {
	MinEdgeBps     float64       `mapstructure:"min_edge_bps"`
	MinNotionalUSD float64       `mapstructure:"min_notional_usd"`
	MaxSlippageBps float64       `mapstructure:"max_slippage_bps"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

// RiskConfig sets the layered exposure caps and circuit-breaker thresholds
// the risk manager enforces before every trade.
type RiskConfig struct {
	MaxOpenRiskUSD          float64 `mapstructure:"max_open_risk_usd"`
	MaxPerTradeUSD          float64 `mapstructure:"max_per_trade_usd"`
	MaxPositionPerEventUSD  float64 `mapstructure:"max_position_per_event_usd"`
	MaxDrawdownPct          float64 `mapstructure:"max_drawdown_pct"`
	MinEdgeBps              float64 `mapstructure:"min_edge_bps"`
	MaxSlippageBps          float64 `mapstructure:"max_slippage_bps"`
	CircuitBreakerErrorRate float64 `mapstructure:"circuit_breaker_error_rate"`
	CircuitBreakerLatencyMs float64 `mapstructure:"circuit_breaker_latency_ms"`
}

// SizingConfig tunes the Kelly-fraction position sizer.
type SizingConfig struct {
	KellyMultiplier float64 `mapstructure:"kelly_multiplier"`
	InitialBankroll float64 `mapstructure:"initial_bankroll"`
}

// ExecutionConfig tunes the Atomic Execution Engine's retry policy.
type ExecutionConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// VenueConfig is one venue's connection parameters.
type VenueConfig struct {
	Venue       types.Venue `mapstructure:"venue"`
	BaseURL     string      `mapstructure:"base_url"`
	WSURL       string      `mapstructure:"ws_url"`
	APIKey      string      `mapstructure:"api_key"`
	MakerBps    float64     `mapstructure:"maker_bps"`
	TakerBps    float64     `mapstructure:"taker_bps"`
	GasEstimate float64     `mapstructure:"gas_estimate_usd"`
}

// StoreConfig sets where position/trade data is persisted (JSON snapshots).
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// LoggingConfig selects the slog handler and level.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the web dashboard server.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides for the scalar
// keys (ARB_ prefix, "." replaced by "_"), e.g. ARB_WALLET_FUNDER_ADDRESS.
// Entries of the venues list are not overridden from the environment:
// each venue's api_key comes from the YAML file only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if addr := os.Getenv("ARB_WALLET_FUNDER_ADDRESS"); addr != "" {
		cfg.Wallet.FunderAddress = addr
	}
	if mode := os.Getenv("ARB_MODE"); mode != "" {
		cfg.Mode = types.Mode(mode)
	}
	if os.Getenv("ARB_CONFIRM_LIVE") == "true" || os.Getenv("ARB_CONFIRM_LIVE") == "1" {
		cfg.ConfirmLive = true
	}

	return &cfg, nil
}

// Validate checks all required fields, value ranges, and the live-mode
// confirmation gate.
func (c *Config) Validate() error {
	switch c.Mode {
	case types.ModePaper, types.ModeLive, types.ModeBacktest:
	default:
		return fmt.Errorf("mode must be one of paper, live, backtest; got %q", c.Mode)
	}

	if c.Mode == types.ModeLive && !c.ConfirmLive {
		return fmt.Errorf("mode=live requires confirm_live=true (set ARB_CONFIRM_LIVE=true) as an explicit safety gate")
	}

	if len(c.Venues) < 2 {
		return fmt.Errorf("at least 2 venues are required to discover cross-venue arbitrage")
	}
	seen := make(map[types.Venue]bool, len(c.Venues))
	for _, vc := range c.Venues {
		if vc.Venue == "" {
			return fmt.Errorf("venues[].venue is required")
		}
		if seen[vc.Venue] {
			return fmt.Errorf("duplicate venue configured: %s", vc.Venue)
		}
		seen[vc.Venue] = true
		if c.Mode != types.ModeBacktest && vc.BaseURL == "" {
			return fmt.Errorf("venues[%s].base_url is required outside backtest mode", vc.Venue)
		}
	}

	if c.Risk.MaxOpenRiskUSD <= 0 {
		return fmt.Errorf("risk.max_open_risk_usd must be > 0")
	}
	if c.Risk.MaxPerTradeUSD <= 0 {
		return fmt.Errorf("risk.max_per_trade_usd must be > 0")
	}
	if c.Risk.MaxPositionPerEventUSD <= 0 {
		return fmt.Errorf("risk.max_position_per_event_usd must be > 0")
	}
	if c.Sizing.KellyMultiplier <= 0 || c.Sizing.KellyMultiplier > 1 {
		return fmt.Errorf("sizing.kelly_multiplier must be in (0, 1]")
	}
	if c.Sizing.InitialBankroll <= 0 {
		return fmt.Errorf("sizing.initial_bankroll must be > 0")
	}
	if c.Discovery.MinNotionalUSD <= 0 {
		return fmt.Errorf("discovery.min_notional_usd must be > 0")
	}

	return nil
}
