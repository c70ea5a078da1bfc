package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"yield-rebalancer/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Logging       logging.Config      `mapstructure:"logging"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Ethereum      EthereumConfig      `mapstructure:"ethereum"`
	Quote         QuoteConfig         `mapstructure:"quote"`
	Oracle        OracleConfig        `mapstructure:"oracle"`
	Guard         GuardConfig         `mapstructure:"guard"`
	Profitability ProfitabilityConfig `mapstructure:"profitability"`
	Approval      ApprovalConfig      `mapstructure:"approval"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Position      PositionConfig      `mapstructure:"position"`
	Markets       MarketsConfig       `mapstructure:"markets"`
	Alerting      AlertingConfig      `mapstructure:"alerting"`
	Export        ExportConfig        `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the decision journal.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs rebalance scan cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// EthereumConfig covers on-chain data access.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RouterAddress  string        `mapstructure:"router_address"`
	NativeSymbol   string        `mapstructure:"native_symbol"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// QuoteConfig captures DEX quote API connectivity.
type QuoteConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PriceQuality   string        `mapstructure:"price_quality"`
	FeeTierBps     int           `mapstructure:"fee_tier_bps"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// OracleConfig wires price feeds and the staleness policy.
type OracleConfig struct {
	Feeds            map[string]string `mapstructure:"feeds"`
	StalenessWindow  time.Duration     `mapstructure:"staleness_window"`
	Strict           bool              `mapstructure:"strict"`
	RequestTimeout   time.Duration     `mapstructure:"request_timeout"`
	GasPriceCacheTTL time.Duration     `mapstructure:"gas_price_cache_ttl"`
}

// GuardConfig sets slippage-guard tolerances.
type GuardConfig struct {
	SlippageBps     int64   `mapstructure:"slippage_bps"`
	MaxDeviationPct float64 `mapstructure:"max_deviation_pct"`
	DeadlineSeconds int64   `mapstructure:"deadline_seconds"`
}

// ProfitabilityConfig sets rebalance decision thresholds and static gas units.
type ProfitabilityConfig struct {
	MinAnnualGainUSD float64 `mapstructure:"min_annual_gain_usd"`
	MaxBreakEvenDays int64   `mapstructure:"max_break_even_days"`
	MaxCostPct       float64 `mapstructure:"max_cost_pct"`
	GasWithdrawUnits int64   `mapstructure:"gas_withdraw_units"`
	GasApproveUnits  int64   `mapstructure:"gas_approve_units"`
	GasSwapUnits     int64   `mapstructure:"gas_swap_units"`
	GasDepositUnits  int64   `mapstructure:"gas_deposit_units"`
}

// ApprovalConfig sets the manual-approval notional threshold.
type ApprovalConfig struct {
	ThresholdUSD float64 `mapstructure:"threshold_usd"`
}

// PipelineConfig governs swap safety pipeline execution.
type PipelineConfig struct {
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
	DryRun       bool          `mapstructure:"dry_run"`
}

// PositionConfig describes the lending position being managed.
type PositionConfig struct {
	Protocol    string  `mapstructure:"protocol"`
	Token       string  `mapstructure:"token"`
	SizeUSD     float64 `mapstructure:"size_usd"`
	CurrentAPY  float64 `mapstructure:"current_apy"`
	FromAddress string  `mapstructure:"from_address"`
}

// MarketsConfig points at the lending market snapshot source.
type MarketsConfig struct {
	SourceURL      string        `mapstructure:"source_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REBALANCER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "yieldrebalancer")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("ethereum.native_symbol", "ETH")
	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("quote.base_url", "https://api.cow.fi/mainnet/api/v1")
	v.SetDefault("quote.price_quality", "optimal")
	v.SetDefault("quote.fee_tier_bps", 30)
	v.SetDefault("quote.request_timeout", "10s")
	v.SetDefault("quote.user_agent", "yieldrebalancer/1.0")

	v.SetDefault("oracle.staleness_window", "1h")
	v.SetDefault("oracle.strict", true)
	v.SetDefault("oracle.request_timeout", "10s")
	v.SetDefault("oracle.gas_price_cache_ttl", "30s")

	v.SetDefault("guard.slippage_bps", 50)
	v.SetDefault("guard.max_deviation_pct", 2.0)
	v.SetDefault("guard.deadline_seconds", 600)

	v.SetDefault("profitability.min_annual_gain_usd", 10.0)
	v.SetDefault("profitability.max_break_even_days", 180)
	v.SetDefault("profitability.max_cost_pct", 1.0)
	v.SetDefault("profitability.gas_withdraw_units", 250000)
	v.SetDefault("profitability.gas_approve_units", 55000)
	v.SetDefault("profitability.gas_swap_units", 180000)
	v.SetDefault("profitability.gas_deposit_units", 220000)

	v.SetDefault("approval.threshold_usd", 10000.0)

	v.SetDefault("pipeline.stage_timeout", "10s")
	v.SetDefault("pipeline.dry_run", true)

	v.SetDefault("markets.request_timeout", "10s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs sanity checks on configuration values. Out-of-range
// tolerances are rejected here rather than at first use.
func (c *Config) Validate() error {
	if c.Guard.SlippageBps < 0 || c.Guard.SlippageBps > 10000 {
		return fmt.Errorf("guard.slippage_bps must be within [0, 10000], got %d", c.Guard.SlippageBps)
	}
	if c.Guard.MaxDeviationPct < 0 {
		return fmt.Errorf("guard.max_deviation_pct cannot be negative")
	}
	if c.Guard.DeadlineSeconds <= 0 {
		return fmt.Errorf("guard.deadline_seconds must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Profitability.MinAnnualGainUSD < 0 {
		return fmt.Errorf("profitability.min_annual_gain_usd cannot be negative")
	}
	if c.Profitability.MaxBreakEvenDays <= 0 {
		return fmt.Errorf("profitability.max_break_even_days must be greater than zero")
	}
	if c.Profitability.MaxCostPct <= 0 {
		return fmt.Errorf("profitability.max_cost_pct must be greater than zero")
	}
	if c.Approval.ThresholdUSD < 0 {
		return fmt.Errorf("approval.threshold_usd cannot be negative")
	}
	if c.Pipeline.StageTimeout <= 0 {
		return fmt.Errorf("pipeline.stage_timeout must be greater than zero")
	}
	if c.Position.SizeUSD < 0 {
		return fmt.Errorf("position.size_usd cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
