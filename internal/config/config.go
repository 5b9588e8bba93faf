// Package config provides configuration management for the trading application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"

	"daily-equity-trader/internal/logging"
)

// Fee model types.
const (
	FeePerTrade = "per_trade"
	FeeBps      = "bps"
)

// Ledger backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Decision engines.
const (
	EngineFile = "file"
	EngineLLM  = "llm"
)

// Config holds all application configuration.
type Config struct {
	Trading       TradingConfig      `mapstructure:"trading"`
	Pricing       PricingConfig      `mapstructure:"pricing"`
	Indicators    IndicatorConfig    `mapstructure:"indicators"`
	Paths         PathConfig         `mapstructure:"paths"`
	Ledger        LedgerConfig       `mapstructure:"ledger"`
	Decision      DecisionConfig     `mapstructure:"decision"`
	Logging       logging.LogConfig  `mapstructure:"logging"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Credentials   Credentials        `mapstructure:"-"` // Loaded separately

	// Dir is the directory the configuration was loaded from. Relative paths
	// are resolved against it.
	Dir string `mapstructure:"-"`
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	Mode            string  `mapstructure:"mode"` // only "paper" is supported
	KillSwitch      bool    `mapstructure:"kill_switch"`
	StrategyProfile string  `mapstructure:"strategy_profile"`
	InitialCash     float64 `mapstructure:"initial_cash"`
}

// FeeModel describes how a per-order fee is charged.
type FeeModel struct {
	Type  string  `mapstructure:"type" json:"type"` // per_trade | bps
	Value float64 `mapstructure:"value" json:"value"`
}

// PricingConfig holds the paper execution cost model.
type PricingConfig struct {
	SlippageBps    float64  `mapstructure:"slippage_bps" json:"slippage_bps"`
	StampDutyBps   float64  `mapstructure:"stamp_duty_bps" json:"stamp_duty_bps"`
	FeeModel       FeeModel `mapstructure:"fee_model" json:"fee_model"`
	SettlementDays int      `mapstructure:"settlement_days" json:"settlement_days"`
}

// IndicatorConfig holds indicator pipeline configuration.
type IndicatorConfig struct {
	MinRows int `mapstructure:"min_rows"`
	Workers int `mapstructure:"workers"`
}

// PathConfig holds the locations of the files a cycle reads and writes.
type PathConfig struct {
	DataDir   string `mapstructure:"data_dir"`
	OutputDir string `mapstructure:"output_dir"`
	Universe  string `mapstructure:"universe"`
	Holidays  string `mapstructure:"holidays"`
	Ledger    string `mapstructure:"ledger"`
	BarsDir   string `mapstructure:"bars_dir"`
	Database  string `mapstructure:"database"`
	TradeLog  string `mapstructure:"trade_log"`
}

// LedgerConfig selects where the ledger is persisted.
type LedgerConfig struct {
	Backend string `mapstructure:"backend"` // json | sqlite
}

// DecisionConfig configures the decision collaborator.
type DecisionConfig struct {
	Engine       string `mapstructure:"engine"` // file | llm
	InboxDir     string `mapstructure:"inbox_dir"`
	Model        string `mapstructure:"model"`
	MaxTokens    int    `mapstructure:"max_tokens"`
	SystemPrompt string `mapstructure:"system_prompt"`
	BaseURL      string `mapstructure:"base_url"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Level   string        `mapstructure:"level"` // all, trades_only, errors_only
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// Credentials holds API credentials.
type Credentials struct {
	OpenAI OpenAICredentials `mapstructure:"openai"`
}

// OpenAICredentials holds OpenAI API credentials.
type OpenAICredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/daily-equity-trader"
	}
	return filepath.Join(home, ".config", "daily-equity-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{Dir: configDir}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.kill_switch", false)
	v.SetDefault("trading.strategy_profile", "trend_pullback")
	v.SetDefault("trading.initial_cash", 10000.0)

	v.SetDefault("pricing.slippage_bps", 10.0)
	v.SetDefault("pricing.stamp_duty_bps", 50.0)
	v.SetDefault("pricing.fee_model.type", FeePerTrade)
	v.SetDefault("pricing.fee_model.value", 0.0)
	v.SetDefault("pricing.settlement_days", 1)

	v.SetDefault("indicators.min_rows", 20)
	v.SetDefault("indicators.workers", 4)

	v.SetDefault("paths.data_dir", "data")
	v.SetDefault("paths.output_dir", "output")
	v.SetDefault("paths.universe", "universe.csv")
	v.SetDefault("paths.holidays", "holidays.yaml")
	v.SetDefault("paths.ledger", "positions.json")
	v.SetDefault("paths.bars_dir", "data/bars")
	v.SetDefault("paths.database", "trader.db")
	v.SetDefault("paths.trade_log", "logs/trade_log.json")

	v.SetDefault("ledger.backend", BackendJSON)

	v.SetDefault("decision.engine", EngineFile)
	v.SetDefault("decision.inbox_dir", "inbox")
	v.SetDefault("decision.model", "gpt-4o-mini")
	v.SetDefault("decision.max_tokens", 8000)
	v.SetDefault("decision.system_prompt", "system_prompt.txt")

	def := logging.DefaultLogConfig()
	v.SetDefault("logging.level", def.Level)
	v.SetDefault("logging.console", def.Console)
	v.SetDefault("logging.file", def.File)
	v.SetDefault("logging.file_path", "logs/trader.log")
	v.SetDefault("logging.max_size", def.MaxSize)
	v.SetDefault("logging.max_backups", def.MaxBackups)
	v.SetDefault("logging.max_age", def.MaxAge)

	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.level", "all")
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// First run: write a commented template and carry on with defaults.
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}
	if v := os.Getenv("TRADER_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("TRADER_KILL_SWITCH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Trading.KillSwitch = b
		}
	}
	if v := os.Getenv("TRADER_DECISION_ENGINE"); v != "" {
		cfg.Decision.Engine = v
	}
}

// resolvePaths makes every relative path absolute against the config directory.
func (c *Config) resolvePaths() {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.Dir, *p)
		}
	}
	resolve(&c.Paths.DataDir)
	resolve(&c.Paths.OutputDir)
	resolve(&c.Paths.Universe)
	resolve(&c.Paths.Holidays)
	resolve(&c.Paths.Ledger)
	resolve(&c.Paths.BarsDir)
	resolve(&c.Paths.Database)
	resolve(&c.Paths.TradeLog)
	resolve(&c.Decision.InboxDir)
	resolve(&c.Decision.SystemPrompt)
	resolve(&c.Logging.FilePath)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trading.Mode != "" && c.Trading.Mode != "paper" {
		return fmt.Errorf("invalid trading mode: %s (only 'paper' is supported)", c.Trading.Mode)
	}
	if err := c.Pricing.Validate(); err != nil {
		return err
	}
	if c.Indicators.MinRows < 1 {
		return fmt.Errorf("indicators.min_rows must be at least 1")
	}
	switch c.Ledger.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("invalid ledger backend: %s (must be 'json' or 'sqlite')", c.Ledger.Backend)
	}
	switch c.Decision.Engine {
	case EngineFile, EngineLLM:
	default:
		return fmt.Errorf("invalid decision engine: %s (must be 'file' or 'llm')", c.Decision.Engine)
	}
	return nil
}

// Validate checks the cost model.
func (p PricingConfig) Validate() error {
	if p.SlippageBps < 0 {
		return fmt.Errorf("pricing.slippage_bps must be non-negative")
	}
	if p.SlippageBps >= 10000 {
		return fmt.Errorf("pricing.slippage_bps must be below 10000")
	}
	if p.StampDutyBps < 0 {
		return fmt.Errorf("pricing.stamp_duty_bps must be non-negative")
	}
	if p.SettlementDays < 0 {
		return fmt.Errorf("pricing.settlement_days must be non-negative")
	}
	switch p.FeeModel.Type {
	case FeePerTrade, FeeBps:
	default:
		return fmt.Errorf("invalid fee model type: %s (must be 'per_trade' or 'bps')", p.FeeModel.Type)
	}
	if p.FeeModel.Value < 0 {
		return fmt.Errorf("pricing.fee_model.value must be non-negative")
	}
	return nil
}

// DefaultPricing returns the cost model used when none is configured.
func DefaultPricing() PricingConfig {
	return PricingConfig{
		SlippageBps:    10,
		StampDutyBps:   50,
		FeeModel:       FeeModel{Type: FeePerTrade, Value: 0},
		SettlementDays: 1,
	}
}
