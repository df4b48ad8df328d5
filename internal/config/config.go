package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"stockmatrix/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the stockmatrix monitor.
type Config struct {
	Storage Storage                 `yaml:"storage"`
	Logging Logging                 `yaml:"logging"`
	Alpaca  Alpaca                  `yaml:"alpaca"`
	Notify  Notify                  `yaml:"notify"`
	Markets map[string]MarketConfig `yaml:"markets"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	OutputDir  string `yaml:"output_dir"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Notify configures the report dispatch channels.
type Notify struct {
	Resend   Resend   `yaml:"resend"`
	Telegram Telegram `yaml:"telegram"`
}

// Resend holds credentials for the Resend transactional mail API.
type Resend struct {
	APIKey string   `yaml:"api_key"`
	From   string   `yaml:"from"`
	To     []string `yaml:"to"`
}

// Telegram holds bot credentials for summary messages.
type Telegram struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// MarketConfig holds acquisition parameters for a single market run. It is
// the invocation surface of a per-market pipeline: everything a run needs
// beyond the market identifier and reference date.
type MarketConfig struct {
	// Universe selects the ticker-list source: "nasdaq" fetches the official
	// NASDAQ/NYSE symbol directories, "csv" reads UniversePath.
	Universe      string `yaml:"universe"`
	UniversePath  string `yaml:"universe_path"`
	UniverseCache string `yaml:"universe_cache"`

	// Source selects the price-history source: "yahoo" or "alpaca".
	Source string `yaml:"source"`

	Threshold   float64 `yaml:"threshold"`     // minimum success ratio, e.g. 0.95
	RetryLimit  int     `yaml:"retry_limit"`   // fetch attempts per symbol
	RateMinMS   int     `yaml:"rate_min_ms"`   // jitter lower bound
	RateMaxMS   int     `yaml:"rate_max_ms"`   // jitter upper bound
	MaxWorkers  int     `yaml:"max_workers"`   // concurrent fetch workers
	HistoryDays int     `yaml:"history_days"`  // lookback range for fetches
	Schedule    string  `yaml:"schedule"`      // cron spec for daemon mode
}

// RateBounds returns the jitter interval bounds as durations.
func (m MarketConfig) RateBounds() (time.Duration, time.Duration) {
	return time.Duration(m.RateMinMS) * time.Millisecond,
		time.Duration(m.RateMaxMS) * time.Millisecond
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Defaults observed in the upstream deployment. They are fallbacks only;
// every value is overridable per market in the YAML file.
const (
	DefaultThreshold   = 0.95
	DefaultRetryLimit  = 3
	DefaultRateMinMS   = 1000
	DefaultRateMaxMS   = 4000
	DefaultMaxWorkers  = 3
	DefaultHistoryDays = 730
)

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills per-market
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// Market returns the configuration for the given market. Unconfigured
// markets get a pure-defaults CSV-universe configuration so a run fails on
// the missing universe file rather than on a nil map lookup.
func (c *Config) Market(m domain.Market) MarketConfig {
	mc, ok := c.Markets[string(m)]
	if !ok {
		mc = MarketConfig{}
		fillMarketDefaults(&mc)
	}
	return mc
}

// Validate checks cross-field constraints that YAML decoding cannot express.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is required")
	}
	for name, mc := range c.Markets {
		if _, err := domain.ParseMarket(name); err != nil {
			return fmt.Errorf("markets: %w", err)
		}
		if mc.Threshold < 0 || mc.Threshold > 1 {
			return fmt.Errorf("markets.%s.threshold %v outside [0, 1]", name, mc.Threshold)
		}
		if mc.RateMaxMS < mc.RateMinMS {
			return fmt.Errorf("markets.%s: rate_max_ms < rate_min_ms", name)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Storage.OutputDir == "" {
		cfg.Storage.OutputDir = "output"
	}
	for name, mc := range cfg.Markets {
		fillMarketDefaults(&mc)
		cfg.Markets[name] = mc
	}
}

func fillMarketDefaults(mc *MarketConfig) {
	if mc.Universe == "" {
		mc.Universe = "csv"
	}
	if mc.Source == "" {
		mc.Source = "yahoo"
	}
	if mc.Threshold == 0 {
		mc.Threshold = DefaultThreshold
	}
	if mc.RetryLimit == 0 {
		mc.RetryLimit = DefaultRetryLimit
	}
	if mc.RateMinMS == 0 {
		mc.RateMinMS = DefaultRateMinMS
	}
	if mc.RateMaxMS == 0 {
		mc.RateMaxMS = DefaultRateMaxMS
	}
	if mc.MaxWorkers == 0 {
		mc.MaxWorkers = DefaultMaxWorkers
	}
	if mc.HistoryDays == 0 {
		mc.HistoryDays = DefaultHistoryDays
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		cfg.Storage.OutputDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		cfg.Notify.Resend.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notify.Telegram.ChatID = v
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
