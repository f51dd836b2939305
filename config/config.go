package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Signalflow  SignalflowConfig  `yaml:"signalflow"`
	Server      ServerConfig      `yaml:"server"`
	Source      SourceConfig      `yaml:"source"`
	Scanner     ScannerConfig     `yaml:"scanner"`
	Thresholds  ThresholdsConfig  `yaml:"thresholds"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	PaperTrader PaperTraderConfig `yaml:"papertrader"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type SignalflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ServerConfig struct {
	Address   string `yaml:"address"`
	StaticDir string `yaml:"static_dir"`
}

type SourceConfig struct {
	Binance BinanceSourceConfig `yaml:"binance"`
}

type BinanceSourceConfig struct {
	BaseURL        string               `yaml:"base_url"`
	TimeoutSeconds int                  `yaml:"timeout_seconds"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns           int `yaml:"max_idle_conns"`
	MaxConnsPerHost        int `yaml:"max_conns_per_host"`
	IdleConnTimeoutSeconds int `yaml:"idle_conn_timeout_seconds"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ScannerConfig struct {
	CacheDurationSeconds int         `yaml:"cache_duration_seconds"`
	CycleBudgetSeconds   int         `yaml:"cycle_budget_seconds"`
	InterCycleDelayMs    int         `yaml:"inter_cycle_delay_ms"`
	PrewarmTopSymbols    int         `yaml:"prewarm_top_symbols"`
	QuoteAsset           string      `yaml:"quote_asset"`
	ReferenceSymbol      string      `yaml:"reference_symbol"`
	Retry                RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts       int `yaml:"max_attempts"`
	BaseDelaySeconds  int `yaml:"base_delay_seconds"`
	MaxDelaySeconds   int `yaml:"max_delay_seconds"`
	BackoffMultiplier int `yaml:"backoff_multiplier"`
}

type ThresholdsConfig struct {
	MinimumOpenInterestUSD float64 `yaml:"minimum_open_interest_usd"`
	FundingRateHigh        float64 `yaml:"funding_rate_high"`
	FundingRateLow         float64 `yaml:"funding_rate_low"`
	AlertScore             float64 `yaml:"alert_score"`
	TradeScore             float64 `yaml:"trade_score"`
	DivergenceUIBullish    float64 `yaml:"divergence_ui_threshold_bullish"`
	DivergenceUIBearish    float64 `yaml:"divergence_ui_threshold_bearish"`
	BlacklistCooldownHours int     `yaml:"blacklist_cooldown_hours"`
	IPBanCooldownMinutes   int     `yaml:"ip_blacklist_cooldown_minutes"`
}

type AlertsConfig struct {
	Enabled   bool           `yaml:"enabled"`
	SignalLog string         `yaml:"signal_log"`
	Telegram  TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id"`
}

type PaperTraderConfig struct {
	Enabled           bool    `yaml:"enabled"`
	PortfolioFile     string  `yaml:"portfolio_file"`
	LedgerDB          string  `yaml:"ledger_db"`
	StartingBalance   float64 `yaml:"starting_balance"`
	PositionSize      float64 `yaml:"position_size"`
	TakeProfitPercent float64 `yaml:"take_profit_percent"`
	StopLossPercent   float64 `yaml:"stop_loss_percent"`
}

type StorageConfig struct {
	S3                   S3Config `yaml:"s3"`
	BatchSize            int      `yaml:"batch_size"`
	FlushIntervalSeconds int      `yaml:"flush_interval_seconds"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type LoggingConfig struct {
	Level                 string `yaml:"level"`
	Format                string `yaml:"format"`
	Output                string `yaml:"output"`
	MaxAge                int    `yaml:"max_age"`
	ReportIntervalSeconds int    `yaml:"report_interval_seconds"`
}

// Timeout returns the per-request upstream timeout.
func (c BinanceSourceConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IdleConnTimeout returns the connection-pool idle timeout.
func (c ConnectionPoolConfig) IdleConnTimeout() time.Duration {
	if c.IdleConnTimeoutSeconds <= 0 {
		return 90 * time.Second
	}
	return time.Duration(c.IdleConnTimeoutSeconds) * time.Second
}

// CacheDuration returns how long a cached record counts as fresh.
func (c ScannerConfig) CacheDuration() time.Duration {
	if c.CacheDurationSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.CacheDurationSeconds) * time.Second
}

// CycleBudget returns the wall-clock budget one full pass is paced over.
func (c ScannerConfig) CycleBudget() time.Duration {
	if c.CycleBudgetSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.CycleBudgetSeconds) * time.Second
}

// InterCycleDelay returns the cool-down between cycles.
func (c ScannerConfig) InterCycleDelay() time.Duration {
	if c.InterCycleDelayMs <= 0 {
		return time.Second
	}
	return time.Duration(c.InterCycleDelayMs) * time.Millisecond
}

// IPBanCooldown returns how long the upstream client pauses after a ban.
func (c ThresholdsConfig) IPBanCooldown() time.Duration {
	minutes := c.IPBanCooldownMinutes
	if minutes <= 0 {
		minutes = 10
	}
	return time.Duration(minutes) * time.Minute
}

// BlacklistCooldown returns the per-symbol alert suppression window.
func (c ThresholdsConfig) BlacklistCooldown() time.Duration {
	hours := c.BlacklistCooldownHours
	if hours <= 0 {
		hours = 1
	}
	return time.Duration(hours) * time.Hour
}

// FlushInterval returns the archiver flush interval.
func (c StorageConfig) FlushInterval() time.Duration {
	if c.FlushIntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

// ReportInterval returns the periodic logger report interval.
func (c LoggingConfig) ReportInterval() time.Duration {
	if c.ReportIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ReportIntervalSeconds) * time.Second
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Alerts.Telegram.Token = strings.TrimSpace(v)
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Alerts.Telegram.ChatID = strings.TrimSpace(v)
	}
	if cfg.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cfg.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cfg.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			cfg.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Signalflow.Name == "" {
		return fmt.Errorf("signalflow.name is required")
	}
	if cfg.Signalflow.Version == "" {
		return fmt.Errorf("signalflow.version is required")
	}

	if cfg.Source.Binance.BaseURL == "" {
		return fmt.Errorf("source.binance.base_url is required")
	}
	if !strings.HasPrefix(cfg.Source.Binance.BaseURL, "http") {
		return fmt.Errorf("source.binance.base_url '%s' is invalid", cfg.Source.Binance.BaseURL)
	}

	if cfg.Scanner.QuoteAsset == "" {
		return fmt.Errorf("scanner.quote_asset is required")
	}
	if cfg.Scanner.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("scanner.retry.max_attempts must be greater than 0")
	}

	if cfg.Thresholds.MinimumOpenInterestUSD < 0 {
		return fmt.Errorf("thresholds.minimum_open_interest_usd must not be negative")
	}
	if cfg.Thresholds.FundingRateHigh < cfg.Thresholds.FundingRateLow {
		return fmt.Errorf("thresholds.funding_rate_high must not be below funding_rate_low")
	}

	if cfg.PaperTrader.Enabled {
		if cfg.PaperTrader.PortfolioFile == "" {
			return fmt.Errorf("papertrader.portfolio_file is required when the paper trader is enabled")
		}
		if cfg.PaperTrader.StartingBalance <= 0 {
			return fmt.Errorf("papertrader.starting_balance must be greater than 0")
		}
		if cfg.PaperTrader.PositionSize <= 0 {
			return fmt.Errorf("papertrader.position_size must be greater than 0")
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
	}

	return nil
}
