package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
signalflow:
  name: signalflow
  version: 0.4.0
source:
  binance:
    base_url: https://fapi.binance.com
    timeout_seconds: 30
scanner:
  cache_duration_seconds: 60
  quote_asset: USDT
  retry:
    max_attempts: 5
    base_delay_seconds: 5
thresholds:
  minimum_open_interest_usd: 1000000
  funding_rate_high: 0.001
  funding_rate_low: -0.001
`

func TestLoadConfigValid(t *testing.T) {
	cfg, err := LoadConfig(writeTempConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Signalflow.Name != "signalflow" {
		t.Fatalf("unexpected name %q", cfg.Signalflow.Name)
	}
	if cfg.Scanner.CacheDuration() != 60*time.Second {
		t.Fatalf("unexpected cache duration %v", cfg.Scanner.CacheDuration())
	}
	if cfg.Source.Binance.Timeout() != 30*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.Source.Binance.Timeout())
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadConfigRejectsMissingName(t *testing.T) {
	body := `
signalflow:
  version: 0.4.0
source:
  binance:
    base_url: https://fapi.binance.com
scanner:
  quote_asset: USDT
  retry:
    max_attempts: 5
`
	if _, err := LoadConfig(writeTempConfig(t, body)); err == nil {
		t.Fatalf("expected validation error for missing name")
	}
}

func TestLoadConfigRejectsInvertedFundingThresholds(t *testing.T) {
	body := validConfig + `
`
	cfg, err := LoadConfig(writeTempConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Thresholds.FundingRateHigh = -0.01
	cfg.Thresholds.FundingRateLow = 0.01
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected validation error for inverted thresholds")
	}
}

func TestDurationDefaults(t *testing.T) {
	var scanner ScannerConfig
	if scanner.CacheDuration() != 60*time.Second {
		t.Fatalf("expected 60s default cache duration")
	}
	if scanner.InterCycleDelay() != time.Second {
		t.Fatalf("expected 1s default inter-cycle delay")
	}
	var thresholds ThresholdsConfig
	if thresholds.IPBanCooldown() != 10*time.Minute {
		t.Fatalf("expected 10m default ban cooldown")
	}
	if thresholds.BlacklistCooldown() != time.Hour {
		t.Fatalf("expected 1h default blacklist cooldown")
	}
}

func TestTelegramEnvOverride(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token-from-env")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	cfg, err := LoadConfig(writeTempConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Alerts.Telegram.Token != "token-from-env" || cfg.Alerts.Telegram.ChatID != "42" {
		t.Fatalf("expected telegram env overrides, got %+v", cfg.Alerts.Telegram)
	}
}
