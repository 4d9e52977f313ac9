package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// TelemetryConfig controls the optional OTLP trace exporter.
type TelemetryConfig struct {
	Enable   bool   `toml:"Enable"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
}

// Config captures runtime configuration for the escrow service.
type Config struct {
	ListenAddress      string          `toml:"ListenAddress"`
	Environment        string          `toml:"Environment"`
	LedgerPath         string          `toml:"LedgerPath"`
	AuditPath          string          `toml:"AuditPath"`
	JWTSecretEnv       string          `toml:"JWTSecretEnv"`
	LeaseWaitBudget    string          `toml:"LeaseWaitBudget"`
	IdempotencyTTL     string          `toml:"IdempotencyTTL"`
	RateLimitPerMinute float64         `toml:"RateLimitPerMinute"`
	RateLimitBurst     int             `toml:"RateLimitBurst"`
	Telemetry          TelemetryConfig `toml:"Telemetry"`
}

const defaultConfigTemplate = `ListenAddress = ":8090"
Environment = "dev"
LedgerPath = "escrowd.db"
AuditPath = "escrowd-audit.db"
JWTSecretEnv = "ESCROWD_JWT_SECRET"
LeaseWaitBudget = "3s"
IdempotencyTTL = "24h"
RateLimitPerMinute = 600.0
RateLimitBurst = 30

[Telemetry]
Enable = false
Endpoint = "localhost:4318"
Insecure = true
`

// Load loads the configuration from the given path, creating a commented
// default file when none exists. Environment variables ESCROWD_LISTEN and
// ESCROWD_LEDGER_PATH override the file values.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return nil, err
		}
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if listen := strings.TrimSpace(os.Getenv("ESCROWD_LISTEN")); listen != "" {
		cfg.ListenAddress = listen
	}
	if ledger := strings.TrimSpace(os.Getenv("ESCROWD_LEDGER_PATH")); ledger != "" {
		cfg.LedgerPath = ledger
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write default config %s: %w", path, err)
	}
	return nil
}

// Validate normalises and checks the loaded configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8090"
	}
	if strings.TrimSpace(c.LedgerPath) == "" {
		return errors.New("LedgerPath is required")
	}
	if strings.TrimSpace(c.AuditPath) == "" {
		return errors.New("AuditPath is required")
	}
	if strings.TrimSpace(c.JWTSecretEnv) == "" {
		c.JWTSecretEnv = "ESCROWD_JWT_SECRET"
	}
	if _, err := c.LeaseWait(); err != nil {
		return err
	}
	if _, err := c.OutcomeTTL(); err != nil {
		return err
	}
	if c.RateLimitPerMinute < 0 {
		return errors.New("RateLimitPerMinute must not be negative")
	}
	if c.RateLimitBurst < 0 {
		return errors.New("RateLimitBurst must not be negative")
	}
	return nil
}

// JWTSecret resolves the signing secret from the configured environment
// variable. Secrets never live in the config file itself.
func (c *Config) JWTSecret() (string, error) {
	secret := strings.TrimSpace(os.Getenv(c.JWTSecretEnv))
	if secret == "" {
		return "", fmt.Errorf("environment variable %s is required", c.JWTSecretEnv)
	}
	return secret, nil
}

// LeaseWait returns the parsed per-escrow lease wait budget.
func (c *Config) LeaseWait() (time.Duration, error) {
	return parseDuration("LeaseWaitBudget", c.LeaseWaitBudget, 3*time.Second)
}

// OutcomeTTL returns the parsed idempotency outcome retention window.
func (c *Config) OutcomeTTL() (time.Duration, error) {
	return parseDuration("IdempotencyTTL", c.IdempotencyTTL, 24*time.Hour)
}

func parseDuration(field, raw string, fallback time.Duration) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	dur, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return dur, nil
}
