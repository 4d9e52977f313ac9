package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file should be created: %v", err)
	}
	if cfg.ListenAddress != ":8090" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.LedgerPath != "escrowd.db" || cfg.AuditPath != "escrowd-audit.db" {
		t.Fatalf("unexpected storage paths %q %q", cfg.LedgerPath, cfg.AuditPath)
	}
	if wait, err := cfg.LeaseWait(); err != nil || wait != 3*time.Second {
		t.Fatalf("unexpected lease wait %v (%v)", wait, err)
	}
	if ttl, err := cfg.OutcomeTTL(); err != nil || ttl != 24*time.Hour {
		t.Fatalf("unexpected outcome ttl %v (%v)", ttl, err)
	}
}

func TestLoadRespectsEnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	t.Setenv("ESCROWD_LISTEN", ":9999")
	t.Setenv("ESCROWD_LEDGER_PATH", "/tmp/ledger-override.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9999" {
		t.Fatalf("ESCROWD_LISTEN override not applied, got %q", cfg.ListenAddress)
	}
	if cfg.LedgerPath != "/tmp/ledger-override.db" {
		t.Fatalf("ESCROWD_LEDGER_PATH override not applied, got %q", cfg.LedgerPath)
	}
}

func TestLoadRejectsBadDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `ListenAddress = ":8090"
LedgerPath = "ledger.db"
AuditPath = "audit.db"
LeaseWaitBudget = "not-a-duration"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestJWTSecretComesFromEnvironment(t *testing.T) {
	cfg := &Config{JWTSecretEnv: "ESCROWD_TEST_SECRET"}

	if _, err := cfg.JWTSecret(); err == nil {
		t.Fatalf("expected error when the secret variable is unset")
	}
	t.Setenv("ESCROWD_TEST_SECRET", "super-secret")
	secret, err := cfg.JWTSecret()
	if err != nil || secret != "super-secret" {
		t.Fatalf("unexpected secret %q (%v)", secret, err)
	}
}

func TestValidateDefaultsAndBounds(t *testing.T) {
	cfg := &Config{LedgerPath: "ledger.db", AuditPath: "audit.db"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.ListenAddress != ":8090" || cfg.JWTSecretEnv != "ESCROWD_JWT_SECRET" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}

	cfg.RateLimitPerMinute = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for negative rate limit")
	}

	missing := &Config{AuditPath: "audit.db"}
	if err := missing.Validate(); err == nil {
		t.Fatalf("expected error for missing ledger path")
	}
}
