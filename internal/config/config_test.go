package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DSN", "host=localhost user=test password=test dbname=test port=5432 sslmode=disable")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("VAPID_PUBLIC_KEY", "BPk7rGn1example-public-key")
	t.Setenv("VAPID_PRIVATE_KEY", "aXJ2example-private-key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", cfg.APIPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", cfg.BatchSize)
	}
	if cfg.SendConcurrency != 8 {
		t.Errorf("SendConcurrency = %d, want 8", cfg.SendConcurrency)
	}
	if cfg.VAPIDSubscriber != "mailto:admin@localhost" {
		t.Errorf("VAPIDSubscriber = %s, want default mailto", cfg.VAPIDSubscriber)
	}
	if cfg.LeaseTTL() != 60*time.Second {
		t.Errorf("LeaseTTL = %s, want 60s", cfg.LeaseTTL())
	}
	if cfg.TickInterval() != 5*time.Second {
		t.Errorf("TickInterval = %s, want 5s", cfg.TickInterval())
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BATCH_SIZE", "200")
	t.Setenv("SEND_TIMEOUT_SECONDS", "3")
	t.Setenv("TICK_INTERVAL_SECONDS", "0")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.BatchSize != 200 {
		t.Errorf("BatchSize = %d, want 200", cfg.BatchSize)
	}
	if cfg.SendTimeout() != 3*time.Second {
		t.Errorf("SendTimeout = %s, want 3s", cfg.SendTimeout())
	}
	if cfg.TickInterval() != 0 {
		t.Errorf("TickInterval = %s, want 0 (disabled)", cfg.TickInterval())
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_DSN", "host=localhost")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when VAPID keys are missing")
	}
}
