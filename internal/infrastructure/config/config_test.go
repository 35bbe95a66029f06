package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/osk/fintrack/internal/infrastructure/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("BACKEND_TOKEN", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.DatabaseURL == "" {
		t.Fatalf("expected default database URL to be set")
	}

	if cfg.BackendToken != "" {
		t.Fatalf("expected backend token default to be empty, got %q", cfg.BackendToken)
	}

	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default HTTP port 8080, got %s", cfg.HTTPPort)
	}

	if cfg.ReclaimTimeout != 30*time.Second {
		t.Fatalf("expected default reclaim timeout 30s, got %s", cfg.ReclaimTimeout)
	}

	if cfg.RecomputeDebounce != 500*time.Millisecond {
		t.Fatalf("expected default recompute debounce 500ms, got %s", cfg.RecomputeDebounce)
	}

	if cfg.RateLimitRPS != 50 || cfg.RateLimitBurst != 100 {
		t.Fatalf("expected default rate limit 50/100, got %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis://example")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DATABASE_TIMEOUT", "45s")
	t.Setenv("TENANT_ID", "tenant-42")
	t.Setenv("BACKEND_URL", "http://backend.example")
	t.Setenv("PUSH_BATCH_SIZE", "25")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.DatabaseURL != "postgres://example" {
		t.Fatalf("expected custom database URL, got %s", cfg.DatabaseURL)
	}

	if cfg.RedisURL != "redis://example" {
		t.Fatalf("expected custom redis URL, got %s", cfg.RedisURL)
	}

	if cfg.HTTPPort != "9090" {
		t.Fatalf("expected HTTP port override, got %s", cfg.HTTPPort)
	}

	if cfg.DatabaseTimeout != 45*time.Second {
		t.Fatalf("expected database timeout override, got %s", cfg.DatabaseTimeout)
	}

	if cfg.TenantID != "tenant-42" || cfg.BackendURL != "http://backend.example" {
		t.Fatalf("expected sync settings to be set, got tenant=%s backend=%s", cfg.TenantID, cfg.BackendURL)
	}

	if cfg.PushBatchSize != 25 {
		t.Fatalf("expected push batch size override, got %d", cfg.PushBatchSize)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	original := os.Getenv("HTTP_READ_TIMEOUT")
	t.Setenv("HTTP_READ_TIMEOUT", "not-a-duration")
	t.Cleanup(func() {
		t.Setenv("HTTP_READ_TIMEOUT", original)
	})

	if _, err := config.Load(); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}
