package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Env != "dev" || cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected defaults: env=%q addr=%q", cfg.Env, cfg.HTTPAddr)
	}
	if cfg.JWTAccessTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl: %v", cfg.JWTAccessTTL)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("unexpected session ttl: %v", cfg.SessionTTL)
	}
	if cfg.LockoutMaxAttempts != 5 || cfg.LockoutWindow != 15*time.Minute {
		t.Fatalf("unexpected lockout defaults: %d %v", cfg.LockoutMaxAttempts, cfg.LockoutWindow)
	}
	if cfg.AnomalyThreshold != 3 {
		t.Fatalf("unexpected anomaly threshold: %d", cfg.AnomalyThreshold)
	}
	if cfg.KeyRotationInterval != 24*time.Hour || cfg.KeyCacheTTL != 5*time.Minute {
		t.Fatalf("unexpected key timings: %v %v", cfg.KeyRotationInterval, cfg.KeyCacheTTL)
	}
	// dev profile falls back to a baked-in secret
	if cfg.JWTAccessSecret == "" || cfg.JWTRefreshSecret == "" {
		t.Fatal("dev secrets must be defaulted")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9091")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("SESSION_ALLOW_IP_CHANGE", "true")
	t.Setenv("LOCKOUT_MAX_ATTEMPTS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9091" || cfg.JWTAccessTTL != 5*time.Minute {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if !cfg.SessionAllowIPChange || cfg.LockoutMaxAttempts != 7 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadParseErrors(t *testing.T) {
	t.Setenv("JWT_ACCESS_TTL", "not-a-duration")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse JWT_ACCESS_TTL") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "oracle")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DATABASE_DRIVER") {
		t.Fatalf("expected driver validation error, got %v", err)
	}
}

func TestLoadProdRequiresSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "JWT_ACCESS_SECRET") {
		t.Fatalf("expected prod secret requirement, got %v", err)
	}

	t.Setenv("JWT_ACCESS_SECRET", strings.Repeat("a", 32))
	t.Setenv("JWT_REFRESH_SECRET", "short")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "32 bytes") {
		t.Fatalf("expected secret length requirement, got %v", err)
	}

	t.Setenv("JWT_REFRESH_SECRET", strings.Repeat("b", 32))
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "TOKEN_PEPPER") {
		t.Fatalf("expected pepper requirement, got %v", err)
	}

	t.Setenv("TOKEN_PEPPER", "pepper-value")
	if _, err := Load(); err != nil {
		t.Fatalf("complete prod config should load, got %v", err)
	}
}

func TestLoadRejectsCacheTTLBeyondRotation(t *testing.T) {
	t.Setenv("KEY_CACHE_TTL", "48h")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "KEY_CACHE_TTL") {
		t.Fatalf("expected cache ttl validation error, got %v", err)
	}
}
