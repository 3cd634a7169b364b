package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("PLATFORM_FEE_BPS", "")
	t.Setenv("VIDEO_AUTO_PROVISION", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.PlatformFeeBPS != 2000 {
		t.Fatalf("expected 20%% platform fee by default, got %d bps", cfg.PlatformFeeBPS)
	}
	if !cfg.VideoAutoProvision {
		t.Fatalf("expected video auto provisioning enabled by default")
	}
	if cfg.ReminderLeadTime != 24*time.Hour {
		t.Fatalf("expected default reminder lead time, got %s", cfg.ReminderLeadTime)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no cors origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.IsProduction() {
		t.Fatalf("development env reported as production")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("PAYMENT_CURRENCY", "EUR")
	t.Setenv("PLATFORM_FEE_BPS", "1500")
	t.Setenv("VIDEO_AUTO_PROVISION", "false")
	t.Setenv("VIDEO_LOCK_TTL", "45s")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env")
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.PaymentCurrency != "eur" {
		t.Fatalf("expected lowercased currency, got %s", cfg.PaymentCurrency)
	}
	if cfg.PlatformFeeBPS != 1500 {
		t.Fatalf("expected fee override, got %d", cfg.PlatformFeeBPS)
	}
	if cfg.VideoAutoProvision {
		t.Fatalf("expected auto provisioning disabled")
	}
	if cfg.VideoLockTTL != 45*time.Second {
		t.Fatalf("expected lock ttl override, got %s", cfg.VideoLockTTL)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected rate override, got %v", cfg.RateLimitRPS)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://admin.example.com" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSAllowedOrigins)
	}
}
