package session

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("access ttl: %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTTL != 14*24*time.Hour {
		t.Fatalf("refresh ttl: %v", cfg.RefreshTTL)
	}
	if cfg.RefreshTokenBytes != 64 {
		t.Fatalf("refresh bytes: %d", cfg.RefreshTokenBytes)
	}
	if cfg.Audience != "tdp-api" {
		t.Fatalf("audience: %q", cfg.Audience)
	}
}

func TestLoadConfigFromEnv_InvalidDurations(t *testing.T) {
	t.Setenv("TDP_AUTH_ACCESS_TTL", "-5m")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for negative duration, got %v", err)
	}
}

func TestLoadConfigFromEnv_InvalidRefreshTokenBytes(t *testing.T) {
	t.Setenv("TDP_AUTH_REFRESH_TOKEN_BYTES", "32")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for small refresh bytes, got %v", err)
	}
}

func TestLoadConfigFromEnv_InvalidRSABits(t *testing.T) {
	t.Setenv("TDP_AUTH_RSA_BITS", "1024")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for 1024-bit key, got %v", err)
	}
}

func TestLoadConfigFromEnv_AccessMustBeShorterThanRefresh(t *testing.T) {
	t.Setenv("TDP_AUTH_ACCESS_TTL", "48h")
	t.Setenv("TDP_AUTH_REFRESH_TTL", "24h")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for ttl order, got %v", err)
	}
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	t.Setenv("TDP_AUTH_ISSUER", "https://auth.test")
	t.Setenv("TDP_AUTH_AUDIENCE", "tdp-test")
	t.Setenv("TDP_AUTH_ACCESS_TTL", "10m")
	t.Setenv("TDP_AUTH_REFRESH_TTL", "168h")
	t.Setenv("TDP_AUTH_CLOCK_SKEW", "20s")
	t.Setenv("TDP_AUTH_REFRESH_TOKEN_BYTES", "96")
	t.Setenv("TDP_AUTH_RSA_BITS", "3072")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Issuer != "https://auth.test" || cfg.Audience != "tdp-test" {
		t.Fatalf("issuer/audience mismatch: %q %q", cfg.Issuer, cfg.Audience)
	}
	if cfg.AccessTokenTTL != 10*time.Minute {
		t.Fatalf("access ttl mismatch: %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTTL != 168*time.Hour {
		t.Fatalf("refresh ttl mismatch: %v", cfg.RefreshTTL)
	}
	if cfg.ClockSkew != 20*time.Second {
		t.Fatalf("clock skew mismatch: %v", cfg.ClockSkew)
	}
	if cfg.RefreshTokenBytes != 96 {
		t.Fatalf("refresh token bytes mismatch: %d", cfg.RefreshTokenBytes)
	}
	if cfg.RSAKeyBits != 3072 {
		t.Fatalf("rsa bits mismatch: %d", cfg.RSAKeyBits)
	}
}
