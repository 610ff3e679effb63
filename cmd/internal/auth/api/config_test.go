package authapi

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.TrustProxy {
		t.Fatalf("TrustProxy must default to false")
	}
	if cfg.MaxBodyBytes != 64<<10 {
		t.Fatalf("MaxBodyBytes=%d", cfg.MaxBodyBytes)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.Capacity != 10 {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("TDP_AUTH_TRUST_PROXY", "true")
	t.Setenv("TDP_AUTH_MAX_BODY_BYTES", "2048")
	t.Setenv("TDP_AUTH_RATE_LIMIT_BURST", "3")
	t.Setenv("TDP_AUTH_RATE_LIMIT_INTERVAL", "2s")
	t.Setenv("TDP_AUTH_RATE_LIMIT_ENABLED", "false")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if !cfg.TrustProxy || cfg.MaxBodyBytes != 2048 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.RateLimit.Enabled || cfg.RateLimit.Capacity != 3 || cfg.RateLimit.RefillInterval != 2*time.Second {
		t.Fatalf("rate limit overrides not applied: %+v", cfg.RateLimit)
	}
}

func TestLoadConfigFromEnv_IgnoresGarbage(t *testing.T) {
	t.Setenv("TDP_AUTH_MAX_BODY_BYTES", "-1")
	t.Setenv("TDP_AUTH_RATE_LIMIT_TTL", "soon")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.MaxBodyBytes != 64<<10 || cfg.RateLimit.TTL != 10*time.Minute {
		t.Fatalf("garbage should fall back to defaults: %+v", cfg)
	}
}
