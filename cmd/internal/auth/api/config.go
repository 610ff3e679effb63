package authapi

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"tdp/cmd/internal/ratelimit"
)

// Config controls auth HTTP behavior.
type Config struct {
	// TrustProxy honors X-Forwarded-For / X-Real-IP when keying rate limits.
	TrustProxy   bool
	MaxBodyBytes int64

	RateLimit ratelimit.Config
}

// LoadConfigFromEnv loads auth HTTP config from TDP_AUTH_* variables.
func LoadConfigFromEnv() (Config, error) {
	rl := ratelimit.DefaultConfig()
	rl.Enabled = envBool("TDP_AUTH_RATE_LIMIT_ENABLED", rl.Enabled)
	rl.Capacity = envInt("TDP_AUTH_RATE_LIMIT_BURST", rl.Capacity)
	rl.RefillTokens = envInt("TDP_AUTH_RATE_LIMIT_REFILL", rl.RefillTokens)
	rl.RefillInterval = envDuration("TDP_AUTH_RATE_LIMIT_INTERVAL", rl.RefillInterval)
	rl.TTL = envDuration("TDP_AUTH_RATE_LIMIT_TTL", rl.TTL)

	cfg := Config{
		TrustProxy:   envBool("TDP_AUTH_TRUST_PROXY", false),
		MaxBodyBytes: envInt64("TDP_AUTH_MAX_BODY_BYTES", 64<<10),
		RateLimit:    rl,
	}
	if err := cfg.RateLimit.Validate(); err != nil {
		return Config{}, fmt.Errorf("authapi: %w", err)
	}
	return cfg, nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
