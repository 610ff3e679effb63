// Package ratelimit throttles unauthenticated auth endpoints with a token bucket.
//
// The bucket lives in Redis when TDP_REDIS_ADDR is set, so every replica shares it.
// Without Redis an in-process bucket is used. Limiter errors fail open.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Config sizes a bucket. Capacity tokens, RefillTokens added every RefillInterval.
type Config struct {
	Enabled        bool
	Prefix         string
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	// TTL bounds how long an idle bucket is kept.
	TTL time.Duration
}

// DefaultConfig allows bursts of 10 and one request every 6s after that.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Prefix:         "tdp:rl",
		Capacity:       10,
		RefillTokens:   1,
		RefillInterval: 6 * time.Second,
		TTL:            10 * time.Minute,
	}
}

// Validate rejects unusable sizes.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Capacity <= 0 || c.RefillTokens <= 0 || c.RefillInterval <= 0 {
		return fmt.Errorf("ratelimit: capacity, refill tokens and refill interval must be positive")
	}
	if c.TTL < time.Second {
		return fmt.Errorf("ratelimit: ttl must be at least 1s")
	}
	return nil
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter takes one token for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Noop allows everything.
type Noop struct{}

func (Noop) Allow(context.Context, string) (Decision, error) { return Decision{Allowed: true}, nil }
