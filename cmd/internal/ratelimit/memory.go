package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is the single-process bucket used when Redis is not configured.
type MemoryLimiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens     int64
	lastRefill time.Time
	touched    time.Time
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter(cfg Config) (*MemoryLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MemoryLimiter{cfg: cfg, now: time.Now, buckets: make(map[string]*bucket)}, nil
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	if !l.cfg.Enabled {
		return Decision{Allowed: true}, nil
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: int64(l.cfg.Capacity), lastRefill: now}
		l.buckets[key] = b
	}
	b.touched = now

	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		intervals := int64(elapsed / l.cfg.RefillInterval)
		if intervals > 0 {
			b.tokens = min(int64(l.cfg.Capacity), b.tokens+intervals*int64(l.cfg.RefillTokens))
			b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * l.cfg.RefillInterval)
		}
	}

	if b.tokens > 0 {
		b.tokens--
		return Decision{Allowed: true, Remaining: b.tokens}, nil
	}
	retry := l.cfg.RefillInterval - now.Sub(b.lastRefill)
	if retry < 0 {
		retry = 0
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}

func (l *MemoryLimiter) evict(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.touched) > l.cfg.TTL {
			delete(l.buckets, k)
		}
	}
}
