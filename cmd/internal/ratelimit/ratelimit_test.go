package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Enabled:        true,
		Prefix:         "tdp:test",
		Capacity:       3,
		RefillTokens:   1,
		RefillInterval: time.Second,
		TTL:            time.Minute,
	}
}

func TestMemoryLimiter_Bucket(t *testing.T) {
	l, err := NewMemoryLimiter(testConfig())
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 2; i >= 0; i-- {
		d, err := l.Allow(ctx, "k")
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.EqualValues(t, i, d.Remaining)
	}

	now = now.Add(300 * time.Millisecond)
	d, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 700*time.Millisecond, d.RetryAfter)

	d, err = l.Allow(ctx, "other")
	require.NoError(t, err)
	require.True(t, d.Allowed, "keys are independent")

	now = now.Add(time.Second)
	d, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	now = now.Add(time.Hour)
	d, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.EqualValues(t, 2, d.Remaining, "refill is capped at capacity")
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, Config{}.Validate(), "disabled config needs no sizes")

	bad := testConfig()
	bad.Capacity = 0
	require.Error(t, bad.Validate())

	bad = testConfig()
	bad.TTL = 0
	require.Error(t, bad.Validate())
}

func TestParseResult(t *testing.T) {
	d, err := parseResult([]any{int64(0), int64(0), int64(1500)})
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 1500*time.Millisecond, d.RetryAfter)

	d, err = parseResult([]any{int64(1), "4", int64(0)})
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.EqualValues(t, 4, d.Remaining)

	_, err = parseResult([]any{int64(1)})
	require.Error(t, err)
}

type failing struct{}

func (failing) Allow(context.Context, string) (Decision, error) {
	return Decision{}, context.DeadlineExceeded
}

func TestMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.Capacity = 1
	l, err := NewMemoryLimiter(cfg)
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Middleware(l, "login", ByClientIP(false), nil)(ok)

	call := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusNoContent, call("192.0.2.1:1000").Code)

	rec := call("192.0.2.1:2000")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, secs, 1)

	require.Equal(t, http.StatusNoContent, call("192.0.2.2:1000").Code)
}

func TestMiddleware_FailsOpen(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Middleware(failing{}, "login", ByClientIP(false), nil)(ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRedisLimiter_Integration(t *testing.T) {
	addr := os.Getenv("TDP_REDIS_ADDR")
	if addr == "" {
		t.Skip("TDP_REDIS_ADDR not set")
	}
	ctx := context.Background()

	rdb, err := NewRedisClient(ctx, addr, os.Getenv("TDP_REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	cfg.Prefix = "tdp:test:" + strconv.FormatInt(time.Now().UnixNano(), 10)
	l, err := NewRedisLimiter(rdb, cfg)
	require.NoError(t, err)

	now := time.Now()
	l.now = func() time.Time { return now }

	for i := 0; i < cfg.Capacity; i++ {
		d, err := l.Allow(ctx, "ip")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, "ip")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Positive(t, d.RetryAfter)

	now = now.Add(cfg.RefillInterval)
	d, err = l.Allow(ctx, "ip")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}
