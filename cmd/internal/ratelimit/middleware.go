package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"

	"tdp/cmd/internal/httpx"
)

// KeyFunc derives the bucket key for a request.
type KeyFunc func(r *http.Request) string

// Middleware throttles next per scope and key. Limiter errors are logged and the request passes.
func Middleware(l Limiter, scope string, key KeyFunc, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				k = "unknown"
			}
			d, err := l.Allow(r.Context(), scope+":"+k)
			if err != nil {
				log.WarnContext(r.Context(), "ratelimit.error", "scope", scope, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			if !d.Allowed {
				log.InfoContext(r.Context(), "ratelimit.block", "scope", scope, "retry_after", d.RetryAfter)
				httpx.WriteRateLimited(w, d.RetryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ByClientIP keys on the caller address.
func ByClientIP(trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		ip := httpx.ClientIP(r, trustProxy)
		if ip == nil {
			return ""
		}
		return ip.String()
	}
}
