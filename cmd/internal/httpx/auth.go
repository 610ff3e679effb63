package httpx

import (
	"net/http"
	"strings"

	"tdp/cmd/internal/auth/session"
)

// Authenticator verifies bearer access tokens. *session.Service satisfies it.
type Authenticator interface {
	Authenticate(accessToken string) (session.Principal, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// principal in the request context for next.
func RequireAuth(a Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := BearerToken(r)
		if tok == "" {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		p, err := a.Authenticate(tok)
		if err != nil {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(session.WithPrincipal(r.Context(), p)))
	})
}

// RequireAuthFunc is RequireAuth for handler funcs.
func RequireAuthFunc(a Authenticator, next http.HandlerFunc) http.Handler {
	return RequireAuth(a, next)
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
