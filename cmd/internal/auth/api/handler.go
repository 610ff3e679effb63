// Package authapi serves the registration, login, token and user endpoints.
package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"tdp/cmd/identity"
	"tdp/cmd/internal/auth/session"
	"tdp/cmd/internal/httpx"
	"tdp/cmd/internal/ratelimit"
)

// AdminChecker decides whether a user may use admin endpoints.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// JWKSource publishes the verification keys.
type JWKSource interface {
	JWKS() session.JWKS
}

// Handler exposes auth endpoints.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions *session.Service
	users    identity.Store
	keys     JWKSource

	admins  AdminChecker
	perms   session.PermissionSource
	limiter ratelimit.Limiter
}

// HandlerOption configures optional collaborators.
type HandlerOption func(*Handler)

// WithLimiter throttles register, login and refresh per client IP.
func WithLimiter(l ratelimit.Limiter) HandlerOption { return func(h *Handler) { h.limiter = l } }

// WithAdmins enables the admin-only user search.
func WithAdmins(a AdminChecker) HandlerOption { return func(h *Handler) { h.admins = a } }

// WithPermissions makes /me report current permissions instead of the token's snapshot.
func WithPermissions(p session.PermissionSource) HandlerOption {
	return func(h *Handler) { h.perms = p }
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service, users identity.Store, keys JWKSource, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if sessions == nil || users == nil || keys == nil {
		return nil, errors.New("authapi: missing dependency")
	}
	h := &Handler{
		log:      log,
		cfg:      cfg,
		sessions: sessions,
		users:    users,
		keys:     keys,
		limiter:  ratelimit.Noop{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.Handle("POST /auth/register", h.limited("register", h.handleRegister))
	mux.Handle("POST /auth/login", h.limited("login", h.handleLogin))
	mux.Handle("POST /auth/refresh", h.limited("refresh", h.handleRefresh))
	mux.Handle("POST /auth/logout", httpx.RequireAuthFunc(h.sessions, h.handleLogout))
	mux.Handle("GET /me", httpx.RequireAuthFunc(h.sessions, h.handleMe))
	mux.Handle("GET /users", httpx.RequireAuthFunc(h.sessions, h.handleSearchUsers))
	mux.Handle("PUT /users/{id}/active", httpx.RequireAuthFunc(h.sessions, h.handleSetActive))
	mux.HandleFunc("GET /.well-known/jwks.json", h.handleJWKS)
}

func (h *Handler) limited(scope string, fn http.HandlerFunc) http.Handler {
	return ratelimit.Middleware(h.limiter, scope, ratelimit.ByClientIP(h.cfg.TrustProxy), h.log)(fn)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	httpx.NoStore(w)

	var req registerRequest
	if !httpx.Decode(w, r, h.cfg.MaxBodyBytes, &req) {
		return
	}

	userID, err := h.sessions.Register(r.Context(), session.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		httpx.WriteServiceError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, registerResponse{UserID: userID})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	httpx.NoStore(w)

	var req loginRequest
	if !httpx.Decode(w, r, h.cfg.MaxBodyBytes, &req) {
		return
	}

	tokens, err := h.sessions.Login(r.Context(), session.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		DeviceInfo: deviceInfo(req.DeviceInfo, r),
	})
	if err != nil {
		httpx.WriteServiceError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTokensResponse(tokens))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	httpx.NoStore(w)

	var req refreshRequest
	if !httpx.Decode(w, r, h.cfg.MaxBodyBytes, &req) {
		return
	}

	tokens, err := h.sessions.Refresh(r.Context(), session.RefreshInput{
		RefreshToken: req.RefreshToken,
		DeviceInfo:   deviceInfo(req.DeviceInfo, r),
	})
	if err != nil {
		httpx.WriteServiceError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTokensResponse(tokens))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	httpx.NoStore(w)

	var req logoutRequest
	if !httpx.DecodeOptional(w, r, h.cfg.MaxBodyBytes, &req) {
		return
	}

	p, _ := session.PrincipalFrom(r.Context())
	if err := h.sessions.Logout(r.Context(), p, req.RefreshToken); err != nil {
		httpx.WriteServiceError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := session.PrincipalFrom(r.Context())

	u, err := h.users.GetUserByID(r.Context(), p.UserID)
	if err != nil {
		httpx.WriteServiceError(w, r, h.log, err)
		return
	}

	perms := p.Permissions
	if h.perms != nil {
		if perms, err = h.perms.PermissionsForUser(r.Context(), u.ID); err != nil {
			httpx.WriteServiceError(w, r, h.log, err)
			return
		}
	}
	if perms == nil {
		perms = []string{}
	}

	httpx.WriteJSON(w, http.StatusOK, meResponse{userResponse: toUserResponse(u), Permissions: perms})
}

// requireAdmin checks current admin status; it writes the error response when false.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request, op string) bool {
	p, _ := session.PrincipalFrom(r.Context())
	if h.admins == nil {
		httpx.WriteServiceError(w, r, h.log, identity.OpError{Op: op, Kind: identity.ErrForbidden})
		return false
	}
	ok, err := h.admins.IsAdmin(r.Context(), p.UserID)
	if err != nil {
		httpx.WriteServiceError(w, r, h.log, err)
		return false
	}
	if !ok {
		httpx.WriteServiceError(w, r, h.log, identity.OpError{Op: op, Kind: identity.ErrForbidden})
		return false
	}
	return true
}

func (h *Handler) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r, "authapi.SearchUsers") {
		return
	}

	limit := identity.MaxSearchResults
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteFieldErrors(w, map[string]string{"limit": "must be a positive integer"})
			return
		}
		limit = n
	}

	users, err := h.users.SearchUsers(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		httpx.WriteServiceError(w, r, h.log, err)
		return
	}
	out := make([]userResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r, "authapi.SetActive") {
		return
	}

	var req setActiveRequest
	if !httpx.Decode(w, r, h.cfg.MaxBodyBytes, &req) {
		return
	}
	if err := h.sessions.SetUserActive(r.Context(), r.PathValue("id"), *req.Active); err != nil {
		httpx.WriteServiceError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	httpx.WriteJSON(w, http.StatusOK, h.keys.JWKS())
}

// deviceInfo falls back to the User-Agent when the client sends nothing.
func deviceInfo(explicit *string, r *http.Request) *string {
	if explicit != nil && strings.TrimSpace(*explicit) != "" {
		return explicit
	}
	ua := strings.TrimSpace(r.UserAgent())
	if ua == "" {
		return nil
	}
	return &ua
}
