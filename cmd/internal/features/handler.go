package features

import (
	"log/slog"
	"net/http"
	"time"

	"tdp/cmd/internal/auth/session"
	"tdp/cmd/internal/httpx"
)

// Handler serves the feature endpoints. Every route needs a bearer token.
type Handler struct {
	svc     *Service
	auth    httpx.Authenticator
	log     *slog.Logger
	maxBody int64
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, svc *Service, auth httpx.Authenticator) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, auth: auth, log: log, maxBody: 16 << 10}
}

// Register wires routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, httpx.RequireAuthFunc(h.auth, fn))
	}

	route("GET /features", h.handleList)
	route("POST /features", h.handleCreate)
	route("GET /features/{id}", h.handleGet)
	route("PUT /features/{id}", h.handleUpdate)
	route("DELETE /features/{id}", h.handleDelete)

	route("GET /users/me/features", h.handleListMine)
	route("POST /users/me/features/{featureId}", h.handleAssignMine)
	route("DELETE /users/me/features/{featureId}", h.handleUnassignMine)
	route("GET /users/{userId}/features", h.handleListForUser)
	route("POST /users/{userId}/features/{featureId}", h.handleAssign)
	route("DELETE /users/{userId}/features/{featureId}", h.handleUnassign)
}

type featureRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

type featureResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	AssignedAt  *time.Time `json:"assignedAt,omitempty"`
}

func toResponse(f Feature) featureResponse {
	return featureResponse{ID: f.ID, Name: f.Name, Description: f.Description, CreatedAt: f.CreatedAt}
}

func toUserResponses(in []UserFeature) []featureResponse {
	out := make([]featureResponse, len(in))
	for i, uf := range in {
		at := uf.AssignedAt
		out[i] = toResponse(uf.Feature)
		out[i].AssignedAt = &at
	}
	return out
}

func actor(r *http.Request) string {
	p, _ := session.PrincipalFrom(r.Context())
	return p.UserID
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		httpx.WriteServiceError(w, r, h.log, err)
		return
	}
	out := make([]featureResponse, len(list))
	for i, f := range list {
		out[i] = toResponse(f)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"features": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		httpx.WriteServiceError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(f))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req featureRequest
	if !httpx.Decode(w, r, h.maxBody, &req) {
		return
	}
	f, err := h.svc.Create(r.Context(), actor(r), CreateInput(req))
	if err != nil {
		httpx.WriteServiceError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toResponse(f))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req featureRequest
	if !httpx.Decode(w, r, h.maxBody, &req) {
		return
	}
	f, err := h.svc.Update(r.Context(), actor(r), r.PathValue("id"), UpdateInput(req))
	if err != nil {
		httpx.WriteServiceError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(f))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), actor(r), r.PathValue("id")); err != nil {
		httpx.WriteServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listFor(w http.ResponseWriter, r *http.Request, userID string) {
	list, err := h.svc.ListForUser(r.Context(), actor(r), userID)
	if err != nil {
		httpx.WriteServiceError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"features": toUserResponses(list)})
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request, userID string) {
	if err := h.svc.Assign(r.Context(), actor(r), userID, r.PathValue("featureId")); err != nil {
		httpx.WriteServiceError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) unassign(w http.ResponseWriter, r *http.Request, userID string) {
	if err := h.svc.Unassign(r.Context(), actor(r), userID, r.PathValue("featureId")); err != nil {
		httpx.WriteServiceError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) { h.listFor(w, r, actor(r)) }

func (h *Handler) handleListForUser(w http.ResponseWriter, r *http.Request) {
	h.listFor(w, r, r.PathValue("userId"))
}

func (h *Handler) handleAssignMine(w http.ResponseWriter, r *http.Request) { h.assign(w, r, actor(r)) }

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	h.assign(w, r, r.PathValue("userId"))
}

func (h *Handler) handleUnassignMine(w http.ResponseWriter, r *http.Request) {
	h.unassign(w, r, actor(r))
}

func (h *Handler) handleUnassign(w http.ResponseWriter, r *http.Request) {
	h.unassign(w, r, r.PathValue("userId"))
}
