package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"tdp/cmd/identity"
)

// WriteServiceError maps a domain error to its HTTP response.
//
// Authentication failures always produce the same body. Unexpected errors are
// logged with op context and reported as 500 without detail.
func WriteServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	if log == nil {
		log = slog.Default()
	}

	var ve identity.ValidationError
	var ce identity.ConflictError
	var nf identity.NotFoundError

	switch {
	case errors.As(err, &ve):
		WriteFieldErrors(w, map[string]string{ve.Field: ve.Msg})
	case identity.IsUnauthenticated(err):
		WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication failed")
	case identity.IsForbidden(err):
		WriteError(w, http.StatusForbidden, "forbidden", "not allowed")
	case errors.As(err, &nf):
		WriteError(w, http.StatusNotFound, "not_found", notFoundMessage(nf.Resource))
	case errors.As(err, &ce):
		WriteJSON(w, http.StatusConflict, errorResponse{Error: apiError{
			Code:    "conflict",
			Message: "already exists",
			Fields:  conflictFields(ce.Field),
		}})
	case identity.IsInvalidInput(err):
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request")
	case identity.IsRetryable(err):
		log.WarnContext(r.Context(), "http.storage.retryable", "path", r.URL.Path, "err", err)
		w.Header().Set("Retry-After", "1")
		WriteError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
	case errors.Is(err, context.DeadlineExceeded):
		WriteError(w, http.StatusServiceUnavailable, "timeout", "please retry later")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
	default:
		log.ErrorContext(r.Context(), "http.internal_error", "path", r.URL.Path, "err", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func notFoundMessage(resource string) string {
	if resource == "" {
		return "not found"
	}
	return resource + " not found"
}

func conflictFields(field string) map[string]string {
	if field == "" {
		return nil
	}
	return map[string]string{field: "already exists"}
}
