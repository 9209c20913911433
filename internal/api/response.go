package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/oddaja/internal/model"
	"github.com/erazemk/oddaja/internal/workflow"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// noticeStatus maps the outcome of a workflow action onto an HTTP status.
func noticeStatus(n workflow.Notice) int {
	switch err := n.Err; {
	case err == nil:
		return http.StatusOK
	case model.Stale(err):
		return http.StatusConflict
	case errors.Is(err, model.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrInvalidReference), errors.Is(err, model.ErrStepLocked):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrNotFound), errors.Is(err, workflow.ErrNoSelection):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
