package httpapi

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"llamad/internal/controller"
	"llamad/pkg/types"
)

// statusClientClosed is logged when the client went away before a response.
const statusClientClosed = 499

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps controller errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case controller.IsModelNotFound(err):
		return http.StatusNotFound
	case controller.IsInvalidState(err):
		return http.StatusConflict
	case controller.IsInferenceFailed(err):
		return http.StatusUnprocessableEntity
	case controller.IsModelLoadFailed(err), controller.IsContextCreationFailed(err):
		return http.StatusInternalServerError
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
