package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"llamactl/internal/inproc"
	"llamactl/internal/pipeline"
	"llamactl/internal/registry"
	"llamactl/internal/runner"
	"llamactl/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case registry.IsUnknownModel(err):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrAlreadyRunning), errors.Is(err, runner.ErrBusy):
		return http.StatusConflict
	case inproc.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &he):
		return he.StatusCode()
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logError("encode response", err)
	}
}
