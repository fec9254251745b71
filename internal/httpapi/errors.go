package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"inferd/internal/fetcher"
	"inferd/internal/jobs"
	"inferd/internal/router"
	"inferd/pkg/types"
)

// statusFor maps a rejected update's error to an HTTP status.
func statusFor(err error) int {
	switch {
	case router.IsUnrecognizedCommand(err), router.IsMissingArgument(err):
		return http.StatusBadRequest
	case router.IsFeatureDisabled(err):
		return http.StatusNotImplemented
	case jobs.IsQueueFull(err):
		return http.StatusTooManyRequests
	case errors.Is(err, jobs.ErrClosed):
		return http.StatusServiceUnavailable
	case fetcher.IsFetchTimeout(err):
		return http.StatusGatewayTimeout
	case fetcher.IsNavigationError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
