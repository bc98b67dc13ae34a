package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/toccatech/coffre"
)

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
	}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// WriteFieldErrors writes the aggregated field-level validation failures.
func WriteFieldErrors(w http.ResponseWriter, fields map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   "validation_failed",
		Message: "One or more fields are invalid",
		Fields:  fields,
	}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// HandleError maps a domain error onto the response taxonomy. Upstream
// failures are surfaced with a stable code and a generic message; their
// detail stays in the logs.
func HandleError(w http.ResponseWriter, err error) {
	slog.Error("request error", "error", err)

	switch {
	case errors.Is(err, coffre.ErrUnauthenticated):
		WriteError(w, http.StatusUnauthorized, "unauthenticated", "This operation requires authentication")
	case errors.Is(err, coffre.ErrForbidden):
		WriteError(w, http.StatusForbidden, "forbidden", "You are not authorised to use this file")
	case errors.Is(err, coffre.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "This file does not exist")
	case errors.Is(err, coffre.ErrValidation):
		WriteError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, coffre.ErrContentPolicy):
		WriteError(w, http.StatusBadRequest, "content_rejected", "The file content does not satisfy the resource's content policy")
	case errors.Is(err, coffre.ErrInvalidInput):
		WriteError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, coffre.ErrUpstream):
		WriteError(w, http.StatusBadGateway, "upstream_failure", "A backing service is unavailable")
	case errors.Is(err, coffre.ErrStorageInconsistency):
		WriteError(w, http.StatusInternalServerError, "storage_inconsistency", "File storage is in an inconsistent state")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, code int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(data)
}
