package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"kbassist/internal/contextutil"
	"kbassist/internal/service"
)

// ErrorResponse represents an error response.
//
// swagger:model ErrorResponse
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}

// writeServiceError maps an assistant error to an HTTP status and writes it.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := contextutil.LoggerFromContext(ctx)
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "assistant error", "error", err, "status", status)
	} else {
		logger.WarnContext(ctx, "assistant request rejected", "error", err, "status", status)
	}
	writeError(w, status, err.Error())
}

// errorStatus returns the HTTP status code for an assistant error.
func errorStatus(err error) int {
	var validationErr *service.ValidationError
	var providerErr *service.ProviderError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrStoreAbsent):
		return http.StatusConflict
	case errors.Is(err, service.ErrEmptyKnowledgeBase), errors.Is(err, service.ErrEmptyContent):
		return http.StatusUnprocessableEntity
	case errors.As(err, &providerErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
