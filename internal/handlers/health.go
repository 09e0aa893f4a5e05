package handlers

import (
	"context"
	"net/http"
	"time"

	"kbassist/internal/contextutil"
	"kbassist/internal/service"
)

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	assistant          service.Assistant
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(assistant service.Assistant) *HealthHandler {
	return &HealthHandler{
		assistant:          assistant,
		healthCheckTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
//
// swagger:model HealthResponse
type HealthResponse struct {
	// Overall health status: "healthy", "degraded", or "unhealthy"
	Status string `json:"status"`

	// Timestamp of the health check
	Timestamp string `json:"timestamp"`

	// Individual check results
	Checks map[string]string `json:"checks"`

	// List of issues (only present if status is degraded or unhealthy)
	Issues []string `json:"issues,omitempty"`
}

// ServeHTTP handles HTTP requests for health checks.
//
// Returns 200 OK when healthy or degraded (no knowledge base loaded, or
// documents changed since the last build), 503 Service Unavailable when the
// persisted metadata cannot be read.
//
// swagger:route GET /api/health healthCheck
//
// # Health check endpoint
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: System is healthy or degraded
//	  schema:
//	    "$ref": "#/definitions/HealthResponse"
//	'503':
//	  description: System is unhealthy
//	  schema:
//	    "$ref": "#/definitions/HealthResponse"
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string)
	var issues []string
	status := "healthy"
	httpStatus := http.StatusOK

	st, err := h.assistant.Status(checkCtx)
	switch {
	case err != nil:
		logger.WarnContext(ctx, "knowledge base health check failed", "error", err)
		checks["metadata"] = "error"
		issues = append(issues, "metadata_unreadable")
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	default:
		checks["metadata"] = "ok"
		if st.Loaded {
			checks["knowledge_base"] = "ok"
		} else {
			checks["knowledge_base"] = "not_loaded"
			issues = append(issues, "knowledge_base_not_loaded")
		}
		if len(st.StaleDocuments) > 0 {
			checks["freshness"] = "stale"
			issues = append(issues, "documents_changed_since_build")
		} else {
			checks["freshness"] = "ok"
		}
		if len(issues) > 0 {
			status = "degraded"
		}
	}

	writeJSON(ctx, w, httpStatus, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Issues:    issues,
	})
}
