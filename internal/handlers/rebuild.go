package handlers

import (
	"net/http"

	"kbassist/internal/contextutil"
	"kbassist/internal/service"
)

// RebuildHandler handles HTTP requests for rebuilding the knowledge base.
type RebuildHandler struct {
	assistant service.Assistant
}

// NewRebuildHandler creates a new RebuildHandler.
func NewRebuildHandler(assistant service.Assistant) *RebuildHandler {
	return &RebuildHandler{
		assistant: assistant,
	}
}

// ServeHTTP re-indexes the whole knowledge base and waits for the result.
//
// swagger:route POST /api/v1/rebuild rebuildKnowledgeBase
//
// # Rebuild the knowledge base
//
// Scans, chunks and embeds every document, persists the new store and
// replaces the loaded one. The answer cache is cleared on success; a failed
// rebuild leaves the current store in place.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Rebuild summary
//	  schema:
//	    "$ref": "#/definitions/RebuildResult"
//	'422':
//	  description: No documents or no content found
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'502':
//	  description: Embedding provider failed
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'500':
//	  description: The store could not be persisted
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *RebuildHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	logger.InfoContext(ctx, "rebuild triggered via API")
	result, err := h.assistant.Rebuild(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, result)
}

// ClearHandler handles HTTP requests for clearing the knowledge base.
type ClearHandler struct {
	assistant service.Assistant
}

// NewClearHandler creates a new ClearHandler.
func NewClearHandler(assistant service.Assistant) *ClearHandler {
	return &ClearHandler{
		assistant: assistant,
	}
}

// ClearResponse is returned after a successful clear.
//
// swagger:model ClearResponse
type ClearResponse struct {
	Message string `json:"message"`
}

// ServeHTTP deletes the persisted store and resets the session.
//
// swagger:route POST /api/v1/clear clearKnowledgeBase
//
// # Clear the knowledge base
//
// Removes the persisted store, unloads it and resets the conversation and cache.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Knowledge base cleared
//	  schema:
//	    "$ref": "#/definitions/ClearResponse"
//	'500':
//	  description: The store directory could not be removed
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *ClearHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := h.assistant.Clear(ctx); err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, ClearResponse{Message: "knowledge base cleared"})
}
