package handlers

import (
	"net/http"

	"kbassist/internal/contextutil"
	"kbassist/internal/llm"
	"kbassist/internal/service"
)

// StatusHandler reports the loaded knowledge base and its freshness.
type StatusHandler struct {
	assistant service.Assistant
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(assistant service.Assistant) *StatusHandler {
	return &StatusHandler{assistant: assistant}
}

// ServeHTTP handles status requests.
//
// swagger:route GET /api/v1/status knowledgeBaseStatus
//
// # Knowledge base status
//
// Returns the session, the loaded store, the last build record and the
// documents modified since that build.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Current status
//	  schema:
//	    "$ref": "#/definitions/Status"
//	'500':
//	  description: Metadata could not be read
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, err := h.assistant.Status(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, status)
}

// LinksHandler lists hyperlinks discovered during the last build.
type LinksHandler struct {
	assistant service.Assistant
}

// NewLinksHandler creates a new LinksHandler.
func NewLinksHandler(assistant service.Assistant) *LinksHandler {
	return &LinksHandler{assistant: assistant}
}

// LinksResponse lists discovered hyperlinks.
//
// swagger:model LinksResponse
type LinksResponse struct {
	Links []string `json:"links"`
}

// ServeHTTP handles link listing requests.
//
// swagger:route GET /api/v1/links discoveredLinks
//
// # Discovered links
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Links in discovery order
//	  schema:
//	    "$ref": "#/definitions/LinksResponse"
func (h *LinksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	links, err := h.assistant.Links(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if links == nil {
		links = []string{}
	}
	writeJSON(ctx, w, http.StatusOK, LinksResponse{Links: links})
}

// HistoryHandler returns the session conversation.
type HistoryHandler struct {
	assistant service.Assistant
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(assistant service.Assistant) *HistoryHandler {
	return &HistoryHandler{assistant: assistant}
}

// HistoryResponse holds the conversation turns in order.
//
// swagger:model HistoryResponse
type HistoryResponse struct {
	Messages []llm.Message `json:"messages"`
}

// ServeHTTP handles conversation history requests.
//
// swagger:route GET /api/v1/history conversationHistory
//
// # Conversation history
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Conversation turns, oldest first
//	  schema:
//	    "$ref": "#/definitions/HistoryResponse"
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	messages := h.assistant.History()
	if messages == nil {
		messages = []llm.Message{}
	}
	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "history requested", "turns", len(messages))
	writeJSON(ctx, w, http.StatusOK, HistoryResponse{Messages: messages})
}
