package handlers

import (
	"encoding/json"
	"net/http"

	"kbassist/internal/contextutil"
	"kbassist/internal/service"
)

// AskHandler handles HTTP requests for knowledge base questions.
type AskHandler struct {
	assistant service.Assistant
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(assistant service.Assistant) *AskHandler {
	return &AskHandler{
		assistant: assistant,
	}
}

// AskRequest represents the HTTP request payload for questions.
//
// swagger:model AskRequest
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse represents the HTTP response payload for questions.
//
// swagger:model AskResponse
type AskResponse struct {
	// The answer, ending with the source citation footer
	Answer string `json:"answer"`

	// Cached reports whether the answer came from the session cache
	Cached bool `json:"cached"`

	// Categories detected from the question keywords
	Categories []string `json:"categories"`

	// Sources are the reranked chunks the answer was generated from, best first
	Sources []SourceResponse `json:"sources"`
}

// SourceResponse identifies one chunk used as answer context.
//
// swagger:model SourceResponse
type SourceResponse struct {
	Category  string  `json:"category"`
	Filename  string  `json:"filename"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float32 `json:"score"`
}

// ServeHTTP handles HTTP requests for questions.
//
// Ask a question about the loaded knowledge base. Repeating a question
// (ignoring case and surrounding whitespace) returns the cached answer.
//
// swagger:route POST /api/v1/ask askQuestion
//
// # Ask a question
//
// Answers from retrieved knowledge base content only and cites the top source.
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// parameters:
//   - in: body
//     name: body
//     required: true
//     schema:
//     "$ref": "#/definitions/AskRequest"
//
// responses:
//
//	'200':
//	  description: Answer with its sources
//	  schema:
//	    "$ref": "#/definitions/AskResponse"
//	'400':
//	  description: Bad request (missing or empty question)
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'409':
//	  description: No knowledge base loaded
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'502':
//	  description: Embedding or language model provider failed
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'500':
//	  description: Internal server error
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	answer, err := h.assistant.Ask(ctx, req.Question)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	sources := make([]SourceResponse, len(answer.Sources))
	for i, s := range answer.Sources {
		sources[i] = SourceResponse{
			Category:  s.Category,
			Filename:  s.Filename,
			StartLine: s.StartLine,
			EndLine:   s.EndLine,
			Score:     s.Score,
		}
	}
	categories := answer.Categories
	if categories == nil {
		categories = []string{}
	}

	logger.InfoContext(ctx, "question answered", "cached", answer.Cached, "sources", len(sources))
	writeJSON(ctx, w, http.StatusOK, AskResponse{
		Answer:     answer.Text,
		Cached:     answer.Cached,
		Categories: categories,
		Sources:    sources,
	})
}
