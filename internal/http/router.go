package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"kbassist/internal/extract"
	"kbassist/internal/handlers"
	"kbassist/internal/service"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Assistant service.Assistant
	KBPath    string            // Knowledge base root served by the document viewer
	Extractor *extract.Registry // Renders non-markdown documents as text
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	extractor := deps.Extractor
	if extractor == nil {
		extractor = extract.NewRegistry()
	}

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", handlers.NewHealthHandler(deps.Assistant))

		r.Route("/v1", func(r chi.Router) {
			r.Method(http.MethodGet, "/status", handlers.NewStatusHandler(deps.Assistant))
			r.Method(http.MethodGet, "/links", handlers.NewLinksHandler(deps.Assistant))
			r.Method(http.MethodGet, "/history", handlers.NewHistoryHandler(deps.Assistant))
			r.Method(http.MethodPost, "/ask", handlers.NewAskHandler(deps.Assistant))
			r.Method(http.MethodPost, "/rebuild", handlers.NewRebuildHandler(deps.Assistant))
			r.Method(http.MethodPost, "/clear", handlers.NewClearHandler(deps.Assistant))
			r.Method(http.MethodGet, "/documents/{category}/*", handlers.NewDocumentHandler(deps.KBPath, extractor))
		})
	})

	return r
}
