package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"labtree/internal/handlers"
	"labtree/internal/metrics"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Notebook  handlers.Notebook
	DB        handlers.Pinger
	BasePath  string
	Renderer  handlers.Renderer
	IndexHTML string // Embedded HTML content
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", handlers.NewHealthHandler(deps.DB, deps.BasePath))

		r.Route("/v1", func(r chi.Router) {
			r.Use(middleware.Timeout(10 * time.Minute))

			r.Handle("/scan", handlers.NewScanHandler(deps.Notebook))
			r.Method(http.MethodGet, "/scans", handlers.NewHistoryHandler(deps.Notebook))
			r.Handle("/check", handlers.NewCheckHandler(deps.Notebook))

			r.Method(http.MethodPost, "/docs", handlers.NewCreateDocHandler(deps.Notebook))
			r.Method(http.MethodGet, "/docs/{id}", handlers.NewDocHandler(deps.Notebook))
			r.Method(http.MethodGet, "/docs/{id}/comment", handlers.NewCommentHandler(deps.Notebook, deps.Renderer))

			r.Method(http.MethodGet, "/hierarchy", handlers.NewChildrenHandler(deps.Notebook))
			r.Method(http.MethodGet, "/fingerprints", handlers.NewFingerprintsHandler(deps.Notebook))
		})
	})

	// Serve HTML page at root
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(deps.IndexHTML))
	})

	return r
}
