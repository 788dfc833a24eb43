package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/docsage/docsage/internal/api"
	"github.com/docsage/docsage/internal/api/handlers"
	"github.com/docsage/docsage/internal/api/middleware"
)

type RouterConfig struct {
	AuthValidator   middleware.AuthValidator
	DocumentHandler *handlers.DocumentHandler
	QueryHandler    *handlers.QueryHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", cfg.DocumentHandler.Ingest)
			r.Get("/", cfg.DocumentHandler.List)
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Delete("/{id}", cfg.DocumentHandler.Delete)
		})

		r.Post("/search", cfg.QueryHandler.Search)
		r.Post("/query", cfg.QueryHandler.Query)
		r.Post("/query/agent", cfg.QueryHandler.AgentQuery)
	})

	return r
}
