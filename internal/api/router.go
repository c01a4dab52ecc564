package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/everzim/internal/backup"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *backup.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	fh := NewFileHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Stateless conversions.
	r.Post("/rewrite", h.Rewrite)
	r.Post("/sanitize", h.Sanitize)
	r.Post("/convert", h.Convert)

	// Output tree.
	r.Post("/notes", fh.Upload)
	r.Get("/files/*", fh.ServeFile)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
