package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/quarry/internal/catalog"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *catalog.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/collections", h.ListCollections)
	r.Route("/collections/{name}", func(r chi.Router) {
		r.Get("/", h.GetCollection)
		r.Get("/items", h.QueryItems)
		r.Get("/items/{id}", h.GetItem)
		r.Post("/validate", h.ValidateItem)
		r.Get("/invalid", h.ListInvalid)
		r.Get("/search", h.Search)
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
