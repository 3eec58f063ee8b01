package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/interlink/internal/linkservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *linkservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Keyword registry.
	r.Get("/registry", h.GetRegistry)
	r.Get("/registry/flat", h.GetFlatRegistry)
	r.Post("/registry/keywords", h.AddKeyword)
	r.Put("/registry/keywords/{keyword}", h.UpdateKeyword)
	r.Delete("/registry/keywords/{keyword}", h.RemoveKeyword)

	// Usage ledger.
	r.Get("/ledger", h.GetLedger)
	r.Put("/ledger/{keyword}/articles/{id}", h.LinkOn)
	r.Delete("/ledger/{keyword}/articles/{id}", h.LinkOff)

	// Articles.
	r.Get("/articles", h.ListArticles)
	r.Get("/articles/search", h.SearchArticles)

	// Runs.
	r.Post("/collect", h.Collect)
	r.Post("/reconcile", h.Reconcile)
	r.Post("/detect", h.Detect)
	r.Get("/runs", h.ListRuns)
	r.Get("/runs/{id}", h.GetRun)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
