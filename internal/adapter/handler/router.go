package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/item-catalog/internal/observability"
)

// NewRouter mounts the item endpoints behind authentication. Health and
// metrics stay public.
func NewRouter(h *HTTPHandler, resolver IdentityResolver, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(WithRequestID)
	r.Use(WithLogging(logger, metrics))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(resolver, logger))
		r.Post("/item/", h.CreateItem)
		r.Get("/items/", h.RetrieveItems)
		r.Put("/item/", h.UpdateItem)
	})
	return r
}
