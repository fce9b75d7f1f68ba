package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func NewRouter(handler *Handler, health *HealthHandler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware (applied to all routes)
	r.Use(RecoveryMiddleware(logger))
	r.Use(CORSMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	// Health and metrics endpoints are registered BEFORE the rate limiter
	// so Kubernetes probes and Prometheus scrapes are never rejected under load.
	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Rate limiter only applies to API routes below
	r.Group(func(r chi.Router) {
		rl := NewRateLimiter(1000, logger)
		r.Use(rl.Middleware)

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/search", func(r chi.Router) {
				r.Get("/", handler.Serp)
				r.Get("/resolve", handler.Resolve)
				r.Get("/parse", handler.ParseQuery)
				r.Get("/suggest", handler.Suggest)
				r.Get("/trending", handler.Trending)
				r.Get("/zero-state", handler.ZeroState)
			})

			r.Route("/events", func(r chi.Router) {
				r.Post("/search", handler.LogSearchEvent)
				r.Post("/click", handler.LogClickEvent)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Get("/ping-es", handler.PingIndex)
				r.Get("/top-queries", handler.TopQueries)
				r.Post("/create-index", handler.CreateIndex)
				r.Post("/reset-index", handler.ResetIndex)
				r.Post("/seed", handler.SeedIndex)
				r.Post("/entities", handler.PublishEntities)
				r.Post("/reload-redirects", handler.ReloadRedirects)
			})
		})
	})

	return r
}
