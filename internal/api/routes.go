package api

import (
	"net/http"

	"chat-keystore/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates and configures a Chi router with all routes
func NewRouter(h *Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout()))
	r.Use(CORSMiddleware(cfg.HTTP.CORSAllowedOrigins))
	r.Use(MetricsMiddleware)

	// must be set before Route so sub-routers inherit them
	r.NotFound(h.HandleNotFound)
	r.MethodNotAllowed(h.HandleMethodNotAllowed)

	// Metrics endpoint for Prometheus
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)

		// Token store
		r.Get("/tokens", h.HandleGetTokens)
		r.Post("/tokens", h.HandleSaveToken)
		r.Delete("/tokens", h.HandleDeleteToken)

		// Key status and resolution
		r.Get("/check-env-key", h.HandleCheckEnvKey)
		r.Get("/keys", h.HandleResolveKeys)
		r.Post("/keys", h.HandleSaveKey)

		r.Get("/providers", h.HandleGetProviders)
	})

	return r
}
