package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/osk/fintrack/internal/adapter/http/handler"
	"github.com/osk/fintrack/internal/adapter/http/middleware"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	QueueHandler   *handler.QueueHandler
	BalanceHandler *handler.BalanceHandler
	SyncHandler    *handler.SyncHandler
	HealthHandler  *handler.HealthHandler
	AccessLogger   zerolog.Logger
	RateLimiter    *middleware.RateLimiter
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Metrics)
	r.Use(middleware.NewLoggingMiddleware(cfg.AccessLogger).Wrap)
	r.Use(middleware.Recovery)
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Queue
		r.Route("/queue", func(r chi.Router) {
			r.Post("/", cfg.QueueHandler.Enqueue)
			r.Get("/statistics", cfg.QueueHandler.Statistics)
			r.Post("/drain", cfg.QueueHandler.Drain)
			r.Post("/reclaim", cfg.QueueHandler.Reclaim)
			r.Post("/retry-failed", cfg.QueueHandler.RetryFailed)
			r.Get("/{id}", cfg.QueueHandler.Get)
		})

		// Balances
		r.Route("/balances", func(r chi.Router) {
			r.Post("/recompute", cfg.BalanceHandler.Recompute)
			r.Get("/{month}", cfg.BalanceHandler.GetMonthly)
		})

		// Pull
		if cfg.SyncHandler != nil {
			r.Post("/pull/{entityType}", cfg.SyncHandler.Pull)
		}
	})

	return r
}
