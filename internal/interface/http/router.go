// Package http provides HTTP server and routing functionality.
package http

import (
	"context"
	"log"

	"github.com/go-chi/chi/v5"

	"github.com/nimbusgate/core/internal/infra/config"
	"github.com/nimbusgate/core/internal/interface/http/middleware"
	"github.com/nimbusgate/core/internal/observability"
)

// TracerShutdown holds the tracer shutdown function for graceful cleanup.
var TracerShutdown func(context.Context) error

// NewRouter creates the edge router: global middleware in a fixed order
// (recovery first, then correlation/request identifiers, tracing, logging,
// rate limiting), the local handler surface from deps, and the gateway
// pass-through as the NotFound fallback.
//
// The cfg parameter drives middleware configuration:
// - Logging middleware (cfg.LogLevel, cfg.LogFormat, cfg.Env)
// - OpenTelemetry middleware (cfg.OTELEnabled/cfg.OTELExporterEndpoint)
func NewRouter(cfg *config.Config, deps *Deps) chi.Router {
	// Initialize logger with config
	logger, err := observability.NewLogger(cfg)
	if err != nil {
		log.Printf("Failed to initialize logger, using nop: %v", err)
		logger = observability.NewNopLogger()
	}

	// Initialize tracer if configured
	if cfg.OTELEnabled && cfg.OTELExporterEndpoint != "" {
		_, shutdown, err := observability.NewTracerProvider(context.Background(), cfg)
		if err != nil {
			log.Printf("Failed to initialize tracer: %v", err)
		} else {
			TracerShutdown = shutdown
		}
	}

	r := chi.NewRouter()

	// Global middleware (order matters!)
	r.Use(middleware.Recovery(logger)) // FIRST to catch all panics
	if deps.Drain != nil {
		r.Use(deps.Drain)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Correlation)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Otel("api"))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics)
	if deps.RateLimit != nil {
		r.Use(deps.RateLimit)
	}

	RegisterRoutes(r, deps)

	return r
}
