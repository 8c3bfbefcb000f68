// Package http provides HTTP server and routing functionality.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nimbusgate/core/internal/interface/http/handlers"
	"github.com/nimbusgate/core/internal/interface/http/middleware"
	"github.com/nimbusgate/core/internal/interface/http/problem"
	"github.com/nimbusgate/core/internal/trust"
)

// Deps carries the constructed handler set the router wires up. Every
// field is built explicitly at the process entry point; nil fields leave
// their routes unregistered so partial wiring (tests, worker-only
// processes) still produces a working router.
type Deps struct {
	Auth          *handlers.AuthHandler
	Notifications *handlers.NotificationHandler
	Templates     *handlers.TemplateHandler
	BroadcastWS   *handlers.BroadcastWSHandler
	Readyz        http.Handler

	// Verifier protects the authenticated surface.
	Verifier *trust.Verifier

	// RateLimit is the global engine-backed limiter middleware; nil
	// disables edge rate limiting (tests).
	RateLimit func(http.Handler) http.Handler

	// Drain tracks in-flight requests for graceful shutdown; nil disables
	// drain tracking (tests).
	Drain func(http.Handler) http.Handler

	// Authenticator guards the /admin surface; nil leaves it unmounted.
	Authenticator middleware.Authenticator
	Admin         AdminDeps
	// AdminRateLimit is the process-local limiter for the low-volume admin
	// surface; nil disables it.
	AdminRateLimit func(http.Handler) http.Handler

	// Gateway handles everything no local route claims: versioned
	// pass-through to backends, WebSocket upgrades to upstream services.
	Gateway *Gateway
}

// RegisterRoutes registers the local handler surface on r. Proxied traffic
// falls through to the Gateway via the router's NotFound handler.
func RegisterRoutes(r chi.Router, deps *Deps) {
	// Liveness/readiness, public.
	r.Get("/healthz", handlers.HealthHandler)
	if deps.Readyz != nil {
		r.Method(http.MethodGet, "/readyz", deps.Readyz)
	}
	r.Get("/health/gateway", handlers.HealthHandler)

	requireAuth := func(next http.Handler) http.Handler { return next }
	optionalAuth := requireAuth
	if deps.Verifier != nil {
		requireAuth = middleware.TrustAuth(deps.Verifier)
		optionalAuth = middleware.OptionalTrustAuth(deps.Verifier)
	}

	if deps.Auth != nil {
		r.Route("/auth", func(r chi.Router) {
			// Public: validates a token carried in the body.
			r.Post("/token/validate/public", deps.Auth.ValidatePublic)
			r.Post("/token/refresh", deps.Auth.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/logout", deps.Auth.Logout)
				r.Post("/logout/all", deps.Auth.LogoutAll)
				r.Post("/token/validate", deps.Auth.Validate)
			})
		})
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthHandler)

		if deps.Notifications != nil {
			r.Route("/notifications", func(r chi.Router) {
				r.Use(optionalAuth)
				r.Post("/", deps.Notifications.Create)
				r.Get("/", deps.Notifications.List)
				r.Get("/unread", deps.Notifications.Unread)
				r.Get("/unread/count", deps.Notifications.UnreadCount)
				r.Patch("/{id}/read", deps.Notifications.MarkRead)
				r.Patch("/{id}/archive", deps.Notifications.Archive)
				r.Delete("/{id}", deps.Notifications.Delete)
			})
		}

		if deps.Templates != nil {
			r.Route("/templates", func(r chi.Router) {
				r.Get("/", deps.Templates.List)
				r.Get("/statistics", deps.Templates.Statistics)
				r.Post("/variables/extract", deps.Templates.ExtractVariables)
				r.Get("/{type}/languages", deps.Templates.Languages)
				r.Post("/{type}/{lang}/validate", deps.Templates.ValidateVariables)
				r.Post("/{type}/{lang}/process", deps.Templates.Process)

				r.Group(func(r chi.Router) {
					r.Use(requireAuth)
					r.Post("/", deps.Templates.Create)
					r.Post("/bulk", deps.Templates.BulkCreate)
					// A regex-typed param keeps the UUID routes from
					// clashing with the {type} subtree above.
					r.Put("/{id:[0-9a-fA-F-]{36}}", deps.Templates.Update)
					r.Delete("/{id:[0-9a-fA-F-]{36}}", deps.Templates.Delete)
				})
			})
		}
	})

	if deps.Authenticator != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(deps.Authenticator))
			r.Use(middleware.RequireRole("admin"))
			if deps.AdminRateLimit != nil {
				r.Use(deps.AdminRateLimit)
			}
			RegisterAdminRoutes(r, deps.Admin)
		})
	}

	if deps.BroadcastWS != nil {
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Method(http.MethodGet, "/ws", deps.BroadcastWS)
		})
	}

	if deps.Gateway != nil {
		r.NotFound(deps.Gateway.ServeHTTP)
	} else {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			problem.Write(w, http.StatusNotFound, "no route matches this request", r.URL.Path)
		})
	}
}
