// Package http provides HTTP server and routing functionality.
package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/nimbusgate/core/internal/interface/http/admin"
)

// AdminDeps carries the constructed admin handler set. The queue handlers
// give operators visibility into the Outbound Producer's asynq queues
// (including the dead queue); the feature handlers expose runtime flags.
type AdminDeps struct {
	Features *admin.FeaturesHandler
	Queues   *admin.QueuesHandler
}

// RegisterAdminRoutes registers the Admin API under the /admin prefix.
//
// Admin routes are mounted at root level (/admin), not under /api/v1, to
// clearly separate administrative endpoints from the versioned API. The
// caller applies AuthMiddleware and RequireRole("admin") before this
// function is reached.
func RegisterAdminRoutes(r chi.Router, deps AdminDeps) {
	// Admin health check - validates admin access is working.
	r.Get("/health", admin.HealthHandler)

	if deps.Features != nil {
		r.Get("/features", deps.Features.ListFlags)
		r.Get("/features/{name}", deps.Features.GetFlag)
		r.Post("/features/{name}/enable", deps.Features.EnableFlag)
		r.Post("/features/{name}/disable", deps.Features.DisableFlag)
	}

	if deps.Queues != nil {
		r.Get("/queues/stats", deps.Queues.GetQueueStats)
		r.Get("/queues/{queue}/jobs", deps.Queues.ListJobs)
		r.Get("/queues/{queue}/failed", deps.Queues.ListFailedJobs)
		r.Delete("/queues/{queue}/failed/{id}", deps.Queues.DeleteFailedJob)
		r.Post("/queues/{queue}/failed/{id}/retry", deps.Queues.RetryFailedJob)
	}
}
