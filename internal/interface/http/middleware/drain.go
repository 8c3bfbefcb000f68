package middleware

import (
	"net/http"

	"github.com/nimbusgate/core/internal/infra/resilience"
	"github.com/nimbusgate/core/internal/interface/http/problem"
)

// Drain tracks in-flight requests against the shutdown coordinator. Once
// shutdown has begun, new requests are rejected with 503 while the
// coordinator waits for the active ones to finish.
func Drain(coord resilience.ShutdownCoordinator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !coord.IncrementActive() {
				w.Header().Set("Connection", "close")
				problem.Write(w, http.StatusServiceUnavailable, "server is shutting down", r.URL.Path)
				return
			}
			defer coord.DecrementActive()
			next.ServeHTTP(w, r)
		})
	}
}
