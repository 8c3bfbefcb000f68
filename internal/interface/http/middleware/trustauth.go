package middleware

import (
	"net/http"

	"github.com/nimbusgate/core/internal/ctxutil"
	"github.com/nimbusgate/core/internal/interface/http/problem"
	"github.com/nimbusgate/core/internal/trust"
)

// UnauthorizedMessage is the stable 401 message protected routes return.
const UnauthorizedMessage = "Valid JWT token required"

// TrustAuth verifies bearer tokens through the Trust Layer and attaches the
// resulting Principal to the request context. Protected routes respond 401
// with the uniform error body on any verification failure; the upstream is
// never contacted.
func TrustAuth(verifier *trust.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := verifier.Verify(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				problem.Write(w, http.StatusUnauthorized, UnauthorizedMessage, r.URL.Path)
				return
			}
			ctx := ctxutil.NewPrincipalContext(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalTrustAuth attaches a Principal when a valid token is present but
// lets anonymous requests through; used on public routes so downstream
// handlers can still personalize when identity happens to be available.
func OptionalTrustAuth(verifier *trust.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth := r.Header.Get("Authorization"); auth != "" {
				if principal, err := verifier.Verify(r.Context(), auth); err == nil {
					r = r.WithContext(ctxutil.NewPrincipalContext(r.Context(), principal))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
