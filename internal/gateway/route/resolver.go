// Package route (resolver.go) adds the Resolver itself: the ordered,
// hot-reloadable Route table, built atop atomic.Pointer so readers always
// take a consistent snapshot.
package route

import (
	"net/http"
	"sync/atomic"

	domainerrors "github.com/nimbusgate/core/internal/domain/errors"
)

// ErrNoMatch is returned by Resolve when no route matches: first match
// wins, and no match maps to 404 through the uniform error shape.
var ErrNoMatch = domainerrors.NewDomain(domainerrors.CodeNotFound, "no route matches this request")

// Resolver holds an ordered Route table and resolves inbound requests
// against it, evaluating predicates in declared order and honoring
// first-match-wins semantics.
type Resolver struct {
	snapshot atomic.Pointer[[]Route]
}

// NewResolver builds a Resolver seeded with routes.
func NewResolver(routes []Route) *Resolver {
	r := &Resolver{}
	r.Reload(routes)
	return r
}

// Reload atomically swaps the route table; in-flight readers keep the
// snapshot they already took.
func (r *Resolver) Reload(routes []Route) {
	cp := append([]Route(nil), routes...)
	r.snapshot.Store(&cp)
}

// Routes returns the currently active route table.
func (r *Resolver) Routes() []Route {
	if p := r.snapshot.Load(); p != nil {
		return *p
	}
	return nil
}

// Resolve evaluates req against the route table in declared order and
// returns the first matching Route, or ErrNoMatch. version is the
// already-negotiated API version (possibly empty if versioning isn't
// engaged for this request).
func (r *Resolver) Resolve(req *http.Request, version string) (Route, error) {
	for _, candidate := range r.Routes() {
		if candidate.Matches(req, version) {
			return candidate, nil
		}
	}
	return Route{}, ErrNoMatch
}
