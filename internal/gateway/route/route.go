// Package route implements the edge plane's route resolver and API
// versioning sub-resolver: an ordered list of Route definitions
// matched by path/header/query/version predicate, with path rewrite and a
// declared filter chain. Modeled after a chi-style router
// (internal/interface/http/router.go) generalized from a single static
// mount table into data-driven, hot-reloadable route definitions.
package route

import (
	"net/http"
	"strings"
)

// FilterKind names one of the filter types a Route's chain may declare,
// each matched route may declare filters: JWT-required,
// rate-limit (by named quota), path-rewrite, circuit-breaker, header-inject."
type FilterKind string

const (
	FilterJWTRequired    FilterKind = "jwt_required"
	FilterRateLimit      FilterKind = "rate_limit"
	FilterPathRewrite    FilterKind = "path_rewrite"
	FilterCircuitBreaker FilterKind = "circuit_breaker"
	FilterHeaderInject   FilterKind = "header_inject"
)

// Filter is one step in a Route's declared filter chain, applied in order.
type Filter struct {
	Kind FilterKind

	// RateLimitQuotaName names the Quota (resolved by the caller) this
	// filter enforces, when Kind == FilterRateLimit.
	RateLimitQuotaName string

	// RewriteFrom/RewriteTo implement path rewrite when Kind ==
	// FilterPathRewrite; RewriteFrom is a prefix, RewriteTo its replacement.
	RewriteFrom string
	RewriteTo   string

	// InjectHeaders carries static headers added to the forwarded request
	// when Kind == FilterHeaderInject.
	InjectHeaders map[string]string
}

// Predicate is the match criteria for a Route, evaluated in the declared
// order: path glob, header equality, query equality, version selector.
type Predicate struct {
	// PathPattern supports "/prefix/**" (matches prefix and everything
	// under it) and single-segment wildcards ("/users/*/orders").
	PathPattern string

	// Methods restricts the predicate to these HTTP methods; empty means
	// any method matches.
	Methods []string

	// Headers must all equal (case-insensitive header name, exact value
	// match) for the predicate to match.
	Headers map[string]string

	// Query parameters must all equal for the predicate to match.
	Query map[string]string

	// Version, when non-empty, restricts the predicate to a specific API
	// version as resolved by the versioning sub-resolver.
	Version string
}

// Route is a named predicate + target + filter chain definition, per the
// Routes are process-wide read-mostly and swapped atomically on hot
// reload.
type Route struct {
	ID        string
	Predicate Predicate
	Target    string // upstream base URL, e.g. "http://hives-service:8080"
	Filters   []Filter

	// Deprecated marks a route's target API version as deprecated, per
	// matched requests get a Deprecation/Warning response header.
	Deprecated bool

	// CircuitBreakerPolicy configures the per-target breaker for this
	// route's Gateway Proxy forwarding, when a FilterCircuitBreaker filter
	// is present.
	CircuitBreakerPolicy CircuitBreakerPolicy
}

// CircuitBreakerPolicy configures the per-target circuit breaker.
type CircuitBreakerPolicy struct {
	FailureRatioThreshold float64
	MinimumRequests       uint32
	CooldownSeconds       int
}

// Matches reports whether r matches the incoming request, evaluating the
// predicate components in declared order: path, headers, query, version.
// version is the already-negotiated API version string (possibly empty if
// versioning isn't engaged for this request).
func (r Route) Matches(req *http.Request, version string) bool {
	p := r.Predicate

	if !matchPath(p.PathPattern, req.URL.Path) {
		return false
	}
	if len(p.Methods) > 0 && !containsFold(p.Methods, req.Method) {
		return false
	}
	for name, want := range p.Headers {
		if req.Header.Get(name) != want {
			return false
		}
	}
	for key, want := range p.Query {
		if req.URL.Query().Get(key) != want {
			return false
		}
	}
	if p.Version != "" && p.Version != version {
		return false
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// matchPath implements the supported glob subset: "/prefix/**" matches
// the prefix and everything under it; a bare "*" segment matches exactly
// one path segment. An empty pattern matches everything (catch-all route).
func matchPath(pattern, path string) bool {
	if pattern == "" {
		return true
	}
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}

	patternSegs := splitSegments(pattern)
	pathSegs := splitSegments(path)
	if len(patternSegs) != len(pathSegs) {
		return false
	}
	for i, seg := range patternSegs {
		if seg == "*" {
			continue
		}
		if seg != pathSegs[i] {
			return false
		}
	}
	return true
}

func splitSegments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Rewrite applies the route's path-rewrite filter (if any) to path.
// Rewrite is idempotent on already-rewritten paths: once RewriteFrom no
// longer prefixes the path, subsequent calls are no-ops (the rewrite is
// idempotent
// property "Rewrite ∘ Resolve is idempotent on already-rewritten paths").
func (r Route) Rewrite(path string) string {
	for _, f := range r.Filters {
		if f.Kind != FilterPathRewrite {
			continue
		}
		if strings.HasPrefix(path, f.RewriteFrom) {
			return f.RewriteTo + strings.TrimPrefix(path, f.RewriteFrom)
		}
	}
	return path
}

// HasFilter reports whether the route declares a filter of the given kind.
func (r Route) HasFilter(kind FilterKind) (Filter, bool) {
	for _, f := range r.Filters {
		if f.Kind == kind {
			return f, true
		}
	}
	return Filter{}, false
}
