package http

import (
	"net/http"
	"strconv"

	"github.com/nimbusgate/core/internal/ctxutil"
	"github.com/nimbusgate/core/internal/gateway/proxy"
	"github.com/nimbusgate/core/internal/gateway/route"
	"github.com/nimbusgate/core/internal/interface/http/middleware"
	"github.com/nimbusgate/core/internal/interface/http/problem"
	"github.com/nimbusgate/core/internal/interface/http/request"
	"github.com/nimbusgate/core/internal/ratelimit"
	"github.com/nimbusgate/core/internal/trust"
)

// Gateway is the pass-through edge handler: version negotiation, route
// resolution, the matched route's filter chain in declared order, then
// HTTP forwarding or WebSocket relay.
type Gateway struct {
	Resolver   *route.Resolver
	Proxy      *proxy.Proxy
	Negotiator route.VersionNegotiator
	Verifier   *trust.Verifier

	// RateLimiter evaluates named route quotas from rate-limit filters.
	RateLimiter *ratelimit.Engine
	// NamedQuotas resolves a rate-limit filter's quota name, including
	// version-specific overrides: "<name>@<version>" is consulted before
	// "<name>" so a configured version override wins.
	NamedQuotas map[string]ratelimit.Quota

	// BypassRole is the allow-listed principal role skipping rate limits.
	BypassRole string
	// TrustProxy enables client IP extraction from forwarding headers.
	TrustProxy bool
}

// ServeHTTP implements the edge control flow for proxied traffic.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !proxy.MethodSupported(r.Method) {
		problem.Write(w, http.StatusMethodNotAllowed, "method not supported", r.URL.Path)
		return
	}

	version, rest, err := g.Negotiator.Negotiate(r)
	if err != nil {
		problem.WriteError(w, r, err)
		return
	}

	// Route predicates see the path with any version segment stripped.
	matchReq := r.Clone(r.Context())
	matchURL := *r.URL
	matchURL.Path = rest
	matchReq.URL = &matchURL

	matched, err := g.Resolver.Resolve(matchReq, version)
	if err != nil {
		problem.WriteError(w, r, err)
		return
	}

	// Filters apply in declared order; rewrite and header-inject take
	// effect at forward time inside the proxy.
	rewritten := rest
	for _, f := range matched.Filters {
		switch f.Kind {
		case route.FilterJWTRequired:
			principal, err := g.Verifier.Verify(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				problem.Write(w, http.StatusUnauthorized, middleware.UnauthorizedMessage, r.URL.Path)
				return
			}
			ctx := ctxutil.NewPrincipalContext(matchReq.Context(), principal)
			matchReq = matchReq.WithContext(ctx)

		case route.FilterRateLimit:
			if !g.applyRateLimit(w, matchReq, matched, f, version) {
				return
			}

		case route.FilterPathRewrite:
			rewritten = matched.Rewrite(rewritten)

		case route.FilterCircuitBreaker, route.FilterHeaderInject:
			// Enforced by the proxy at forward time.
		}
	}

	g.Negotiator.ApplyHeaders(w, version)
	if matched.Deprecated {
		w.Header().Set("Deprecation", "true")
		w.Header().Set("Warning", `299 - "this endpoint is deprecated"`)
	}

	if proxy.IsUpgradeRequest(r) {
		if err := g.Proxy.RelayWebSocket(w, matchReq, matched, rewritten); err != nil {
			problem.WriteError(w, r, err)
		}
		return
	}

	if err := g.Proxy.Forward(w, matchReq, matched, rewritten); err != nil {
		problem.WriteError(w, r, err)
	}
}

// applyRateLimit enforces a route's named quota. Returns false when the
// request was rejected and the response already written.
func (g *Gateway) applyRateLimit(w http.ResponseWriter, r *http.Request, matched route.Route, f route.Filter, version string) bool {
	if g.RateLimiter == nil {
		return true
	}
	quota, ok := g.lookupQuota(f.RateLimitQuotaName, version)
	if !ok {
		return true
	}

	key := ratelimit.Key{Dimension: ratelimit.DimensionRoute, Value: matched.ID + ":" + g.subjectForQuota(r)}

	bypass := false
	if g.BypassRole != "" {
		if principal, authed := ctxutil.PrincipalFromContext(r.Context()); authed {
			bypass = principal.HasRole(g.BypassRole)
		}
	}

	decision, err := g.RateLimiter.Allow(r.Context(), key, quota, bypass)
	if err != nil {
		problem.Write(w, http.StatusServiceUnavailable, "rate limiter unavailable", r.URL.Path)
		return false
	}
	if !decision.Bypassed {
		w.Header().Set(middleware.HeaderRateLimitLimit, strconv.FormatInt(decision.Limit, 10))
		w.Header().Set(middleware.HeaderRateLimitRemaining, strconv.FormatInt(decision.Remaining, 10))
		w.Header().Set(middleware.HeaderRateLimitReset, strconv.FormatInt(decision.ResetAtUnix, 10))
	}
	if !decision.Allowed {
		w.Header().Set(middleware.HeaderRetryAfter, strconv.Itoa(decision.RetryAfter))
		problem.Write(w, http.StatusTooManyRequests, middleware.RateLimitedMessage, r.URL.Path)
		return false
	}
	return true
}

// lookupQuota consults the version-specific override before the base name.
func (g *Gateway) lookupQuota(name, version string) (ratelimit.Quota, bool) {
	if version != "" {
		if q, ok := g.NamedQuotas[name+"@"+version]; ok {
			return q, true
		}
	}
	q, ok := g.NamedQuotas[name]
	return q, ok
}

// subjectForQuota keys the route dimension per caller: principal when
// authenticated, client IP otherwise.
func (g *Gateway) subjectForQuota(r *http.Request) string {
	if principal, ok := ctxutil.PrincipalFromContext(r.Context()); ok && principal.Subject != "" {
		return principal.Subject
	}
	return request.GetRealIP(r, g.TrustProxy)
}
