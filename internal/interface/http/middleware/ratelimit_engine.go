package middleware

import (
	"net/http"
	"strconv"

	"github.com/nimbusgate/core/internal/ctxutil"
	"github.com/nimbusgate/core/internal/interface/http/problem"
	"github.com/nimbusgate/core/internal/interface/http/request"
	"github.com/nimbusgate/core/internal/ratelimit"
)

// Rate-limit response headers, per the gateway's external contract.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// RateLimitedMessage is the stable 429 message.
const RateLimitedMessage = "Rate limit exceeded"

// APIKeyTierResolver maps an inbound API key to its tier's quota. ok is
// false for unknown keys.
type APIKeyTierResolver interface {
	QuotaForKey(apiKey string) (ratelimit.Quota, bool)
}

// EngineRateLimitConfig wires the multi-dimensional Rate-Limit Engine into
// the middleware chain. Dimension precedence: route-specific >
// API-key tier > principal > IP.
type EngineRateLimitConfig struct {
	Engine *ratelimit.Engine

	// RouteQuota, when non-nil, is the route-specific quota declared by a
	// matched route's rate-limit filter.
	RouteQuota *ratelimit.Quota
	// RouteID keys the route dimension's counters.
	RouteID string

	// KeyTiers resolves API-key-tier quotas from the X-API-Key header.
	KeyTiers APIKeyTierResolver

	// PrincipalQuota applies per authenticated principal.
	PrincipalQuota *ratelimit.Quota

	// IPQuota is the fallback dimension for anonymous traffic.
	IPQuota *ratelimit.Quota

	// BypassRole names the allow-listed principal role whose requests skip
	// rate-limit application (still counted for observability).
	BypassRole string

	// TrustProxy enables X-Forwarded-For/X-Real-IP extraction.
	TrustProxy bool
}

// APIKeyHeaderName is the inbound API key header.
const APIKeyHeaderName = "X-API-Key"

// EngineRateLimit enforces the configured quota vector, emitting the
// X-RateLimit-* headers on every response and Retry-After on 429.
func EngineRateLimit(cfg EngineRateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, quota, ok := resolveDimension(cfg, r)
			if !ok {
				// No quota configured for any dimension of this request.
				next.ServeHTTP(w, r)
				return
			}

			bypass := false
			if cfg.BypassRole != "" {
				if principal, authed := ctxutil.PrincipalFromContext(r.Context()); authed {
					bypass = principal.HasRole(cfg.BypassRole)
				}
			}

			decision, err := cfg.Engine.Allow(r.Context(), key, quota, bypass)
			if err != nil {
				problem.Write(w, http.StatusServiceUnavailable, "rate limiter unavailable", r.URL.Path)
				return
			}

			if !decision.Bypassed {
				writeRateLimitHeaders(w, decision)
			}
			if !decision.Allowed {
				w.Header().Set(HeaderRetryAfter, strconv.Itoa(decision.RetryAfter))
				problem.Write(w, http.StatusTooManyRequests, RateLimitedMessage, r.URL.Path)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// resolveDimension picks the controlling (key, quota) pair by precedence.
func resolveDimension(cfg EngineRateLimitConfig, r *http.Request) (ratelimit.Key, ratelimit.Quota, bool) {
	if cfg.RouteQuota != nil {
		return ratelimit.Key{Dimension: ratelimit.DimensionRoute, Value: cfg.RouteID}, *cfg.RouteQuota, true
	}

	if cfg.KeyTiers != nil {
		if apiKey := r.Header.Get(APIKeyHeaderName); apiKey != "" {
			if quota, ok := cfg.KeyTiers.QuotaForKey(apiKey); ok {
				return ratelimit.Key{Dimension: ratelimit.DimensionAPIKey, Value: apiKey}, quota, true
			}
		}
	}

	if cfg.PrincipalQuota != nil {
		if principal, ok := ctxutil.PrincipalFromContext(r.Context()); ok && principal.Subject != "" {
			return ratelimit.Key{Dimension: ratelimit.DimensionPrincipal, Value: principal.Subject}, *cfg.PrincipalQuota, true
		}
	}

	if cfg.IPQuota != nil {
		ip := request.GetRealIP(r, cfg.TrustProxy)
		return ratelimit.Key{Dimension: ratelimit.DimensionIP, Value: ip}, *cfg.IPQuota, true
	}

	return ratelimit.Key{}, ratelimit.Quota{}, false
}

func writeRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set(HeaderRateLimitLimit, strconv.FormatInt(d.Limit, 10))
	w.Header().Set(HeaderRateLimitRemaining, strconv.FormatInt(d.Remaining, 10))
	w.Header().Set(HeaderRateLimitReset, strconv.FormatInt(d.ResetAtUnix, 10))
}

// StaticKeyTiers is an APIKeyTierResolver backed by an immutable map from
// API key to tier quota, loaded from configuration at startup.
type StaticKeyTiers struct {
	Quotas map[string]ratelimit.Quota
}

// QuotaForKey implements APIKeyTierResolver.
func (s StaticKeyTiers) QuotaForKey(apiKey string) (ratelimit.Quota, bool) {
	q, ok := s.Quotas[apiKey]
	return q, ok
}
