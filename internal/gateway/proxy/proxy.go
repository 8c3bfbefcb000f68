// Package proxy implements the edge plane's gateway proxy: HTTP
// forwarding with header injection and streaming, plus a WebSocket upgrade
// relay (websocket.go) and a per-target circuit breaker (breaker.go).
// Grounded on internal/infra/resilience's gobreaker wrapper for the breaker
// and on net/http/httputil.ReverseProxy's director pattern for forwarding,
// generalized here to a data-driven Route target instead of a single static
// upstream.
package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nimbusgate/core/internal/ctxutil"
	domainerrors "github.com/nimbusgate/core/internal/domain/errors"
	"github.com/nimbusgate/core/internal/gateway/route"
	"github.com/nimbusgate/core/internal/infra/resilience"
	"github.com/nimbusgate/core/internal/shared/logger"
)

// hopByHopHeaders lists headers that must never be forwarded verbatim
// between hops: response headers from the upstream are forwarded
// except for hop-by-hop headers.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// AuthProviderHeaderValue is the fixed identity provider header value
// injected on every forwarded request.
const AuthProviderHeaderValue = "nimbusgate-trust"

// ForwardedHeaders names the identity headers injected downstream.
const (
	HeaderUserID       = "X-User-Id"
	HeaderUsername     = "X-Username"
	HeaderUserRoles    = "X-User-Roles"
	HeaderPersonaID    = "X-Persona-Id"
	HeaderAuthProvider = "X-Auth-Provider"
)

// Proxy forwards matched requests to Route targets.
type Proxy struct {
	// AllowedHeaders is the declared allow-list of inbound headers copied
	// through to the upstream request, in addition to injected identity
	// headers.
	AllowedHeaders []string

	// Transport round-trips the upstream call; wrapped with otelhttp so the
	// proxied call appears in the request's span tree.
	Transport http.RoundTripper

	// Limiter bounds concurrent upstream calls; exhaustion maps to 503
	// without contacting the upstream. Nil disables the bound.
	Limiter resilience.Bulkhead

	// UpstreamTimeout caps each upstream round trip; expiry maps to 504.
	// Nil leaves only the request's own deadline in effect.
	UpstreamTimeout resilience.Timeout

	breakers *BreakerRegistry
	log      *logger.Logger
}

// New builds a Proxy. breakers may be nil to disable circuit breaking.
func New(allowedHeaders []string, breakers *BreakerRegistry, log *logger.Logger) *Proxy {
	return &Proxy{
		AllowedHeaders: allowedHeaders,
		Transport:      otelhttp.NewTransport(http.DefaultTransport),
		breakers:       breakers,
		log:            log,
	}
}

// supportedMethods is the set of HTTP methods the proxy forwards.
var supportedMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true, http.MethodHead: true,
	http.MethodOptions: true,
}

// MethodSupported reports whether method is a supported verb.
func MethodSupported(method string) bool { return supportedMethods[method] }

// Forward proxies req to the matched route's target, rewriting the path,
// streaming the body both ways, and injecting identity headers from the
// Principal in ctx (absent for public routes). rewrittenPath is the path
// after the route's path-rewrite filter has been applied.
func (p *Proxy) Forward(w http.ResponseWriter, req *http.Request, matched route.Route, rewrittenPath string) error {
	target, err := url.Parse(matched.Target)
	if err != nil {
		return domainerrors.NewDomainWithCause(domainerrors.CodeUpstreamError, "invalid upstream target", err)
	}

	upstreamURL := *target
	upstreamURL.Path = singleJoiningSlash(target.Path, rewrittenPath)
	upstreamURL.RawQuery = req.URL.RawQuery

	outReq := req.Clone(req.Context())
	outReq.URL = &upstreamURL
	outReq.Host = target.Host
	outReq.RequestURI = ""
	outReq.Header = p.buildForwardHeaders(req)

	if fc, ok := matched.HasFilter(route.FilterHeaderInject); ok {
		for k, v := range fc.InjectHeaders {
			outReq.Header.Set(k, v)
		}
	}

	do := func(ctx context.Context) (*http.Response, error) {
		if p.UpstreamTimeout == nil {
			return p.transport().RoundTrip(outReq.WithContext(ctx))
		}
		var r *http.Response
		err := p.UpstreamTimeout.Do(ctx, func(ctx context.Context) error {
			var callErr error
			r, callErr = p.transport().RoundTrip(outReq.WithContext(ctx))
			return callErr
		})
		return r, err
	}

	var resp *http.Response
	upstream := func(ctx context.Context) error {
		if p.breakers == nil {
			var callErr error
			resp, callErr = do(ctx)
			if callErr != nil {
				if isTimeout(callErr) {
					p.logError(req, matched.Target, "upstream deadline exceeded", callErr)
					return domainerrors.NewDomainWithCause(domainerrors.CodeTimeout, "upstream deadline exceeded", callErr)
				}
				p.logError(req, matched.Target, "upstream request failed", callErr)
				return domainerrors.NewDomainWithCause(domainerrors.CodeUpstreamError, "upstream request failed", callErr)
			}
			return nil
		}

		breaker := p.breakers.For(matched.Target, matched.CircuitBreakerPolicy)
		result, cbErr := breaker.Execute(ctx, func() (interface{}, error) {
			r, e := do(ctx)
			if e != nil {
				return nil, e
			}
			if r.StatusCode >= 500 {
				return r, &upstreamStatusError{resp: r}
			}
			return r, nil
		})
		if cbErr != nil {
			var se *upstreamStatusError
			switch {
			case errors.As(cbErr, &se):
				resp = se.resp
				return nil
			case errors.Is(cbErr, resilience.ErrCircuitOpen):
				p.logError(req, matched.Target, "circuit open, upstream not contacted", cbErr)
				return domainerrors.NewDomainWithCause(domainerrors.CodeServiceUnavailable, "upstream circuit open", cbErr)
			case isTimeout(cbErr):
				p.logError(req, matched.Target, "upstream deadline exceeded", cbErr)
				return domainerrors.NewDomainWithCause(domainerrors.CodeTimeout, "upstream deadline exceeded", cbErr)
			default:
				p.logError(req, matched.Target, "upstream request failed", cbErr)
				return domainerrors.NewDomainWithCause(domainerrors.CodeUpstreamError, "upstream request failed", cbErr)
			}
		}
		resp = result.(*http.Response)
		return nil
	}

	run := upstream
	if p.Limiter != nil {
		// The bulkhead slot covers the whole upstream phase; a full pool
		// rejects before the breaker or transport are touched.
		run = func(ctx context.Context) error { return p.Limiter.Do(ctx, upstream) }
	}
	if err := run(req.Context()); err != nil {
		if errors.Is(err, resilience.ErrBulkheadFull) {
			p.logError(req, matched.Target, "upstream connection pool exhausted", err)
			return domainerrors.NewDomainWithCause(domainerrors.CodeServiceUnavailable, "upstream connection pool exhausted", err)
		}
		return err
	}
	defer resp.Body.Close()

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
	return nil
}

// isTimeout reports whether the upstream call failed on a deadline rather
// than a connect or protocol error; those map to 504, not 502.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, resilience.ErrTimeoutExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (p *Proxy) transport() http.RoundTripper {
	if p.Transport != nil {
		return p.Transport
	}
	return http.DefaultTransport
}

// logError emits a structured event for a failed upstream round trip,
// carrying the request's correlation-id.
func (p *Proxy) logError(req *http.Request, target, msg string, err error) {
	if p.log == nil {
		return
	}
	p.log.ErrorContext(req.Context(), msg,
		"target", target,
		"correlation_id", ctxutil.CorrelationIDFromContext(req.Context()),
		"error", err,
	)
}

// buildForwardHeaders copies the declared allow-list plus injects identity
// headers from the request's Principal.
func (p *Proxy) buildForwardHeaders(req *http.Request) http.Header {
	out := make(http.Header)
	for _, name := range p.AllowedHeaders {
		if v := req.Header.Values(name); len(v) > 0 {
			out[http.CanonicalHeaderKey(name)] = v
		}
	}
	stripHopByHop(out)

	if principal, ok := ctxutil.PrincipalFromContext(req.Context()); ok {
		out.Set(HeaderUserID, principal.Subject)
		out.Set(HeaderUsername, principal.Username)
		out.Set(HeaderUserRoles, principal.RolesHeader())
		out.Set(HeaderPersonaID, principal.Persona)
		out.Set(HeaderAuthProvider, AuthProviderHeaderValue)
	}
	return out
}

func copyResponseHeaders(dst, src http.Header) {
	for k, vv := range src {
		if isHopByHop(k) {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func stripHopByHop(h http.Header) {
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

func isHopByHop(name string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

type upstreamStatusError struct {
	resp *http.Response
}

func (e *upstreamStatusError) Error() string {
	return "upstream returned status " + e.resp.Status
}
