package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusgate/core/internal/gateway/proxy"
	"github.com/nimbusgate/core/internal/gateway/route"
	"github.com/nimbusgate/core/internal/trust"
)

// upstreamRecorder captures what the proxied service received.
type upstreamRecorder struct {
	lastPath    string
	lastHeaders http.Header
	hits        int
}

func newUpstream(t *testing.T) (*httptest.Server, *upstreamRecorder) {
	t.Helper()
	rec := &upstreamRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.hits++
		rec.lastPath = r.URL.Path
		rec.lastHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func newGateway(t *testing.T, routes []route.Route, available []string, deprecated map[string]bool) *Gateway {
	t.Helper()

	verifier, err := trust.New(trust.Config{
		Keys: trust.KeyConfig{HMACSecret: []byte(testSecret)},
	})
	require.NoError(t, err)

	return &Gateway{
		Resolver: route.NewResolver(routes),
		Proxy:    proxy.New([]string{"Accept", "Content-Type"}, nil, nil),
		Negotiator: route.VersionNegotiator{
			Available:  available,
			Default:    available[0],
			Deprecated: deprecated,
		},
		Verifier: verifier,
	}
}

// Public route bypass: no Authorization, 200, upstream sees no identity
// headers.
func TestGateway_PublicRouteBypass(t *testing.T) {
	upstream, rec := newUpstream(t)
	gw := newGateway(t, []route.Route{{
		ID:        "health",
		Predicate: route.Predicate{PathPattern: "/health/**"},
		Target:    upstream.URL,
	}}, []string{"v1"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/gateway", nil)
	rr := httptest.NewRecorder()
	gw.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, rec.hits)
	assert.Empty(t, rec.lastHeaders.Get(proxy.HeaderUserID))
	assert.Empty(t, rec.lastHeaders.Get(proxy.HeaderUserRoles))
}

// Protected route with a valid token: upstream sees the injected identity
// headers.
func TestGateway_ProtectedRouteInjectsIdentity(t *testing.T) {
	upstream, rec := newUpstream(t)
	gw := newGateway(t, []route.Route{{
		ID:        "hives",
		Predicate: route.Predicate{PathPattern: "/hives/**"},
		Target:    upstream.URL,
		Filters:   []route.Filter{{Kind: route.FilterJWTRequired}},
	}}, []string{"v1"}, nil)

	token := signToken(t, jwt.MapClaims{
		"sub":        "user-123",
		"username":   "testuser",
		"roles":      []any{"USER", "PREMIUM"},
		"persona_id": "p-1",
		"iat":        jwt.NewNumericDate(time.Now()),
		"exp":        jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	req := httptest.NewRequest(http.MethodGet, "/hives/123", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	gw.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "user-123", rec.lastHeaders.Get(proxy.HeaderUserID))
	assert.Equal(t, "testuser", rec.lastHeaders.Get(proxy.HeaderUsername))
	assert.Equal(t, "USER,PREMIUM", rec.lastHeaders.Get(proxy.HeaderUserRoles))
	assert.Equal(t, "p-1", rec.lastHeaders.Get(proxy.HeaderPersonaID))
	assert.NotEmpty(t, rec.lastHeaders.Get(proxy.HeaderAuthProvider))
}

// Expired token: 401 with the stable body, upstream never contacted.
func TestGateway_ExpiredTokenNeverReachesUpstream(t *testing.T) {
	upstream, rec := newUpstream(t)
	gw := newGateway(t, []route.Route{{
		ID:        "hives",
		Predicate: route.Predicate{PathPattern: "/hives/**"},
		Target:    upstream.URL,
		Filters:   []route.Filter{{Kind: route.FilterJWTRequired}},
	}}, []string{"v1"}, nil)

	token := signToken(t, jwt.MapClaims{
		"sub": "user-123",
		"iat": jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		"exp": jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})

	req := httptest.NewRequest(http.MethodGet, "/hives/123", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	gw.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), `"error":"Unauthorized"`)
	assert.Contains(t, rr.Body.String(), "Valid JWT token required")
	assert.Equal(t, 0, rec.hits)
}

// Version negotiation: Accept-Version picks the highest-weighted available
// version, routes to the version-specific target, and the response carries
// API-Version.
func TestGateway_VersionNegotiation(t *testing.T) {
	upstreamV1, recV1 := newUpstream(t)
	upstreamV2, recV2 := newUpstream(t)

	gw := newGateway(t, []route.Route{
		{
			ID:        "hives-v2",
			Predicate: route.Predicate{PathPattern: "/hives/**", Version: "v2"},
			Target:    upstreamV2.URL,
		},
		{
			ID:        "hives-v1",
			Predicate: route.Predicate{PathPattern: "/hives/**", Version: "v1"},
			Target:    upstreamV1.URL,
		},
	}, []string{"v1", "v2"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/hives/123", nil)
	req.Header.Set("Accept-Version", "v2, v1;q=0.8")
	rr := httptest.NewRecorder()
	gw.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "v2", rr.Header().Get("API-Version"))
	assert.Equal(t, 1, recV2.hits)
	assert.Equal(t, 0, recV1.hits)
}

func TestGateway_NoAcceptableVersionIs406(t *testing.T) {
	upstream, _ := newUpstream(t)
	gw := newGateway(t, []route.Route{{
		ID:        "hives",
		Predicate: route.Predicate{PathPattern: "/hives/**"},
		Target:    upstream.URL,
	}}, []string{"v1"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/hives/123", nil)
	req.Header.Set("Accept-Version", "v9")
	rr := httptest.NewRecorder()
	gw.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotAcceptable, rr.Code)
}

func TestGateway_DeprecatedVersionHeaders(t *testing.T) {
	upstream, _ := newUpstream(t)
	gw := newGateway(t, []route.Route{{
		ID:        "hives",
		Predicate: route.Predicate{PathPattern: "/hives/**"},
		Target:    upstream.URL,
	}}, []string{"v1"}, map[string]bool{"v1": true})

	req := httptest.NewRequest(http.MethodGet, "/v1/hives/123", nil)
	rr := httptest.NewRecorder()
	gw.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "true", rr.Header().Get("Deprecation"))
	assert.NotEmpty(t, rr.Header().Get("Warning"))
}

// Path version segment is stripped before route matching, so /v1/hives/**
// matches the /hives/** predicate and the upstream sees the stripped path.
func TestGateway_PathVersionStripped(t *testing.T) {
	upstream, rec := newUpstream(t)
	gw := newGateway(t, []route.Route{{
		ID:        "hives",
		Predicate: route.Predicate{PathPattern: "/hives/**"},
		Target:    upstream.URL,
	}}, []string{"v1"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/hives/123", nil)
	rr := httptest.NewRecorder()
	gw.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "/hives/123", rec.lastPath)
}

func TestGateway_NoMatchIs404(t *testing.T) {
	upstream, _ := newUpstream(t)
	gw := newGateway(t, []route.Route{{
		ID:        "hives",
		Predicate: route.Predicate{PathPattern: "/hives/**"},
		Target:    upstream.URL,
	}}, []string{"v1"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/unknown/path", nil)
	rr := httptest.NewRecorder()
	gw.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
