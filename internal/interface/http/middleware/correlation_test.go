package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusgate/core/internal/ctxutil"
)

func TestCorrelation_GeneratesWhenAbsent(t *testing.T) {
	var seen string
	handler := Correlation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ctxutil.CorrelationIDFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get(CorrelationIDHeader))
}

func TestCorrelation_EchoesInboundID(t *testing.T) {
	var seen string
	handler := Correlation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ctxutil.CorrelationIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "corr-abc")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "corr-abc", seen)
	assert.Equal(t, "corr-abc", rr.Header().Get(CorrelationIDHeader))
}

func TestOperationName_FallbackSanitizesIDs(t *testing.T) {
	assert.Equal(t, "GET /widgets/{id}", OperationName("GET", "/widgets/42"))
	assert.Equal(t, "POST /widgets/{id}/parts", OperationName("POST", "/widgets/9f4c2d66-9001-4b5e-a7a9-2d5ff8f0a001/parts"))
}
