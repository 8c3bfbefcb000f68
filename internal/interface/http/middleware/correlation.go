package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nimbusgate/core/internal/ctxutil"
)

// CorrelationIDHeader is the recognized inbound/outbound correlation header.
const CorrelationIDHeader = "X-Correlation-ID"

// Correlation attaches a correlation-id to every request: the inbound
// header value when present, else a freshly generated opaque token. The id
// is echoed on the response and propagated through context to logs,
// upstream calls and broker messages. Request-scoped context values die
// with the request, so no explicit clearing is needed on any exit path.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		w.Header().Set(CorrelationIDHeader, correlationID)

		ctx := ctxutil.NewCorrelationIDContext(r.Context(), correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// canonicalPrefixes maps known first path segments to operation families
// for span/log operation names.
var canonicalPrefixes = map[string]string{
	"auth":          "auth",
	"notifications": "notifications",
	"templates":     "templates",
	"health":        "health",
	"healthz":       "health",
	"readyz":        "health",
	"hives":         "hives",
	"playlists":     "playlists",
	"ws":            "ws",
}

// OperationName derives a stable operation label from method+path using the
// canonical prefixes; unknown paths fall back to method plus the sanitized
// path with identifier segments collapsed.
func OperationName(method, path string) string {
	segments := splitPathSegments(path)
	// The /api prefix and version segments don't name the operation.
	if len(segments) > 1 && strings.EqualFold(segments[0], "api") {
		segments = segments[1:]
	}
	if len(segments) > 1 && isVersionSegment(segments[0]) {
		segments = segments[1:]
	}
	if len(segments) == 0 {
		return method + " /"
	}

	if family, ok := canonicalPrefixes[strings.ToLower(segments[0])]; ok {
		return method + " " + family
	}
	return method + " /" + strings.Join(sanitizeSegments(segments), "/")
}

func splitPathSegments(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// sanitizeSegments collapses identifier-looking segments so operation names
// stay low-cardinality.
func sanitizeSegments(segments []string) []string {
	out := make([]string, len(segments))
	for i, s := range segments {
		if looksLikeID(s) {
			out[i] = "{id}"
			continue
		}
		out[i] = s
	}
	return out
}

func isVersionSegment(s string) bool {
	return len(s) >= 2 && (s[0] == 'v' || s[0] == 'V') && isDigits(s[1:])
}

func looksLikeID(s string) bool {
	if _, err := uuid.Parse(s); err == nil {
		return true
	}
	return isDigits(s)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
