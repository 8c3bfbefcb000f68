package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusgate/core/internal/authsession"
	"github.com/nimbusgate/core/internal/cache"
	"github.com/nimbusgate/core/internal/domain"
	domainerrors "github.com/nimbusgate/core/internal/domain/errors"
	"github.com/nimbusgate/core/internal/interface/http/handlers"
	"github.com/nimbusgate/core/internal/interface/http/middleware"
	"github.com/nimbusgate/core/internal/notification"
	"github.com/nimbusgate/core/internal/outbound"
	"github.com/nimbusgate/core/internal/ratelimit"
	"github.com/nimbusgate/core/internal/template"
	"github.com/nimbusgate/core/internal/trust"
)

const testSecret = "routes-test-secret-key-32-bytes!!!"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func userToken(t *testing.T, sub string) string {
	return signToken(t, jwt.MapClaims{
		"sub":      sub,
		"username": "testuser",
		"iat":      jwt.NewNumericDate(time.Now()),
		"exp":      jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
}

// --- in-memory doubles for the notification service ---

type memNotificationRepo struct {
	mu   sync.Mutex
	byID map[string]notification.Notification
}

func (m *memNotificationRepo) Insert(_ context.Context, n *notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[n.ID] = *n
	return nil
}

func (m *memNotificationRepo) FindByID(_ context.Context, id string) (notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.byID[id]
	if !ok {
		return notification.Notification{}, domainerrors.NewDomain(domainerrors.CodeNotFound, "notification not found")
	}
	return n, nil
}

func (m *memNotificationRepo) ListByOwner(_ context.Context, ownerID string, _ domain.ListParams) ([]notification.Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notification.Notification
	for _, n := range m.byID {
		if n.OwnerID == ownerID {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (m *memNotificationRepo) ListUnread(_ context.Context, ownerID string) ([]notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notification.Notification
	for _, n := range m.byID {
		if n.OwnerID == ownerID && !n.Read {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memNotificationRepo) CountUnread(ctx context.Context, ownerID string) (int, error) {
	unread, err := m.ListUnread(ctx, ownerID)
	return len(unread), err
}

func (m *memNotificationRepo) Update(_ context.Context, n *notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[n.ID] = *n
	return nil
}

func (m *memNotificationRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

type allowAllDirectory struct{}

func (allowAllDirectory) Exists(context.Context, string) (bool, error) { return true, nil }

type capturingProducer struct {
	mu   sync.Mutex
	msgs []outbound.Message
}

func (p *capturingProducer) Publish(_ context.Context, msg outbound.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *capturingProducer) PublishBatch(ctx context.Context, msgs []outbound.Message) []error {
	errs := make([]error, len(msgs))
	for i, m := range msgs {
		errs[i] = p.Publish(ctx, m)
	}
	return errs
}

func (p *capturingProducer) PublishAsync(ctx context.Context, msg outbound.Message) <-chan bool {
	done := make(chan bool, 1)
	done <- p.Publish(ctx, msg) == nil
	return done
}

type nopDigests struct{}

func (nopDigests) Append(context.Context, string, notification.DigestEntry) error { return nil }
func (nopDigests) Due(context.Context, time.Time) ([]notification.PendingDigest, error) {
	return nil, nil
}
func (nopDigests) Clear(context.Context, string) error { return nil }

type nopTemplateRepo struct{}

func (nopTemplateRepo) Insert(context.Context, *template.Template) error     { return nil }
func (nopTemplateRepo) Update(context.Context, *template.Template) error     { return nil }
func (nopTemplateRepo) DeleteByID(context.Context, string) error             { return nil }
func (nopTemplateRepo) LoadAll(context.Context) ([]template.Template, error) { return nil, nil }

// testRouter wires the full local surface with in-memory backends.
func testRouter(t *testing.T, rateLimit func(http.Handler) http.Handler) (chi.Router, *capturingProducer) {
	t.Helper()

	mem := cache.NewMemory()
	revocations := authsession.NewRevocationStore(mem)
	verifier, err := trust.New(trust.Config{
		Keys:       trust.KeyConfig{HMACSecret: []byte(testSecret)},
		Revocation: revocations,
	})
	require.NoError(t, err)
	sessions := authsession.NewService(revocations, verifier)

	store, err := template.NewStore(context.Background(), nopTemplateRepo{}, "en")
	require.NoError(t, err)

	producer := &capturingProducer{}
	svc := notification.NewService(
		&memNotificationRepo{byID: map[string]notification.Notification{}},
		allowAllDirectory{},
		store,
		producer,
		notification.StaticPreferences{},
		nopDigests{},
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Correlation)
	if rateLimit != nil {
		r.Use(rateLimit)
	}
	RegisterRoutes(r, &Deps{
		Auth:          handlers.NewAuthHandler(sessions),
		Notifications: handlers.NewNotificationHandler(svc),
		Templates:     handlers.NewTemplateHandler(store),
		Verifier:      verifier,
	})
	return r, producer
}

func doJSON(t *testing.T, r chi.Router, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestRoutes_HealthIsPublic(t *testing.T) {
	r, _ := testRouter(t, nil)

	for _, path := range []string{"/healthz", "/health/gateway", "/api/v1/health"} {
		rr := doJSON(t, r, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}
}

func TestRoutes_CorrelationIDEchoed(t *testing.T) {
	r, _ := testRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(middleware.CorrelationIDHeader, "corr-from-client")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, "corr-from-client", rr.Header().Get(middleware.CorrelationIDHeader))
	assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))
}

func TestRoutes_LogoutRevokesToken(t *testing.T) {
	r, _ := testRouter(t, nil)
	token := userToken(t, "user-123")

	rr := doJSON(t, r, http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	// The same token is now rejected.
	rr = doJSON(t, r, http.MethodPost, "/auth/token/validate", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Valid JWT token required")
}

func TestRoutes_LogoutWithoutTokenIs401(t *testing.T) {
	r, _ := testRouter(t, nil)

	rr := doJSON(t, r, http.MethodPost, "/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Unauthorized", body["error"])
	assert.Equal(t, float64(401), body["status"])
}

func TestRoutes_ValidatePublic(t *testing.T) {
	r, _ := testRouter(t, nil)

	// Missing token → 400.
	rr := doJSON(t, r, http.MethodPost, "/auth/token/validate/public", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Malformed token → 400.
	rr = doJSON(t, r, http.MethodPost, "/auth/token/validate/public", "", map[string]string{"token": "not-a-jwt"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Valid token → 200 with subject.
	rr = doJSON(t, r, http.MethodPost, "/auth/token/validate/public", "", map[string]string{"token": userToken(t, "user-123")})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "user-123")
}

func TestRoutes_RefreshNotImplemented(t *testing.T) {
	r, _ := testRouter(t, nil)

	rr := doJSON(t, r, http.MethodPost, "/auth/token/refresh", "", nil)
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestRoutes_NotificationLifecycle(t *testing.T) {
	r, producer := testRouter(t, nil)
	token := userToken(t, "user-123")

	create := map[string]any{
		"recipientId": "user-123",
		"type":        "PASSWORD_RESET",
		"title":       "Reset your password",
		"content":     "Use the link to reset.",
		"priority":    5,
		"metadata":    map[string]string{"userEmail": "u@example.com"},
	}
	rr := doJSON(t, r, http.MethodPost, "/api/v1/notifications", token, create)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var dto handlers.NotificationDTO
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dto))
	assert.NotEmpty(t, dto.ID)
	assert.False(t, dto.Read)

	// Two outbound messages with the same correlation-id.
	require.Len(t, producer.msgs, 2)
	keys := []string{producer.msgs[0].RoutingKey, producer.msgs[1].RoutingKey}
	assert.Contains(t, keys, "notification.created")
	assert.Contains(t, keys, "notification.email.send")
	assert.Equal(t, producer.msgs[0].CorrelationID, producer.msgs[1].CorrelationID)
	assert.NotEmpty(t, producer.msgs[0].CorrelationID)

	// Unread count reflects the new notification.
	rr = doJSON(t, r, http.MethodGet, "/api/v1/notifications/unread/count", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"count":1}`, rr.Body.String())

	// Mark read.
	rr = doJSON(t, r, http.MethodPatch, "/api/v1/notifications/"+dto.ID+"/read", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	// Ownership mismatch is a 400 with the stable message, not 403.
	other := userToken(t, "other-user")
	rr = doJSON(t, r, http.MethodPatch, "/api/v1/notifications/"+dto.ID+"/archive", other, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), notification.OwnershipMismatchMessage)

	// Delete.
	rr = doJSON(t, r, http.MethodDelete, "/api/v1/notifications/"+dto.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRoutes_NotificationInvalidJSONIs400(t *testing.T) {
	r, _ := testRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid JSON body")
}

func TestRoutes_TemplateProcess(t *testing.T) {
	r, _ := testRouter(t, nil)
	token := userToken(t, "admin-1")

	createBody := map[string]any{
		"type":              "WELCOME",
		"language":          "en",
		"subject":           "Hi {userName}",
		"body":              "Welcome, {userName}!",
		"requiredVariables": []string{"userName"},
	}
	rr := doJSON(t, r, http.MethodPost, "/api/v1/templates", token, createBody)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = doJSON(t, r, http.MethodPost, "/api/v1/templates/WELCOME/en/process", "", map[string]any{
		"variables": map[string]string{"userName": "alice"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"subject":"Hi alice","body":"Welcome, alice!"}`, rr.Body.String())

	// Missing variables → 400 listing the missing name.
	rr = doJSON(t, r, http.MethodPost, "/api/v1/templates/WELCOME/en/process", "", map[string]any{
		"variables": map[string]string{},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "userName")

	// Unknown type → 404.
	rr = doJSON(t, r, http.MethodPost, "/api/v1/templates/NOPE/en/process", "", map[string]any{})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// Fixed-window rate limit: capacity 10 over the window, 15 rapid requests,
// first 10 pass and the rest are 429 with Retry-After and zero remaining.
func TestRoutes_FixedWindowRateLimit(t *testing.T) {
	engine := ratelimit.New(cache.NewMemory())
	quota := ratelimit.Quota{
		Dimension:     ratelimit.DimensionIP,
		Algorithm:     ratelimit.AlgorithmFixedWindow,
		WindowSeconds: 60,
		Capacity:      10,
	}
	limiter := middleware.EngineRateLimit(middleware.EngineRateLimitConfig{
		Engine:  engine,
		IPQuota: &quota,
	})
	r, _ := testRouter(t, limiter)

	var last *httptest.ResponseRecorder
	allowed := 0
	for i := 0; i < 15; i++ {
		last = doJSON(t, r, http.MethodGet, "/healthz", "", nil)
		if last.Code == http.StatusOK {
			allowed++
		}
	}

	assert.Equal(t, 10, allowed)
	require.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "0", last.Header().Get(middleware.HeaderRateLimitRemaining))
	assert.Equal(t, "10", last.Header().Get(middleware.HeaderRateLimitLimit))
	retryAfter, err := strconv.Atoi(last.Header().Get(middleware.HeaderRetryAfter))
	require.NoError(t, err)
	assert.LessOrEqual(t, retryAfter, 60)
}

func TestRoutes_NoGatewayFallbackIs404Problem(t *testing.T) {
	r, _ := testRouter(t, nil)

	rr := doJSON(t, r, http.MethodGet, "/hives/123", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "NotFound", body["error"])
	assert.Equal(t, "/hives/123", body["path"])
}
