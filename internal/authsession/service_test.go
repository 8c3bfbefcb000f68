package authsession

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusgate/core/internal/cache"
	"github.com/nimbusgate/core/internal/trust"
)

const testSecret = "this-is-a-test-secret-key-32-bytes!"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newFixture(t *testing.T) (*Service, *RevocationStore, cache.Cache) {
	t.Helper()

	mem := cache.NewMemory()
	store := NewRevocationStore(mem)
	verifier, err := trust.New(trust.Config{
		Keys:       trust.KeyConfig{HMACSecret: []byte(testSecret)},
		Revocation: store,
	})
	require.NoError(t, err)

	return NewService(store, verifier), store, mem
}

func validClaims(sub string, now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":      sub,
		"username": "testuser",
		"iat":      jwt.NewNumericDate(now),
		"exp":      jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

func TestLogout_RevokesExactToken(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	raw := signToken(t, validClaims("user-123", now))
	other := signToken(t, validClaims("user-456", now))

	require.NoError(t, svc.Logout(ctx, raw))

	v := svc.Validate(ctx, "Bearer "+raw)
	assert.False(t, v.Valid)
	assert.Equal(t, trust.ReasonRevoked, v.Reason)

	// A different subject's token is unaffected.
	assert.True(t, svc.Validate(ctx, "Bearer "+other).Valid)
}

func TestLogoutAll_RevokesTokensIssuedBefore(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	old := signToken(t, validClaims("user-123", now.Add(-time.Minute)))
	require.NoError(t, svc.LogoutAll(ctx, "user-123"))

	v := svc.Validate(ctx, "Bearer "+old)
	assert.False(t, v.Valid)
	assert.Equal(t, trust.ReasonRevoked, v.Reason)

	// A token issued after the boundary is accepted again.
	fresh := signToken(t, validClaims("user-123", now.Add(time.Minute)))
	assert.True(t, svc.Validate(ctx, "Bearer "+fresh).Valid)
}

func TestLogoutAll_EmptySubject(t *testing.T) {
	svc, _, _ := newFixture(t)
	assert.Error(t, svc.LogoutAll(context.Background(), ""))
}

func TestValidate_Success(t *testing.T) {
	svc, _, _ := newFixture(t)
	now := time.Now()

	raw := signToken(t, validClaims("user-123", now))
	v := svc.Validate(context.Background(), "Bearer "+raw)

	assert.True(t, v.Valid)
	assert.Equal(t, "user-123", v.Subject)
	assert.Equal(t, "testuser", v.Username)
	assert.WithinDuration(t, now.Add(time.Hour), v.Expires, 2*time.Second)
	assert.WithinDuration(t, now, v.IssuedAt, 2*time.Second)
}

func TestValidate_ReportsReasons(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		name   string
		header string
		reason trust.Reason
	}{
		{"missing", "", trust.ReasonMissing},
		{"malformed scheme", "Basic abc", trust.ReasonMalformed},
		{"expired", "Bearer " + signToken(t, jwt.MapClaims{
			"sub": "user-123",
			"iat": jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			"exp": jwt.NewNumericDate(now.Add(-time.Hour)),
		}), trust.ReasonExpired},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := svc.Validate(ctx, tc.header)
			assert.False(t, v.Valid)
			assert.Equal(t, tc.reason, v.Reason)
		})
	}
}

func TestLogout_ExpiredTokenStillRecorded(t *testing.T) {
	svc, store, _ := newFixture(t)
	ctx := context.Background()

	raw := signToken(t, jwt.MapClaims{
		"sub": "user-123",
		"iat": jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		"exp": jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	require.NoError(t, svc.Logout(ctx, raw))

	revoked, err := store.IsFingerprintRevoked(ctx, trust.Fingerprint(raw))
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRevocationStore_SubjectBoundaryRoundTrip(t *testing.T) {
	_, store, _ := newFixture(t)
	ctx := context.Background()

	notBefore := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.RevokeSubject(ctx, "user-9", notBefore, time.Hour))

	got, ok, err := store.SubjectRevokedSince(ctx, "user-9")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, notBefore, got)

	_, ok, err = store.SubjectRevokedSince(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}
