package authsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nimbusgate/core/internal/trust"
)

// revocationSkew pads revocation TTLs so a token whose expiry races the
// revocation write can't slip through.
const revocationSkew = 2 * time.Minute

// DefaultMaxTokenLifetime bounds subject-wide revocation TTLs: no access
// token outlives it, so a LogoutAll entry can safely expire after it.
const DefaultMaxTokenLifetime = 24 * time.Hour

// Validation is the result of Validate.
type Validation struct {
	Valid    bool
	Reason   trust.Reason
	Subject  string
	Username string
	IssuedAt time.Time
	Expires  time.Time
}

// Service implements logout and session-wide revocation on top of the
// revocation store and the Trust Layer.
type Service struct {
	store            *RevocationStore
	verifier         *trust.Verifier
	maxTokenLifetime time.Duration
	now              func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMaxTokenLifetime overrides the subject-wide revocation TTL bound.
func WithMaxTokenLifetime(d time.Duration) Option {
	return func(s *Service) { s.maxTokenLifetime = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds the Auth Session Service.
func NewService(store *RevocationStore, verifier *trust.Verifier, opts ...Option) *Service {
	s := &Service{
		store:            store,
		verifier:         verifier,
		maxTokenLifetime: DefaultMaxTokenLifetime,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Logout adds the token's fingerprint to the revocation set with TTL equal
// to the token's remaining lifetime plus a small skew. The raw token must
// already have passed Trust Layer verification.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	exp, _, err := tokenTimes(rawToken)
	if err != nil {
		return fmt.Errorf("authsession: logout: %w", err)
	}

	remaining := exp.Sub(s.now())
	if remaining < 0 {
		remaining = 0
	}
	return s.store.RevokeFingerprint(ctx, trust.Fingerprint(rawToken), remaining+revocationSkew)
}

// LogoutAll writes a subject-wide revocation with not-before = now and TTL
// equal to the maximum allowable token lifetime.
func (s *Service) LogoutAll(ctx context.Context, subject string) error {
	if subject == "" {
		return errors.New("authsession: logout all: empty subject")
	}
	return s.store.RevokeSubject(ctx, subject, s.now().UTC(), s.maxTokenLifetime+revocationSkew)
}

// Validate runs the raw Authorization header through the Trust Layer and
// reports the outcome without failing the request.
func (s *Service) Validate(ctx context.Context, authHeader string) Validation {
	principal, err := s.verifier.Verify(ctx, authHeader)
	if err != nil {
		var verifyErr *trust.VerifyError
		v := Validation{Valid: false}
		if errors.As(err, &verifyErr) {
			v.Reason = verifyErr.Reason
		}
		return v
	}

	v := Validation{
		Valid:    true,
		Subject:  principal.Subject,
		Username: principal.Username,
	}
	if raw, err := trust.ExtractBearer(authHeader); err == nil {
		if exp, iat, err := tokenTimes(raw); err == nil {
			v.Expires = exp
			v.IssuedAt = iat
		}
	}
	return v
}

// tokenTimes extracts exp and iat from an already-verified token. The
// unverified parse here only reads timestamps; trust decisions never rest
// on it.
func tokenTimes(rawToken string) (exp, iat time.Time, err error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return time.Time{}, time.Time{}, err
	}
	expClaim, err := claims.GetExpirationTime()
	if err != nil || expClaim == nil {
		return time.Time{}, time.Time{}, errors.New("token has no exp claim")
	}
	iatClaim, _ := claims.GetIssuedAt()
	if iatClaim != nil {
		iat = iatClaim.Time
	}
	return expClaim.Time, iat, nil
}
