// Package trust implements the edge plane's Trust & Identity Layer: bearer
// token verification, principal extraction, and revocation-set consultation.
// It generalizes the HS256-only JWTAuthenticator in
// internal/interface/http/middleware into a verifier that also accepts RSA
// family signatures and reports typed failure reasons instead of a flat
// sentinel error, per the gateway's {Missing, Malformed, BadSignature,
// Expired, Revoked} contract.
package trust

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nimbusgate/core/internal/ctxutil"
)

// Reason is the typed failure category returned by Verify.
type Reason string

const (
	ReasonMissing      Reason = "MISSING"
	ReasonMalformed    Reason = "MALFORMED"
	ReasonBadSignature Reason = "BAD_SIGNATURE"
	ReasonExpired      Reason = "EXPIRED"
	ReasonRevoked      Reason = "REVOKED"
)

// VerifyError wraps a verification failure with its reason.
type VerifyError struct {
	Reason Reason
	Err    error
}

func (e *VerifyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("trust: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("trust: %s", e.Reason)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// Is allows errors.Is(err, &VerifyError{Reason: ReasonExpired}) style checks.
func (e *VerifyError) Is(target error) bool {
	var t *VerifyError
	if errors.As(target, &t) {
		return e.Reason == t.Reason
	}
	return false
}

func fail(reason Reason, err error) error {
	return &VerifyError{Reason: reason, Err: err}
}

// MaxClockSkew bounds the allowed drift between iat/exp and the verifier's clock.
const MaxClockSkew = 60 * time.Second

// RevocationChecker consults the revocation set maintained by the Auth
// Session Service. Implementations are backed by the Shared Cache
// Abstraction; trust only depends on this narrow interface to avoid a
// dependency on the concrete cache package.
type RevocationChecker interface {
	// IsFingerprintRevoked reports whether this exact token was logged out.
	IsFingerprintRevoked(ctx context.Context, fingerprint string) (bool, error)
	// SubjectRevokedSince returns the subject-wide not-before timestamp, if
	// any LogoutAll has been issued for subject. ok is false if none exists.
	SubjectRevokedSince(ctx context.Context, subject string) (notBefore time.Time, ok bool, err error)
}

// KeyConfig selects the signing method and key material for verification.
// Exactly one of HMACSecret or RSAPublicKey should be set.
type KeyConfig struct {
	HMACSecret   []byte
	RSAPublicKey *rsa.PublicKey
}

// Config configures a Verifier.
type Config struct {
	Keys       KeyConfig
	Issuer     string
	Audience   string
	Revocation RevocationChecker
}

// Verifier validates bearer tokens and extracts principals.
type Verifier struct {
	cfg           Config
	parserOptions []jwt.ParserOption
}

// New builds a Verifier. Revocation may be nil, in which case revocation
// checks are skipped (used for the public-key-validation-only endpoint,
// POST /auth/token/validate/public).
func New(cfg Config) (*Verifier, error) {
	if len(cfg.Keys.HMACSecret) == 0 && cfg.Keys.RSAPublicKey == nil {
		return nil, errors.New("trust: no signing key configured")
	}

	opts := []jwt.ParserOption{jwt.WithLeeway(MaxClockSkew)}
	var methods []string
	if len(cfg.Keys.HMACSecret) > 0 {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if cfg.Keys.RSAPublicKey != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	opts = append(opts, jwt.WithValidMethods(methods))
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Verifier{cfg: cfg, parserOptions: opts}, nil
}

// ExtractBearer pulls the raw token out of an Authorization header value,
// distinguishing a missing header (ReasonMissing) from a malformed one
// (unknown scheme, empty payload, wrong segment count — ReasonMalformed).
func ExtractBearer(authHeader string) (string, error) {
	if authHeader == "" {
		return "", fail(ReasonMissing, nil)
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return "", fail(ReasonMalformed, errors.New("unsupported authorization scheme"))
	}
	raw := strings.TrimPrefix(authHeader, prefix)
	if raw == "" {
		return "", fail(ReasonMalformed, errors.New("empty bearer token"))
	}
	if len(strings.Split(raw, ".")) != 3 {
		return "", fail(ReasonMalformed, errors.New("wrong JWT segment count"))
	}
	return raw, nil
}

// Verify validates the raw Authorization header value and returns the
// resulting Principal, or a *VerifyError describing why verification failed.
func (v *Verifier) Verify(ctx context.Context, authHeader string) (ctxutil.Principal, error) {
	raw, err := ExtractBearer(authHeader)
	if err != nil {
		return ctxutil.Principal{}, err
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, v.keyFunc, v.parserOptions...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ctxutil.Principal{}, fail(ReasonExpired, err)
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return ctxutil.Principal{}, fail(ReasonBadSignature, err)
		}
		return ctxutil.Principal{}, fail(ReasonMalformed, err)
	}
	if !token.Valid {
		return ctxutil.Principal{}, fail(ReasonBadSignature, errors.New("token failed validation"))
	}

	principal := claimsToPrincipal(claims)

	if v.cfg.Revocation != nil {
		revoked, err := v.checkRevocation(ctx, raw, principal, claims)
		if err != nil {
			return ctxutil.Principal{}, fail(ReasonRevoked, err)
		}
		if revoked {
			return ctxutil.Principal{}, fail(ReasonRevoked, nil)
		}
	}

	return principal, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (interface{}, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.cfg.Keys.HMACSecret) == 0 {
			return nil, errors.New("HMAC not configured")
		}
		return v.cfg.Keys.HMACSecret, nil
	case *jwt.SigningMethodRSA:
		if v.cfg.Keys.RSAPublicKey == nil {
			return nil, errors.New("RSA not configured")
		}
		return v.cfg.Keys.RSAPublicKey, nil
	default:
		return nil, fmt.Errorf("unsupported signing method: %v", t.Method.Alg())
	}
}

func (v *Verifier) checkRevocation(ctx context.Context, raw string, p ctxutil.Principal, claims jwt.MapClaims) (bool, error) {
	fingerprint := Fingerprint(raw)
	if revoked, err := v.cfg.Revocation.IsFingerprintRevoked(ctx, fingerprint); err != nil {
		return false, err
	} else if revoked {
		return true, nil
	}

	notBefore, ok, err := v.cfg.Revocation.SubjectRevokedSince(ctx, p.Subject)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	iat, _ := claims.GetIssuedAt()
	if iat == nil {
		// No issued-at claim: treat conservatively as issued before any
		// recorded revocation boundary.
		return true, nil
	}
	// A subject-wide revocation with not-before >= token.iat revokes the token.
	return !iat.Time.After(notBefore), nil
}

func claimsToPrincipal(claims jwt.MapClaims) ctxutil.Principal {
	p := ctxutil.Principal{}
	if sub, ok := claims["sub"].(string); ok {
		p.Subject = sub
	}
	if username, ok := claims["username"].(string); ok {
		p.Username = username
	}
	if iss, ok := claims["iss"].(string); ok {
		p.Issuer = iss
	}
	if persona, ok := claims["persona_id"].(string); ok {
		p.Persona = persona
	}
	if tenant, ok := claims["tenant_id"].(string); ok {
		p.TenantID = tenant
	}
	if roles, ok := claims["roles"].([]interface{}); ok {
		for _, r := range roles {
			if role, ok := r.(string); ok {
				p.Roles = append(p.Roles, role)
			}
		}
	}
	return p
}
