// Package authsession implements the Auth Session Service: logout (single
// token and subject-wide) and token validation, maintaining the revocation
// set the Trust Layer consults. Revocation state lives in the shared cache
// so every gateway instance sees a logout immediately.
package authsession

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/nimbusgate/core/internal/cache"
)

const (
	fingerprintKeyPrefix = "auth:revoked:fp:"
	subjectKeyPrefix     = "auth:revoked:subject:"
)

// RevocationStore is the cache-backed revocation set. It implements
// trust.RevocationChecker.
type RevocationStore struct {
	cache cache.Cache
}

// NewRevocationStore builds a RevocationStore over c.
func NewRevocationStore(c cache.Cache) *RevocationStore {
	return &RevocationStore{cache: c}
}

// RevokeFingerprint marks one token as logged out until its natural expiry.
func (s *RevocationStore) RevokeFingerprint(ctx context.Context, fingerprint string, ttl time.Duration) error {
	return s.cache.Set(ctx, fingerprintKeyPrefix+fingerprint, []byte("1"), ttl)
}

// RevokeSubject records a subject-wide revocation boundary: every token for
// subject issued at or before notBefore is rejected.
func (s *RevocationStore) RevokeSubject(ctx context.Context, subject string, notBefore time.Time, ttl time.Duration) error {
	value := strconv.FormatInt(notBefore.Unix(), 10)
	return s.cache.Set(ctx, subjectKeyPrefix+subject, []byte(value), ttl)
}

// IsFingerprintRevoked reports whether this exact token was logged out.
func (s *RevocationStore) IsFingerprintRevoked(ctx context.Context, fingerprint string) (bool, error) {
	_, err := s.cache.Get(ctx, fingerprintKeyPrefix+fingerprint)
	if errors.Is(err, cache.ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SubjectRevokedSince returns the subject-wide not-before boundary, if any.
func (s *RevocationStore) SubjectRevokedSince(ctx context.Context, subject string) (time.Time, bool, error) {
	raw, err := s.cache.Get(ctx, subjectKeyPrefix+subject)
	if errors.Is(err, cache.ErrMiss) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	unix, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(unix, 0).UTC(), true, nil
}
