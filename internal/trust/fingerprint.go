package trust

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns a stable, non-reversible identifier for a raw token,
// suitable for use as a revocation-set key without persisting the token
// itself.
func Fingerprint(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}
