package token

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the hex-encoded SHA-256 digest of a bearer token. Only digests
// ever reach the cache or the durable store, so a storage compromise does not
// leak usable credentials.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
