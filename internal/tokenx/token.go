// Package tokenx generates and hashes the opaque single-use tokens that
// back magic links. The raw token leaves the process only inside the
// emailed link; storage and lookup always go through the hash.
package tokenx

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// MinByteLength is the smallest entropy a token may carry.
const MinByteLength = 24

// DefaultByteLength is what Issue uses unless the caller asks for more.
const DefaultByteLength = 32

// Issue returns a URL-safe random token of byteLength random bytes,
// base64url-encoded without padding. byteLength below MinByteLength is
// rejected.
func Issue(byteLength int) (string, error) {
	if byteLength < MinByteLength {
		return "", fmt.Errorf("token length %d below minimum %d", byteLength, MinByteLength)
	}
	b := make([]byte, byteLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hash converts a raw token into its hex-encoded sha256 digest, the only
// representation ever persisted or used as a lookup key.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Compare reports whether two hash values are equal, in constant time.
func Compare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
