package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// MinHMACKeyBytes is the minimum key size accepted by CheckHMACKey.
const MinHMACKeyBytes = 32

var (
	ErrHMACKeyMissing  = errors.New("token: refresh digest key is not set")
	ErrHMACKeyTooShort = errors.New("token: refresh digest key is too short")
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// CheckHMACKey validates a raw key against the minimum size.
func CheckHMACKey(raw string, minBytes int) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrHMACKeyMissing
	}
	if minBytes > 0 && len(raw) < minBytes {
		return ErrHMACKeyTooShort
	}
	return nil
}

// Digester hashes refresh tokens for storage. The zero value uses SHA-256.
type Digester struct {
	key []byte
}

// NewDigester returns a Digester. An empty key selects SHA-256 mode.
func NewDigester(key string) Digester {
	key = strings.TrimSpace(key)
	if key == "" {
		return Digester{}
	}
	return Digester{key: []byte(key)}
}

// HMAC reports whether the digester is keyed.
func (d Digester) HMAC() bool { return len(d.key) > 0 }

// Digest returns the 64-char hex digest of tok.
func (d Digester) Digest(tok string) string {
	if len(d.key) == 0 {
		return HashSHA256Hex(tok)
	}
	return HashHMACSHA256Hex(tok, d.key)
}

// Equal compares two digests in constant time.
// Anything that is not a 64-char digest never matches.
func Equal(a, b string) bool {
	if len(a) != 64 || len(b) != 64 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
