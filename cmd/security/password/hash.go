package password

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Hash checks plain against the policy and returns a new Argon2id PHC string.
func (c Config) Hash(plain string) (string, error) {
	if err := c.Validate(plain); err != nil {
		return "", err
	}
	return c.HashUnchecked(plain)
}

// HashUnchecked is Hash without the policy check. It is for secrets that
// were accepted earlier, such as a legacy password being upgraded, and for
// internal values like the login timing equalizer.
func (c Config) HashUnchecked(plain string) (string, error) {
	h := phcHash{
		memory:  c.Params.MemoryKiB,
		time:    c.Params.Iterations,
		threads: c.Params.Parallelism,
		salt:    make([]byte, c.Params.SaltLength),
	}
	if _, err := rand.Read(h.salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}
	h.key = argon2.IDKey([]byte(plain), h.salt, h.time, h.memory, h.threads, c.Params.KeyLength)
	return h.String(), nil
}

// Verify reports whether plain produces encoded. A malformed or overly
// expensive hash yields ErrInvalidHash; a plain mismatch is (false, nil).
func (c Config) Verify(encoded, plain string) (bool, error) {
	if isLegacyBcrypt(encoded) {
		return verifyLegacyBcrypt(encoded, plain)
	}

	h, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	if !c.affordable(h.params()) {
		return false, ErrInvalidHash
	}

	got := argon2.IDKey([]byte(plain), h.salt, h.time, h.memory, h.threads, uint32(len(h.key))) // #nosec G115 -- bounded by parsePHC.
	return subtle.ConstantTimeCompare(got, h.key) == 1, nil
}

// Matches is Verify collapsed to a bool.
func (c Config) Matches(encoded, plain string) bool {
	ok, err := c.Verify(encoded, plain)
	return ok && err == nil
}

// NeedsRehash is true for bcrypt hashes and for Argon2id hashes made with
// less memory, fewer passes or a shorter key than c.Params.
func (c Config) NeedsRehash(encoded string) bool {
	if isLegacyBcrypt(encoded) {
		return true
	}
	h, err := parsePHC(encoded)
	if err != nil {
		return false
	}
	p := h.params()
	return p.MemoryKiB < c.Params.MemoryKiB ||
		p.Iterations < c.Params.Iterations ||
		p.KeyLength < c.Params.KeyLength
}

// affordable caps stored costs at twice the configured ones, so an injected
// hash string cannot pin a CPU or allocate gigabytes.
func (c Config) affordable(p Argon2idParams) bool {
	return p.MemoryKiB <= 2*c.Params.MemoryKiB &&
		p.Iterations <= 2*c.Params.Iterations &&
		uint32(p.Parallelism) <= 2*uint32(c.Params.Parallelism)
}

func isLegacyBcrypt(encoded string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(encoded, prefix) {
			return true
		}
	}
	return false
}
