package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// maxLegacyBcryptCost bounds the work a stored bcrypt hash can demand.
const maxLegacyBcryptCost = 14

// verifyLegacyBcrypt checks hashes carried over from the previous
// bcrypt-based account store.
func verifyLegacyBcrypt(encoded, plain string) (bool, error) {
	if cost, err := bcrypt.Cost([]byte(encoded)); err != nil || cost > maxLegacyBcryptCost {
		return false, ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, ErrInvalidHash
	}
	return true, nil
}
