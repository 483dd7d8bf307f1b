package password

import "errors"

// Policy violations. Callers map these to user-facing validation messages.
var (
	ErrPasswordTooShort = errors.New("password: shorter than the minimum length")
	ErrPasswordTooLong  = errors.New("password: longer than the maximum length")
	ErrWeakPassword     = errors.New("password: too easy to guess")
)

// ErrInvalidHash means a stored hash could not be parsed or asks for more
// work than this process is willing to do.
var ErrInvalidHash = errors.New("password: unusable stored hash")
