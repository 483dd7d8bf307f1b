package session

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Service matches exactly one of these
// through errors.Is, except unexpected internal failures.
var (
	ErrValidation         = errors.New("validation error")
	ErrDuplicateAccount   = errors.New("duplicate account")
	ErrNotFound           = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("expired token")
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	ErrUnavailable        = errors.New("store unavailable")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// Codec failures. Service maps them onto ErrInvalidToken / ErrExpiredToken.
var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenExpired   = errors.New("token expired")
)

// Error is the error type returned by Service.
// Msg is safe to show to clients; Err is for logs only.
type Error struct {
	Op   string
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Message returns the client-safe message for err, or "" if err is not an *Error.
func Message(err error) string {
	var se *Error
	if !errors.As(err, &se) {
		return ""
	}
	if se.Msg != "" {
		return se.Msg
	}
	return se.Kind.Error()
}

func fail(op string, kind error, msg string) error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

func failWrap(op string, kind error, msg string, err error) error {
	return &Error{Op: op, Kind: kind, Msg: msg, Err: err}
}
