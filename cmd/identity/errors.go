package identity

import (
	"errors"
	"fmt"
)

// Failure kinds. Every store error wraps exactly one of them.
var (
	ErrInvalidInput = errors.New("identity: invalid input")
	ErrNotFound     = errors.New("identity: account not found")
	ErrConflict     = errors.New("identity: already taken")
	ErrNotActive    = errors.New("identity: refresh token not active")
	ErrUnavailable  = errors.New("identity: store unavailable")
)

// Error is returned by Store implementations. Field names the unique
// column on a conflict. Detail never carries credentials.
type Error struct {
	Op     string
	Kind   error
	Field  string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func notFound(op string) error {
	return &Error{Op: op, Kind: ErrNotFound}
}

func conflict(op, field string) error {
	return &Error{Op: op, Kind: ErrConflict, Field: field}
}

func invalid(op, detail string) error {
	return &Error{Op: op, Kind: ErrInvalidInput, Detail: detail}
}

func unavailable(op string, cause error) error {
	return &Error{Op: op, Kind: ErrUnavailable, Err: cause}
}

// staleRefresh is what SwapRefreshToken returns when the stored digest was
// rotated, cleared or never set.
func staleRefresh(op string) error {
	return &Error{Op: op, Kind: ErrNotActive, Detail: "presented refresh token is not the current one"}
}

// ConflictField names the column behind a conflict error.
func ConflictField(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == ErrConflict {
		return e.Field, true
	}
	return "", false
}

func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }
func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
func IsNotActive(err error) bool    { return errors.Is(err, ErrNotActive) }
func IsUnavailable(err error) bool  { return errors.Is(err, ErrUnavailable) }
