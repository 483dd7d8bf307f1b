package identity

import (
	"context"
	"strings"
	"time"
)

// Account is the persisted account record.
// PasswordHash and RefreshTokenHash never leave the server; use Profile for responses.
type Account struct {
	ID         string
	Username   string
	Email      string
	FullName   string
	Avatar     string
	CoverImage string

	PasswordHash string

	// RefreshTokenHash is the digest of the single live refresh token.
	// nil means no active session.
	RefreshTokenHash *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is the sanitized view of an Account.
type Profile struct {
	ID         string
	Username   string
	Email      string
	FullName   string
	Avatar     string
	CoverImage string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Profile strips credentials from the account.
func (a Account) Profile() Profile {
	return Profile{
		ID:         a.ID,
		Username:   a.Username,
		Email:      a.Email,
		FullName:   a.FullName,
		Avatar:     a.Avatar,
		CoverImage: a.CoverImage,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

// NewAccount describes an account to create. Username and Email are
// normalized by the store; PasswordHash must already be a hash.
type NewAccount struct {
	Username     string
	Email        string
	FullName     string
	Avatar       string
	CoverImage   string
	PasswordHash string
	Now          time.Time
}

// NormalizeUsername is the stored and looked-up form of a username.
func NormalizeUsername(s string) string { return foldKey(s) }

// NormalizeEmail is the stored and looked-up form of an email address.
func NormalizeEmail(s string) string { return foldKey(s) }

// foldKey trims and lower-cases so lookups are case-insensitive.
func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ProfileUpdate is a partial update; nil fields are left unchanged.
type ProfileUpdate struct {
	FullName   *string
	Email      *string
	Avatar     *string
	CoverImage *string
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.FullName == nil && u.Email == nil && u.Avatar == nil && u.CoverImage == nil
}

// Store is the account persistence boundary.
//
// Every method is atomic for a single account record. Deadline and
// connectivity failures are reported as ErrUnavailable.
type Store interface {
	// FindByUsernameOrEmail returns the account whose username equals username
	// or whose email equals email. Blank arguments are ignored.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)

	// Create inserts a new account. It fails with ErrConflict and never
	// overwrites when the username or email is already taken.
	Create(ctx context.Context, in NewAccount) (Account, error)

	// UpdateRefreshToken sets (or clears, when digest is nil) the refresh
	// digest unconditionally.
	UpdateRefreshToken(ctx context.Context, id string, digest *string, now time.Time) error

	// SwapRefreshToken replaces the refresh digest only if the stored value
	// equals prev. Otherwise it returns ErrNotActive and changes nothing.
	SwapRefreshToken(ctx context.Context, id string, prev string, next *string, now time.Time) error

	UpdatePasswordHash(ctx context.Context, id string, hash string, now time.Time) error
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate, now time.Time) (Account, error)

	Ping(ctx context.Context) error
}
