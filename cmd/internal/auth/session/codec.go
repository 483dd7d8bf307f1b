package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"vidtube/cmd/identity/ids"
)

const (
	audienceAccess  = "access"
	audienceRefresh = "refresh"
)

// AccessSubject is the identity embedded in an access token.
type AccessSubject struct {
	AccountID string
	Username  string
	Email     string
	FullName  string
}

// AccessClaims are the verified contents of an access token.
type AccessClaims struct {
	AccessSubject
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshClaims are the verified contents of a refresh token.
type RefreshClaims struct {
	AccountID string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessJWT struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	jwt.RegisteredClaims
}

// Codec issues and verifies HS256 access and refresh tokens.
// It is safe for concurrent use.
type Codec struct {
	issuer        string
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	skew          time.Duration
	now           func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithClock overrides the codec's time source.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec builds a Codec from cfg. Secrets are copied.
func NewCodec(cfg Config, opts ...CodecOption) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Codec{
		issuer:        cfg.Issuer,
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		skew:          cfg.ClockSkew,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// IssueAccessToken signs a short-lived access token for sub.
func (c *Codec) IssueAccessToken(sub AccessSubject) (string, time.Time, error) {
	if strings.TrimSpace(sub.AccountID) == "" {
		return "", time.Time{}, errors.New("session: access token without subject")
	}

	reg, err := c.registered(sub.AccountID, audienceAccess, c.accessTTL)
	if err != nil {
		return "", time.Time{}, err
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, accessJWT{
		Username:         sub.Username,
		Email:            sub.Email,
		FullName:         sub.FullName,
		RegisteredClaims: reg,
	})
	signed, err := tok.SignedString(c.accessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, reg.ExpiresAt.Time, nil
}

// IssueRefreshToken signs a refresh token for accountID. Every call yields a
// distinct token because jti is a fresh ULID.
func (c *Codec) IssueRefreshToken(accountID string) (string, time.Time, error) {
	if strings.TrimSpace(accountID) == "" {
		return "", time.Time{}, errors.New("session: refresh token without subject")
	}

	reg, err := c.registered(accountID, audienceRefresh, c.refreshTTL)
	if err != nil {
		return "", time.Time{}, err
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, reg).SignedString(c.refreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, reg.ExpiresAt.Time, nil
}

// VerifyAccessToken returns the claims of a valid access token.
// Errors are ErrTokenMalformed, ErrTokenSignature or ErrTokenExpired.
func (c *Codec) VerifyAccessToken(raw string) (AccessClaims, error) {
	var claims accessJWT
	if err := c.parse(raw, &claims, c.accessSecret, audienceAccess); err != nil {
		return AccessClaims{}, err
	}

	return AccessClaims{
		AccessSubject: AccessSubject{
			AccountID: claims.Subject,
			Username:  claims.Username,
			Email:     claims.Email,
			FullName:  claims.FullName,
		},
		ID:        claims.ID,
		IssuedAt:  numericTime(claims.IssuedAt),
		ExpiresAt: numericTime(claims.ExpiresAt),
	}, nil
}

// VerifyRefreshToken returns the claims of a valid refresh token.
func (c *Codec) VerifyRefreshToken(raw string) (RefreshClaims, error) {
	var claims jwt.RegisteredClaims
	if err := c.parse(raw, &claims, c.refreshSecret, audienceRefresh); err != nil {
		return RefreshClaims{}, err
	}

	return RefreshClaims{
		AccountID: claims.Subject,
		ID:        claims.ID,
		IssuedAt:  numericTime(claims.IssuedAt),
		ExpiresAt: numericTime(claims.ExpiresAt),
	}, nil
}

func (c *Codec) registered(sub, aud string, ttl time.Duration) (jwt.RegisteredClaims, error) {
	now := c.now()
	jti, err := ids.New(now)
	if err != nil {
		return jwt.RegisteredClaims{}, err
	}
	return jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   sub,
		Audience:  jwt.ClaimStrings{aud},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        jti,
	}, nil
}

func (c *Codec) parse(raw string, claims jwt.Claims, secret []byte, aud string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > 4096 {
		return ErrTokenMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(aud),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.skew),
		jwt.WithTimeFunc(c.now),
	)

	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	default:
		return ErrTokenSignature
	}

	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return ErrTokenSignature
	}
	return nil
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
