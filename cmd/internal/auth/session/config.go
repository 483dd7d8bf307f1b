package session

import (
	"os"
	"strings"
	"time"

	"vidtube/cmd/security/token"
)

// MinSecretBytes is the minimum length of each signing secret.
const MinSecretBytes = 32

// Config defines the runtime configuration of the session subsystem.
//
// It is built once at startup and passed by value into NewCodec and
// NewService; nothing in this package reads the environment afterwards.
type Config struct {
	// Issuer is the "iss" claim of every token.
	Issuer string

	// AccessTokenSecret and RefreshTokenSecret are HS256 keys. They must differ.
	AccessTokenSecret  string
	RefreshTokenSecret string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// ClockSkew is the leeway allowed when checking exp/iat. Zero by default.
	ClockSkew time.Duration

	// RefreshDigestKey keys the stored refresh digest. Empty selects SHA-256.
	RefreshDigestKey string

	// StoreTimeout bounds each account store call.
	StoreTimeout time.Duration
}

// DefaultConfig returns defaults without secrets.
func DefaultConfig() Config {
	return Config{
		Issuer:          "vidtube",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 10 * 24 * time.Hour,
		StoreTimeout:    3 * time.Second,
	}
}

// Validate checks the invariants NewCodec and NewService rely on.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Issuer) == "":
		return ErrConfig
	case len(c.AccessTokenSecret) < MinSecretBytes, len(c.RefreshTokenSecret) < MinSecretBytes:
		return ErrConfig
	case c.AccessTokenSecret == c.RefreshTokenSecret:
		return ErrConfig
	case c.AccessTokenTTL <= 0, c.RefreshTokenTTL <= 0:
		return ErrConfig
	case c.ClockSkew < 0 || c.ClockSkew > 5*time.Minute:
		return ErrConfig
	case c.StoreTimeout <= 0:
		return ErrConfig
	}
	if c.RefreshDigestKey != "" {
		if err := token.CheckHMACKey(c.RefreshDigestKey, token.MinHMACKeyBytes); err != nil {
			return ErrConfig
		}
	}
	return nil
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - VIDTUBE_ACCESS_TOKEN_SECRET
//   - VIDTUBE_REFRESH_TOKEN_SECRET
//
// Optional (durations must be valid Go duration strings):
//   - VIDTUBE_AUTH_ISSUER
//   - VIDTUBE_ACCESS_TOKEN_TTL
//   - VIDTUBE_REFRESH_TOKEN_TTL
//   - VIDTUBE_AUTH_CLOCK_SKEW
//   - VIDTUBE_AUTH_STORE_TIMEOUT
//   - VIDTUBE_TOKEN_HMAC_KEY
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("VIDTUBE_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}

	durations := []struct {
		key    string
		dst    *time.Duration
		zeroOK bool
	}{
		{"VIDTUBE_ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL, false},
		{"VIDTUBE_REFRESH_TOKEN_TTL", &cfg.RefreshTokenTTL, false},
		{"VIDTUBE_AUTH_CLOCK_SKEW", &cfg.ClockSkew, true},
		{"VIDTUBE_AUTH_STORE_TIMEOUT", &cfg.StoreTimeout, false},
	}
	for _, d := range durations {
		v := strings.TrimSpace(os.Getenv(d.key))
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed < 0 || (parsed == 0 && !d.zeroOK) {
			return Config{}, ErrConfig
		}
		*d.dst = parsed
	}

	cfg.AccessTokenSecret = os.Getenv("VIDTUBE_ACCESS_TOKEN_SECRET")
	cfg.RefreshTokenSecret = os.Getenv("VIDTUBE_REFRESH_TOKEN_SECRET")
	cfg.RefreshDigestKey = strings.TrimSpace(os.Getenv("VIDTUBE_TOKEN_HMAC_KEY"))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
