package api

import (
	"net/http"
	"strings"
	"time"

	"vidtube/cmd/internal/envx"
)

// Config controls the HTTP surface of the account service.
type Config struct {
	// Prefix is prepended to every route, e.g. "/api/v1".
	Prefix string

	TrustProxy     bool
	MaxBodyBytes   int64
	MaxUploadBytes int64

	AccessCookieName  string
	RefreshCookieName string
	CookiePath        string
	CookieDomain      string
	CookieSecure      bool
	CookieSameSite    http.SameSite

	LoginIPMax      int
	LoginIPWindow   time.Duration
	LoginUserWindow time.Duration

	LockoutShortThreshold  int
	LockoutShortDuration   time.Duration
	LockoutLongThreshold   int
	LockoutLongDuration    time.Duration
	LockoutSevereThreshold int
	LockoutSevereDuration  time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Prefix:                 "/api/v1",
		MaxBodyBytes:           16 << 10,
		MaxUploadBytes:         5 << 20,
		AccessCookieName:       "accessToken",
		RefreshCookieName:      "refreshToken",
		CookiePath:             "/",
		CookieSecure:           true,
		CookieSameSite:         http.SameSiteLaxMode,
		LoginIPMax:             20,
		LoginIPWindow:          5 * time.Minute,
		LoginUserWindow:        15 * time.Minute,
		LockoutShortThreshold:  5,
		LockoutShortDuration:   5 * time.Minute,
		LockoutLongThreshold:   10,
		LockoutLongDuration:    30 * time.Minute,
		LockoutSevereThreshold: 20,
		LockoutSevereDuration:  2 * time.Hour,
	}
}

// LoadConfigFromEnv overlays VIDTUBE_ settings onto DefaultConfig.
// Unset or unparsable values keep the default.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.Prefix = normalizePrefix(envx.String("VIDTUBE_API_PREFIX", cfg.Prefix))
	cfg.TrustProxy = envx.Bool("VIDTUBE_TRUST_PROXY", cfg.TrustProxy)
	cfg.MaxBodyBytes = envx.Int64("VIDTUBE_MAX_BODY_BYTES", cfg.MaxBodyBytes)
	cfg.MaxUploadBytes = envx.Int64("VIDTUBE_MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)

	cfg.CookieDomain = envx.String("VIDTUBE_COOKIE_DOMAIN", "")
	cfg.CookieSecure = envx.Bool("VIDTUBE_COOKIE_SECURE", cfg.CookieSecure)
	cfg.CookieSameSite = parseSameSite(envx.String("VIDTUBE_COOKIE_SAMESITE", "lax"))
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		// Browsers drop SameSite=None cookies without Secure.
		cfg.CookieSecure = true
	}

	cfg.LoginIPMax = envx.Int("VIDTUBE_LOGIN_IP_MAX", cfg.LoginIPMax)
	cfg.LoginIPWindow = envx.Duration("VIDTUBE_LOGIN_IP_WINDOW", cfg.LoginIPWindow)
	cfg.LoginUserWindow = envx.Duration("VIDTUBE_LOGIN_USER_WINDOW", cfg.LoginUserWindow)

	const lockout = "VIDTUBE_LOGIN_LOCKOUT_"
	cfg.LockoutShortThreshold = envx.Int(lockout+"SHORT_THRESHOLD", cfg.LockoutShortThreshold)
	cfg.LockoutShortDuration = envx.Duration(lockout+"SHORT_DURATION", cfg.LockoutShortDuration)
	cfg.LockoutLongThreshold = envx.Int(lockout+"LONG_THRESHOLD", cfg.LockoutLongThreshold)
	cfg.LockoutLongDuration = envx.Duration(lockout+"LONG_DURATION", cfg.LockoutLongDuration)
	cfg.LockoutSevereThreshold = envx.Int(lockout+"SEVERE_THRESHOLD", cfg.LockoutSevereThreshold)
	cfg.LockoutSevereDuration = envx.Duration(lockout+"SEVERE_DURATION", cfg.LockoutSevereDuration)

	return cfg
}

// normalizePrefix turns "api/v1/" into "/api/v1". Blank means no prefix.
func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

var sameSiteModes = map[string]http.SameSite{
	"strict":  http.SameSiteStrictMode,
	"lax":     http.SameSiteLaxMode,
	"none":    http.SameSiteNoneMode,
	"default": http.SameSiteDefaultMode,
}

// parseSameSite defaults to Lax for unknown values.
func parseSameSite(v string) http.SameSite {
	if mode, ok := sameSiteModes[strings.ToLower(strings.TrimSpace(v))]; ok {
		return mode
	}
	return http.SameSiteLaxMode
}
