package app

import (
	"errors"

	"vidtube/cmd/internal/auth/session"
	"vidtube/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy on top of the
// session config's own validation.
func ValidateSecurityConfig(cfg Config, sess session.Config) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	if !cfg.RequireTokenHMAC {
		return nil
	}

	err := token.CheckHMACKey(sess.RefreshDigestKey, token.MinHMACKeyBytes)
	switch {
	case errors.Is(err, token.ErrHMACKeyMissing):
		return errors.New("security policy: VIDTUBE_REQUIRE_TOKEN_HMAC=true but VIDTUBE_TOKEN_HMAC_KEY is missing")
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return errors.New("security policy: VIDTUBE_REQUIRE_TOKEN_HMAC=true but VIDTUBE_TOKEN_HMAC_KEY is too short (min 32 bytes)")
	case err != nil:
		return err
	}

	if !token.NewDigester(sess.RefreshDigestKey).HMAC() {
		return errors.New("security policy: VIDTUBE_REQUIRE_TOKEN_HMAC=true but refresh digests are not HMAC")
	}
	return nil
}
