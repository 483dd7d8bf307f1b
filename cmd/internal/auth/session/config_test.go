package session

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("VIDTUBE_ACCESS_TOKEN_SECRET", strings.Repeat("a", 32))
	t.Setenv("VIDTUBE_REFRESH_TOKEN_SECRET", strings.Repeat("b", 32))
}

func TestLoadConfigFromEnv_MissingSecrets(t *testing.T) {
	t.Setenv("VIDTUBE_ACCESS_TOKEN_SECRET", "")
	t.Setenv("VIDTUBE_REFRESH_TOKEN_SECRET", "")
	_, err := LoadConfigFromEnv()
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig on missing secrets, got %v", err)
	}
}

func TestLoadConfigFromEnv_SameSecrets(t *testing.T) {
	same := strings.Repeat("s", 40)
	t.Setenv("VIDTUBE_ACCESS_TOKEN_SECRET", same)
	t.Setenv("VIDTUBE_REFRESH_TOKEN_SECRET", same)
	_, err := LoadConfigFromEnv()
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for identical secrets, got %v", err)
	}
}

func TestLoadConfigFromEnv_ShortSecret(t *testing.T) {
	t.Setenv("VIDTUBE_ACCESS_TOKEN_SECRET", "short")
	t.Setenv("VIDTUBE_REFRESH_TOKEN_SECRET", strings.Repeat("b", 32))
	_, err := LoadConfigFromEnv()
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for short secret, got %v", err)
	}
}

func TestLoadConfigFromEnv_InvalidDurations(t *testing.T) {
	cases := map[string]string{
		"VIDTUBE_ACCESS_TOKEN_TTL":   "-5m",
		"VIDTUBE_REFRESH_TOKEN_TTL":  "0",
		"VIDTUBE_AUTH_CLOCK_SKEW":    "soon",
		"VIDTUBE_AUTH_STORE_TIMEOUT": "0s",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			setSecrets(t)
			t.Setenv(key, val)
			_, err := LoadConfigFromEnv()
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig for %s=%q, got %v", key, val, err)
			}
		})
	}
}

func TestLoadConfigFromEnv_ShortHMACKey(t *testing.T) {
	setSecrets(t)
	t.Setenv("VIDTUBE_TOKEN_HMAC_KEY", "tiny")
	_, err := LoadConfigFromEnv()
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for short hmac key, got %v", err)
	}
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	setSecrets(t)

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Issuer != "vidtube" {
		t.Fatalf("issuer mismatch: %q", cfg.Issuer)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("access ttl mismatch: %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 240*time.Hour {
		t.Fatalf("refresh ttl mismatch: %v", cfg.RefreshTokenTTL)
	}
	if cfg.ClockSkew != 0 {
		t.Fatalf("clock skew should default to zero, got %v", cfg.ClockSkew)
	}
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	setSecrets(t)
	t.Setenv("VIDTUBE_AUTH_ISSUER", "vidtube-test")
	t.Setenv("VIDTUBE_ACCESS_TOKEN_TTL", "10m")
	t.Setenv("VIDTUBE_REFRESH_TOKEN_TTL", "48h")
	t.Setenv("VIDTUBE_AUTH_CLOCK_SKEW", "20s")
	t.Setenv("VIDTUBE_AUTH_STORE_TIMEOUT", "1s")
	t.Setenv("VIDTUBE_TOKEN_HMAC_KEY", strings.Repeat("k", 32))

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Issuer != "vidtube-test" {
		t.Fatalf("issuer mismatch: %q", cfg.Issuer)
	}
	if cfg.AccessTokenTTL != 10*time.Minute {
		t.Fatalf("access ttl mismatch: %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 48*time.Hour {
		t.Fatalf("refresh ttl mismatch: %v", cfg.RefreshTokenTTL)
	}
	if cfg.ClockSkew != 20*time.Second {
		t.Fatalf("clock skew mismatch: %v", cfg.ClockSkew)
	}
	if cfg.StoreTimeout != time.Second {
		t.Fatalf("store timeout mismatch: %v", cfg.StoreTimeout)
	}
	if cfg.RefreshDigestKey == "" {
		t.Fatalf("expected hmac key to be loaded")
	}
}
