package password

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, b := range envBindings {
		// t.Setenv restores the original value after the test.
		t.Setenv(b.key, "")
		require.NoError(t, os.Unsetenv(b.key))
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("VIDTUBE_PASSWORD_MIN_LEN", "10")
	t.Setenv("VIDTUBE_PASSWORD_MAX_LEN", " 200 ")
	t.Setenv("VIDTUBE_PASSWORD_REJECT_VERY_WEAK", "true")
	t.Setenv("VIDTUBE_ARGON2_MEMORY_KIB", "32768")
	t.Setenv("VIDTUBE_ARGON2_ITERATIONS", "4")
	t.Setenv("VIDTUBE_ARGON2_PARALLELISM", "2")
	t.Setenv("VIDTUBE_ARGON2_SALT_LEN", "24")
	t.Setenv("VIDTUBE_ARGON2_KEY_LEN", "48")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, Policy{MinLength: 10, MaxLength: 200, RejectVeryWeak: true}, cfg.Policy)
	assert.Equal(t, Argon2idParams{
		MemoryKiB:   32768,
		Iterations:  4,
		Parallelism: 2,
		SaltLength:  24,
		KeyLength:   48,
	}, cfg.Params)
}

func TestFromEnvErrors(t *testing.T) {
	cases := map[string][2]string{
		"not a number":   {"VIDTUBE_PASSWORD_MIN_LEN", "eight"},
		"negative":       {"VIDTUBE_ARGON2_ITERATIONS", "-1"},
		"memory too low": {"VIDTUBE_ARGON2_MEMORY_KIB", "1024"},
		"lanes too many": {"VIDTUBE_ARGON2_PARALLELISM", "65"},
		"bad bool":       {"VIDTUBE_PASSWORD_REJECT_VERY_WEAK", "maybe"},
		"salt too short": {"VIDTUBE_ARGON2_SALT_LEN", "4"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), kv[0])
		})
	}
}

func TestFromEnvMinAboveMax(t *testing.T) {
	t.Setenv("VIDTUBE_PASSWORD_MIN_LEN", "20")
	t.Setenv("VIDTUBE_PASSWORD_MAX_LEN", "10")

	_, err := FromEnv()
	assert.ErrorContains(t, err, "exceeds max length")
}
