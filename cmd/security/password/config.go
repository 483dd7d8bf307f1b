package password

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams is the cost of one hash. MemoryKiB is in KiB, as argon2.IDKey expects.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds what users may choose as a password.
type Policy struct {
	MinLength int
	MaxLength int
	// RejectVeryWeak turns on the common-password and PIN check.
	RejectVeryWeak bool
}

// Config is both the hasher and the policy. The zero value is not usable.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig uses 64 MiB, 3 passes and one lane per CPU up to 4.
func DefaultConfig() Config {
	lanes := min(max(runtime.NumCPU(), 1), 4)
	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(lanes), // #nosec G115 -- clamped to [1..4].
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 8,
			MaxLength: 256,
		},
	}
}

// envBinding applies one VIDTUBE_ variable to a Config.
type envBinding struct {
	key   string
	apply func(*Config, string) error
}

var envBindings = []envBinding{
	{"VIDTUBE_PASSWORD_MIN_LEN", func(c *Config, v string) (err error) {
		c.Policy.MinLength, err = boundedInt(v, 1, 1024)
		return err
	}},
	{"VIDTUBE_PASSWORD_MAX_LEN", func(c *Config, v string) (err error) {
		c.Policy.MaxLength, err = boundedInt(v, 1, 4096)
		return err
	}},
	{"VIDTUBE_PASSWORD_REJECT_VERY_WEAK", func(c *Config, v string) (err error) {
		c.Policy.RejectVeryWeak, err = strconv.ParseBool(strings.TrimSpace(v))
		return err
	}},
	{"VIDTUBE_ARGON2_MEMORY_KIB", func(c *Config, v string) (err error) {
		c.Params.MemoryKiB, err = boundedUint32(v, 8*1024, 1024*1024)
		return err
	}},
	{"VIDTUBE_ARGON2_ITERATIONS", func(c *Config, v string) (err error) {
		c.Params.Iterations, err = boundedUint32(v, 1, 20)
		return err
	}},
	{"VIDTUBE_ARGON2_PARALLELISM", func(c *Config, v string) error {
		n, err := boundedUint32(v, 1, 64)
		c.Params.Parallelism = uint8(n) // #nosec G115 -- at most 64.
		return err
	}},
	{"VIDTUBE_ARGON2_SALT_LEN", func(c *Config, v string) (err error) {
		c.Params.SaltLength, err = boundedUint32(v, 8, 64)
		return err
	}},
	{"VIDTUBE_ARGON2_KEY_LEN", func(c *Config, v string) (err error) {
		c.Params.KeyLength, err = boundedUint32(v, 16, 64)
		return err
	}},
}

// FromEnv starts from DefaultConfig and applies any VIDTUBE_PASSWORD_* and
// VIDTUBE_ARGON2_* overrides that are set.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	for _, b := range envBindings {
		v, ok := os.LookupEnv(b.key)
		if !ok {
			continue
		}
		if err := b.apply(&cfg, v); err != nil {
			return Config{}, fmt.Errorf("%s: %w", b.key, err)
		}
	}
	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("password: min length %d exceeds max length %d",
			cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}
	return cfg, nil
}

func boundedInt(raw string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", raw)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%d is outside [%d, %d]", n, lo, hi)
	}
	return n, nil
}

func boundedUint32(raw string, lo, hi uint32) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%q is not an unsigned integer", raw)
	}
	if u := uint32(n); u >= lo && u <= hi {
		return u, nil
	}
	return 0, fmt.Errorf("%d is outside [%d, %d]", n, lo, hi)
}
