// Package envx reads typed VIDTUBE_ settings from the environment. Every
// reader falls back to its default when the variable is unset or unusable.
package envx

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// or returns parse(value of key), or def when the variable is unset,
// blank or rejected by parse.
func or[T any](key string, def T, parse func(string) (T, bool)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if v, ok := parse(raw); ok {
		return v
	}
	return def
}

func String(key, def string) string {
	return or(key, def, func(s string) (string, bool) { return s, true })
}

func Bool(key string, def bool) bool {
	return or(key, def, func(s string) (bool, bool) {
		b, err := strconv.ParseBool(s)
		return b, err == nil
	})
}

// Int accepts only positive values.
func Int(key string, def int) int {
	return or(key, def, func(s string) (int, bool) {
		n, err := strconv.Atoi(s)
		return n, err == nil && n > 0
	})
}

// Int32 accepts zero, for settings like a minimum pool size.
func Int32(key string, def int32) int32 {
	return or(key, def, func(s string) (int32, bool) {
		n, err := strconv.ParseInt(s, 10, 32)
		return int32(n), err == nil && n >= 0
	})
}

// Int64 accepts only positive values.
func Int64(key string, def int64) int64 {
	return or(key, def, func(s string) (int64, bool) {
		n, err := strconv.ParseInt(s, 10, 64)
		return n, err == nil && n > 0
	})
}

// Duration accepts only positive durations such as "15s".
func Duration(key string, def time.Duration) time.Duration {
	return or(key, def, func(s string) (time.Duration, bool) {
		d, err := time.ParseDuration(s)
		return d, err == nil && d > 0
	})
}

// List splits a comma separated variable, dropping blank items.
func List(key string) []string {
	return or(key, nil, func(s string) ([]string, bool) {
		var out []string
		for item := range strings.SplitSeq(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out, true
	})
}
