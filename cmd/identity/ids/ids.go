// Package ids mints the ULIDs used for account ids and token ids.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator hands out ULIDs that sort by creation time, including several
// minted within the same millisecond.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewGenerator returns a Generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// New mints a ULID stamped with now, or the current time when now is zero.
func (g *Generator) New(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now()
	}
	g.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(now), g.entropy)
	g.mu.Unlock()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

var std = NewGenerator()

// New mints a ULID from the process-wide generator.
func New(now time.Time) (string, error) { return std.New(now) }

// Valid reports whether s is a canonical 26-character ULID.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Time returns the timestamp encoded in a ULID.
func Time(s string) (time.Time, bool) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(id.Time()), true
}
