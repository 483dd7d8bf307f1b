package session

import (
	"strings"
	"sync"
	"testing"
	"time"

	"vidtube/cmd/identity"
	"vidtube/cmd/security/password"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AccessTokenSecret = strings.Repeat("a", 32)
	cfg.RefreshTokenSecret = strings.Repeat("r", 32)
	return cfg
}

// fastHasher keeps argon2id cheap enough for unit tests.
func fastHasher() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func newTestService(t *testing.T) (*Service, *identity.MemoryStore, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	store := identity.NewMemoryStore()
	svc, err := NewService(testConfig(), store, fastHasher(), WithServiceClock(clock.Now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store, clock
}
