package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type lockoutTier struct {
	Threshold int
	Duration  time.Duration
}

// LoginThrottle tracks failed logins in Redis sorted sets, one per client IP
// and one per login identifier. Scores are failure times in unix milliseconds.
type LoginThrottle struct {
	rdb    redis.UniversalClient
	prefix string

	ipMax      int
	ipWindow   time.Duration
	userWindow time.Duration
	tiers      []lockoutTier
}

// NewLoginThrottle builds a throttle from cfg.
func NewLoginThrottle(rdb redis.UniversalClient, cfg Config) *LoginThrottle {
	return &LoginThrottle{
		rdb:        rdb,
		prefix:     "vidtube:login:",
		ipMax:      cfg.LoginIPMax,
		ipWindow:   cfg.LoginIPWindow,
		userWindow: cfg.LoginUserWindow,
		tiers: []lockoutTier{
			{Threshold: cfg.LockoutSevereThreshold, Duration: cfg.LockoutSevereDuration},
			{Threshold: cfg.LockoutLongThreshold, Duration: cfg.LockoutLongDuration},
			{Threshold: cfg.LockoutShortThreshold, Duration: cfg.LockoutShortDuration},
		},
	}
}

func (t *LoginThrottle) ipKey(ip net.IP) string { return t.prefix + "ip:" + ip.String() }

func (t *LoginThrottle) userKey(identifier string) string { return t.prefix + "id:" + identifier }

// Check reports whether a login attempt from ip for identifier must be refused.
func (t *LoginThrottle) Check(ctx context.Context, ip net.IP, identifier string, now time.Time) (bool, time.Duration, error) {
	if t == nil || t.rdb == nil {
		return false, 0, nil
	}

	if ip != nil && t.ipMax > 0 {
		failures, err := t.failuresSince(ctx, t.ipKey(ip), now.Add(-t.ipWindow))
		if err != nil {
			return false, 0, err
		}
		if blocked, retry := evaluateWindowThrottle(now, failures, t.ipMax, t.ipWindow); blocked {
			return true, retry, nil
		}
	}

	if identifier != "" {
		failures, err := t.failuresSince(ctx, t.userKey(identifier), now.Add(-t.userWindow))
		if err != nil {
			return false, 0, err
		}
		if blocked, retry := evaluateProgressiveLockout(now, failures, t.tiers); blocked {
			return true, retry, nil
		}
	}
	return false, 0, nil
}

// RecordFailure appends a failed attempt for ip and identifier.
func (t *LoginThrottle) RecordFailure(ctx context.Context, ip net.IP, identifier string, now time.Time) error {
	if t == nil || t.rdb == nil {
		return nil
	}

	pipe := t.rdb.TxPipeline()
	if ip != nil {
		t.record(ctx, pipe, t.ipKey(ip), now, t.ipWindow)
	}
	if identifier != "" {
		t.record(ctx, pipe, t.userKey(identifier), now, t.userTTL())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("login throttle: record: %w", err)
	}
	return nil
}

// Reset forgets the failures recorded for identifier.
func (t *LoginThrottle) Reset(ctx context.Context, identifier string) error {
	if t == nil || t.rdb == nil || identifier == "" {
		return nil
	}
	if err := t.rdb.Del(ctx, t.userKey(identifier)).Err(); err != nil {
		return fmt.Errorf("login throttle: reset: %w", err)
	}
	return nil
}

func (t *LoginThrottle) record(ctx context.Context, pipe redis.Pipeliner, key string, now time.Time, ttl time.Duration) {
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-ttl).UnixMilli(), 10))
	pipe.Expire(ctx, key, ttl)
}

// userTTL keeps identifier failures around for the longest lockout.
func (t *LoginThrottle) userTTL() time.Duration {
	ttl := t.userWindow
	for _, tier := range t.tiers {
		if tier.Duration > ttl {
			ttl = tier.Duration
		}
	}
	return ttl
}

func (t *LoginThrottle) failuresSince(ctx context.Context, key string, since time.Time) ([]time.Time, error) {
	zs, err := t.rdb.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("login throttle: read: %w", err)
	}
	out := make([]time.Time, 0, len(zs))
	for _, z := range zs {
		out = append(out, time.UnixMilli(int64(z.Score)).UTC())
	}
	return out, nil
}

// evaluateWindowThrottle blocks when max or more failures fall inside window.
// retry is the time until enough of them age out.
func evaluateWindowThrottle(now time.Time, failures []time.Time, max int, window time.Duration) (bool, time.Duration) {
	if max <= 0 || window <= 0 {
		return false, 0
	}

	cut := now.Add(-window)
	inWindow := make([]time.Time, 0, len(failures))
	for _, f := range failures {
		if f.After(cut) && !f.After(now) {
			inWindow = append(inWindow, f)
		}
	}
	if len(inWindow) < max {
		return false, 0
	}

	sort.Slice(inWindow, func(i, j int) bool { return inWindow[i].Before(inWindow[j]) })
	retry := inWindow[len(inWindow)-max].Add(window).Sub(now)
	if retry <= 0 {
		return false, 0
	}
	return true, retry
}

// evaluateProgressiveLockout applies the tier with the longest remaining
// lockout. A tier locks for Duration after the latest failure once
// Threshold failures are recorded.
func evaluateProgressiveLockout(now time.Time, failures []time.Time, tiers []lockoutTier) (bool, time.Duration) {
	if len(failures) == 0 {
		return false, 0
	}

	latest := failures[0]
	for _, f := range failures[1:] {
		if f.After(latest) {
			latest = f
		}
	}

	var retry time.Duration
	for _, tier := range tiers {
		if tier.Threshold <= 0 || tier.Duration <= 0 || len(failures) < tier.Threshold {
			continue
		}
		if left := latest.Add(tier.Duration).Sub(now); left > retry {
			retry = left
		}
	}
	return retry > 0, retry
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64(retryAfter / time.Second)
		if retryAfter%time.Second != 0 {
			secs++
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}

func loginIdentifier(username, email string) string {
	if u := strings.ToLower(strings.TrimSpace(username)); u != "" {
		return "u:" + u
	}
	if e := strings.ToLower(strings.TrimSpace(email)); e != "" {
		return "e:" + e
	}
	return ""
}
