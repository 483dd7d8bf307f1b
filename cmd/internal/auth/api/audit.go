package api

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Auditor records auth outcomes as structured log events and a Prometheus counter.
type Auditor struct {
	log    *slog.Logger
	events *prometheus.CounterVec
}

// NewAuditor builds an Auditor. reg may be nil, in which case the counter
// is kept but not exported.
func NewAuditor(log *slog.Logger, reg prometheus.Registerer) (*Auditor, error) {
	if log == nil {
		log = slog.Default()
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidtube",
		Subsystem: "auth",
		Name:      "events_total",
		Help:      "Authentication events by action and outcome.",
	}, []string{"action", "outcome"})

	if reg != nil {
		if err := reg.Register(events); err != nil {
			return nil, err
		}
	}
	return &Auditor{log: log, events: events}, nil
}

type auditEvent struct {
	action     string
	outcome    string
	accountID  string
	identifier string
	reason     string
	ip         net.IP
	userAgent  string
	retryAfter time.Duration
}

func (a *Auditor) record(ctx context.Context, ev auditEvent) {
	if a == nil {
		return
	}
	a.events.WithLabelValues(ev.action, ev.outcome).Inc()

	attrs := []any{"outcome", ev.outcome}
	if ev.accountID != "" {
		attrs = append(attrs, "account_id", ev.accountID)
	}
	if ev.identifier != "" {
		attrs = append(attrs, "identifier", ev.identifier)
	}
	if ev.reason != "" {
		attrs = append(attrs, "reason", ev.reason)
	}
	if ev.ip != nil {
		attrs = append(attrs, "ip", ev.ip.String())
	}
	if ua := strings.TrimSpace(ev.userAgent); ua != "" {
		attrs = append(attrs, "user_agent", ua)
	}
	if ev.retryAfter > 0 {
		attrs = append(attrs, "retry_after_s", int64(ev.retryAfter.Seconds()))
	}

	level := slog.LevelInfo
	if ev.outcome != "success" {
		level = slog.LevelWarn
	}
	a.log.Log(ctx, level, ev.action, attrs...)
}

func (a *Auditor) registerResult(ctx context.Context, accountID, identifier, reason string, ip net.IP, ua string) {
	a.record(ctx, auditEvent{action: "auth.register", outcome: outcomeOf(reason), accountID: accountID, identifier: identifier, reason: reason, ip: ip, userAgent: ua})
}

func (a *Auditor) loginResult(ctx context.Context, accountID, identifier, reason string, ip net.IP, ua string) {
	a.record(ctx, auditEvent{action: "auth.login", outcome: outcomeOf(reason), accountID: accountID, identifier: identifier, reason: reason, ip: ip, userAgent: ua})
}

func (a *Auditor) loginRateLimited(ctx context.Context, identifier string, ip net.IP, ua string, retryAfter time.Duration) {
	a.record(ctx, auditEvent{action: "auth.login", outcome: "rate_limited", identifier: identifier, ip: ip, userAgent: ua, retryAfter: retryAfter})
}

func (a *Auditor) refreshResult(ctx context.Context, reason string, ip net.IP, ua string) {
	outcome := outcomeOf(reason)
	if reason == "token_reuse_detected" {
		outcome = "reuse_detected"
	}
	a.record(ctx, auditEvent{action: "auth.refresh", outcome: outcome, reason: reason, ip: ip, userAgent: ua})
}

func (a *Auditor) logout(ctx context.Context, accountID string, ip net.IP, ua string) {
	a.record(ctx, auditEvent{action: "auth.logout", outcome: "success", accountID: accountID, ip: ip, userAgent: ua})
}

func (a *Auditor) passwordChanged(ctx context.Context, accountID, reason string, ip net.IP, ua string) {
	a.record(ctx, auditEvent{action: "auth.password.change", outcome: outcomeOf(reason), accountID: accountID, reason: reason, ip: ip, userAgent: ua})
}

func outcomeOf(reason string) string {
	if reason == "" {
		return "success"
	}
	return "failed"
}
