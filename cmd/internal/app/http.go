package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const probeTimeout = 2 * time.Second

// readiness is the /readyz body. Checks maps a dependency to "ok",
// "disabled" or "down".
type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (a *App) registerHTTP(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, readiness{Status: "ok"})
	})
	mux.HandleFunc("GET /readyz", a.handleReady)

	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}

	a.auth.Register(mux)
}

// handleReady fails only on the database. Redis being down turns login
// throttling off but the service still answers.
func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	body := readiness{Status: "ready", Checks: map[string]string{"database": "disabled", "redis": "disabled"}}
	status := http.StatusOK

	switch {
	case a.pool != nil:
		if err := PingDB(ctx, a.pool, probeTimeout); err != nil {
			a.log.Info("readyz.db.not_ready", "err", err)
			body.Checks["database"] = "down"
			status = http.StatusServiceUnavailable
		} else {
			body.Checks["database"] = "ok"
		}
	case a.cfg.ReadinessRequireDB:
		status = http.StatusServiceUnavailable
	}

	if a.rdb != nil {
		body.Checks["redis"] = "ok"
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			body.Checks["redis"] = "down"
		}
	}

	if status != http.StatusOK {
		body.Status = "not_ready"
	}
	writeProbe(w, status, body)
}

func writeProbe(w http.ResponseWriter, status int, body readiness) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
