// Package app wires the vidtube server runtime: config, logging, storage,
// the auth routes and the HTTP server.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"vidtube/cmd/identity"
	"vidtube/cmd/identity/migrations"
	"vidtube/cmd/internal/auth/api"
	"vidtube/cmd/internal/auth/session"
	"vidtube/cmd/internal/media"
	"vidtube/cmd/security/password"
)

// App owns the server dependencies and their lifecycle.
type App struct {
	cfg Config
	log Logger

	pool    *pgxpool.Pool
	rdb     *redis.Client
	metrics *Metrics

	auth    *api.Handler
	handler http.Handler
}

// New constructs a fully wired App. Component configuration is read from
// the environment by each package.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, nil)
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, oops.In("app").Code("CONFIG_INVALID").Wrap(err)
	}
	if err := ValidateSecurityConfig(cfg, sessCfg); err != nil {
		return nil, oops.In("app").Code("CONFIG_INVALID").Wrap(err)
	}
	hasher, err := password.FromEnv()
	if err != nil {
		return nil, oops.In("app").Code("CONFIG_INVALID").Wrap(err)
	}
	mediaCfg, err := media.FromEnv()
	if err != nil {
		return nil, oops.In("app").Code("CONFIG_INVALID").Wrap(err)
	}

	a := &App{cfg: cfg, log: log}
	if cfg.MetricsEnabled {
		a.metrics = NewMetrics()
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	svc, err := session.NewService(sessCfg, store, hasher, session.WithLogger(log))
	if err != nil {
		a.Close()
		return nil, oops.In("app").Code("CONFIG_INVALID").Wrap(err)
	}

	authCfg := api.LoadConfigFromEnv()
	auditor, err := api.NewAuditor(log, a.metrics.Registerer())
	if err != nil {
		a.Close()
		return nil, err
	}
	opts := []api.HandlerOption{api.WithAuditor(auditor)}

	if rdb := a.openRedis(ctx); rdb != nil {
		opts = append(opts, api.WithThrottle(api.NewLoginThrottle(rdb, authCfg)))
	}

	if mediaCfg.Enabled() {
		up, err := media.New(ctx, mediaCfg)
		if err != nil {
			a.Close()
			return nil, oops.In("app").Code("CONFIG_INVALID").Wrap(err)
		}
		opts = append(opts, api.WithUploader(up))
		log.Info("media.enabled", "bucket", mediaCfg.Bucket)
	} else {
		log.Info("media.disabled")
	}

	a.auth, err = api.NewHandler(log, authCfg, svc, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	mux := http.NewServeMux()
	a.registerHTTP(mux)
	a.handler = WithRequestLogging(WithSecurityHeaders(WithCORS(mux, cfg, log)), log, a.metrics)

	return a, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// openStore picks Postgres when a database URL is configured and the
// in-memory store otherwise.
func (a *App) openStore(ctx context.Context) (identity.Store, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		return identity.NewMemoryStore(), nil
	}

	if a.cfg.DBAutoMigrate {
		if err := migrations.Up(ctx, a.cfg.DatabaseURL); err != nil {
			return nil, oops.In("app").Code("MIGRATION_FAILED").Wrap(err)
		}
		a.log.Info("db.migrated")
	}

	pool, err := NewDBPool(ctx, a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	a.pool = pool

	store, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		a.pool = nil
		return nil, err
	}
	a.log.Info("db.enabled.postgres_store")
	return store, nil
}

// openRedis connects the throttle store. Failures disable throttling
// instead of failing startup.
func (a *App) openRedis(ctx context.Context) *redis.Client {
	if a.cfg.RedisURL == "" {
		a.log.Info("redis.disabled.login_throttle_off")
		return nil
	}

	opts, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		a.log.Warn("redis.config.invalid", "err", err)
		return nil
	}
	rdb := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		a.log.Warn("redis.ping.failed", "err", err)
	}

	a.rdb = rdb
	return rdb
}

// Run starts the HTTP server and blocks until ctx is done or the server fails.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.pool != nil, "throttle_enabled", a.rdb != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.Close()
		return oops.In("app").Code("SERVER_FAILED").Wrap(err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	a.Close()
	if err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

// Close releases the database pool and the Redis client.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn("redis.close.fail", "err", err)
		}
		a.rdb = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
