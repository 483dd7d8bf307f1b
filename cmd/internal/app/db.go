package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// NewDBPool builds a pgxpool and waits for the database to accept
// connections, retrying with exponential backoff.
func NewDBPool(ctx context.Context, cfg Config, log *slog.Logger) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, oops.In("app").Code("CONFIG_INVALID").Wrapf(err, "parse database url")
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, oops.In("app").Code("DB_CONNECT_FAILED").Wrap(err)
	}

	retries := cfg.DBConnectRetries
	if retries < 0 {
		retries = 0
	}
	backoff := retry.WithMaxRetries(uint64(retries),
		retry.WithCappedDuration(5*time.Second, retry.NewExponential(250*time.Millisecond)))

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := PingDB(ctx, pool, 3*time.Second); err != nil {
			log.Warn("db.connect.retry", "attempt", attempt, "err", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.In("app").Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}

	return pool, nil
}

// PingDB checks that the database answers within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return pool.Ping(ctx)
}
