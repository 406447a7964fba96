package postgres

import (
	"context"
	"github.com/jackc/pgx/v5/pgxpool"
	"strconv"
	"time"
)

type Options struct {
	MaxConns    int32
	LockTimeout time.Duration
}

// Connect opens a pool whose sessions give up waiting on a row lock after
// opts.LockTimeout instead of queueing forever behind the holder.
func Connect(ctx context.Context, dsn string, opts Options) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	if opts.LockTimeout > 0 {
		cfg.ConnConfig.RuntimeParams["lock_timeout"] = LockTimeoutSetting(opts.LockTimeout)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// LockTimeoutSetting renders d as a postgres interval in milliseconds.
func LockTimeoutSetting(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return strconv.FormatInt(ms, 10) + "ms"
}
