// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection retry defaults for OpenPool.
const (
	DefaultConnectRetries = 5
	DefaultConnectBackoff = 200 * time.Millisecond
)

type poolConfig struct {
	retries uint64
	backoff time.Duration
}

// PoolOption configures OpenPool.
type PoolOption func(*poolConfig)

// WithConnectRetry sets how many times the initial ping is retried and the
// base delay of the exponential backoff between attempts.
func WithConnectRetry(retries uint64, backoff time.Duration) PoolOption {
	return func(c *poolConfig) {
		c.retries = retries
		c.backoff = backoff
	}
}

// OpenPool creates a pgx connection pool and pings it until the database
// answers, retrying with exponential backoff.
func OpenPool(ctx context.Context, databaseURL string, opts ...PoolOption) (*pgxpool.Pool, error) {
	cfg := poolConfig{retries: DefaultConnectRetries, backoff: DefaultConnectBackoff}
	for _, opt := range opts {
		opt(&cfg)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "parse database url").Wrap(err)
	}

	backoff := retry.WithMaxRetries(cfg.retries, retry.NewExponential(cfg.backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", cfg.retries+1).
			Wrap(err)
	}
	return pool, nil
}
