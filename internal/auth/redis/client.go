// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

// Package redis stores login sessions in Redis.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

const pingTimeout = 5 * time.Second

// Connect parses a redis:// URL, creates a client and pings it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_URL_INVALID").Wrap(err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").
			With("addr", opts.Addr).
			Wrap(err)
	}
	return rdb, nil
}
