// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package auth

import (
	"bytes"
	"context"
	"runtime"
	"time"

	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"
)

// HashPool runs password hashing off the caller's goroutine with a bound on
// how many hashes may be computed at once.
//
// A caller whose context is cancelled returns immediately with the context
// error. The abandoned computation runs to completion on its own copy of the
// secret and then releases its slot.
type HashPool struct {
	hasher  PasswordHasher
	sem     *semaphore.Weighted
	workers int
	metrics *Metrics
}

// HashPoolOption configures a HashPool.
type HashPoolOption func(*HashPool)

// WithPoolMetrics records hash durations on m.
func WithPoolMetrics(m *Metrics) HashPoolOption {
	return func(p *HashPool) {
		p.metrics = m
	}
}

// NewHashPool creates a pool allowing up to workers concurrent hash
// operations. A non-positive workers value uses GOMAXPROCS.
func NewHashPool(hasher PasswordHasher, workers int, opts ...HashPoolOption) (*HashPool, error) {
	if hasher == nil {
		return nil, oops.Code("HASH_POOL_INVALID").Errorf("password hasher is required")
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &HashPool{
		hasher:  hasher,
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Workers returns the concurrency bound.
func (p *HashPool) Workers() int {
	return p.workers
}

// Hash computes a hash of secret with a fresh salt.
func (p *HashPool) Hash(ctx context.Context, secret []byte) (string, error) {
	return submit(ctx, p, "hash", secret, func(s []byte) (string, error) {
		return p.hasher.Hash(s)
	})
}

// Verify checks secret against an encoded hash.
func (p *HashPool) Verify(ctx context.Context, secret []byte, encoded string) (bool, error) {
	return submit(ctx, p, "verify", secret, func(s []byte) (bool, error) {
		return p.hasher.Verify(s, encoded)
	})
}

// NeedsUpgrade reports whether encoded should be rehashed. It does no
// hashing work and runs inline.
func (p *HashPool) NeedsUpgrade(encoded string) bool {
	return p.hasher.NeedsUpgrade(encoded)
}

type poolResult[T any] struct {
	val T
	err error
}

func submit[T any](ctx context.Context, p *HashPool, op string, secret []byte, fn func([]byte) (T, error)) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, oops.Code("HASH_POOL_CANCELLED").With("op", op).Wrap(err)
	}

	// The worker owns its copy so the caller may wipe its own buffer as soon
	// as it returns.
	owned := bytes.Clone(secret)
	done := make(chan poolResult[T], 1)
	go func() {
		defer p.sem.Release(1)
		defer clear(owned)

		start := time.Now()
		val, err := fn(owned)
		p.metrics.observeHash(op, time.Since(start))
		done <- poolResult[T]{val: val, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, oops.Code("HASH_POOL_CANCELLED").With("op", op).Wrap(ctx.Err())
	}
}
