// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package postgres

import (
	"context"

	"github.com/samber/oops"
)

// Transactor implements auth.Transactor on a pgx pool. It stores the active
// pgx.Tx in context so CredentialRepository calls made by fn join the same
// transaction.
type Transactor struct {
	pool poolIface
}

// NewTransactor creates a Transactor backed by the given pool.
func NewTransactor(pool poolIface) *Transactor {
	return &Transactor{pool: pool}
}

// InTransaction begins a transaction, stores it in context, and calls fn.
// If fn returns nil the transaction is committed, otherwise it is rolled
// back. A unique violation reported at commit is mapped like one reported
// by the insert itself.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return mapped
		}
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}
