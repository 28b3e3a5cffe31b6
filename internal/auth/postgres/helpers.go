// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/todosite/todosite/internal/auth"
)

// Unique constraints on user_info, as named by PostgreSQL for the UNIQUE
// column definitions in the initial migration.
const (
	usernameConstraint = "user_info_username_key"
	emailConstraint    = "user_info_email_key"
)

// querier abstracts query execution for both *pgxpool.Pool and pgx.Tx so
// repository methods work inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// poolIface is the subset of *pgxpool.Pool used here. pgxmock.PgxPoolIface
// satisfies it in unit tests.
type poolIface interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type txKey struct{}

// conn returns the transaction stored in ctx by Transactor, or pool.
func conn(ctx context.Context, pool poolIface) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// withTx runs fn in the caller's transaction when there is one, otherwise
// in a new transaction committed on success.
func withTx(ctx context.Context, pool poolIface, fn func(q querier) error) error {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(tx)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(tx); err != nil {
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

// mapUniqueViolation translates a unique violation on username or email
// into the matching auth sentinel. It returns nil for any other error.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}

	switch pgErr.ConstraintName {
	case usernameConstraint:
		return oops.Code("CREDENTIAL_USERNAME_EXISTS").
			With("constraint", pgErr.ConstraintName).
			Wrap(auth.ErrUsernameExists)
	case emailConstraint:
		return oops.Code("CREDENTIAL_EMAIL_EXISTS").
			With("constraint", pgErr.ConstraintName).
			Wrap(auth.ErrEmailExists)
	default:
		return nil
	}
}
