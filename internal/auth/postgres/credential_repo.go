// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/todosite/todosite/internal/auth"
)

const selectCredential = `
	SELECT i.user_id, i.username, i.email, p.password_hash,
	       i.created_at, GREATEST(i.updated_at, p.updated_at)
	FROM user_info i
	JOIN user_password p ON p.user_id = i.user_id
`

// CredentialRepository implements auth.CredentialRepository using PostgreSQL.
// Methods join a transaction started by Transactor when ctx carries one.
type CredentialRepository struct {
	pool poolIface
}

var _ auth.CredentialRepository = (*CredentialRepository)(nil)

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(pool poolIface) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// FindByUsername retrieves a credential by canonical username.
func (r *CredentialRepository) FindByUsername(ctx context.Context, username auth.Username) (*auth.StoredCredential, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, selectCredential+`WHERE i.username = $1`, username.String())

	cred, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").
			With("username", username.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CREDENTIAL_GET_BY_USERNAME_FAILED").
			With("operation", "get credential by username").
			With("username", username.String()).
			Wrap(err)
	}
	return cred, nil
}

// FindByID retrieves a credential by user ID.
func (r *CredentialRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.StoredCredential, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, selectCredential+`WHERE i.user_id = $1`, id.String())

	cred, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CREDENTIAL_GET_BY_ID_FAILED").
			With("operation", "get credential by id").
			With("id", id.String()).
			Wrap(err)
	}
	return cred, nil
}

// UsernameExists reports whether the canonical username is taken.
func (r *CredentialRepository) UsernameExists(ctx context.Context, username auth.Username) (bool, error) {
	var exists bool
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_info WHERE username = $1)`,
		username.String(),
	).Scan(&exists)
	if err != nil {
		return false, oops.Code("CREDENTIAL_EXISTS_CHECK_FAILED").
			With("operation", "check username").
			With("username", username.String()).
			Wrap(err)
	}
	return exists, nil
}

// EmailExists reports whether the canonical email address is taken.
func (r *CredentialRepository) EmailExists(ctx context.Context, email auth.EmailAddress) (bool, error) {
	var exists bool
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_info WHERE email = $1)`,
		email.String(),
	).Scan(&exists)
	if err != nil {
		return false, oops.Code("CREDENTIAL_EXISTS_CHECK_FAILED").
			With("operation", "check email").
			Wrap(err)
	}
	return exists, nil
}

// Create inserts the user_info and user_password rows for cred atomically.
// A unique violation on username or email returns auth.ErrUsernameExists or
// auth.ErrEmailExists.
func (r *CredentialRepository) Create(ctx context.Context, cred *auth.StoredCredential) error {
	return withTx(ctx, r.pool, func(q querier) error {
		_, err := q.Exec(ctx, `
			INSERT INTO user_info (user_id, username, email, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`,
			cred.ID.String(),
			cred.Username.String(),
			cred.Email.String(),
			cred.CreatedAt,
			cred.UpdatedAt,
		)
		if err != nil {
			if mapped := mapUniqueViolation(err); mapped != nil {
				return mapped
			}
			return oops.Code("CREDENTIAL_CREATE_FAILED").
				With("operation", "insert user_info").
				With("id", cred.ID.String()).
				Wrap(err)
		}

		_, err = q.Exec(ctx, `
			INSERT INTO user_password (user_id, password_hash, updated_at)
			VALUES ($1, $2, $3)
		`,
			cred.ID.String(),
			cred.PasswordHash,
			cred.UpdatedAt,
		)
		if err != nil {
			return oops.Code("CREDENTIAL_CREATE_FAILED").
				With("operation", "insert user_password").
				With("id", cred.ID.String()).
				Wrap(err)
		}
		return nil
	})
}

// UpdatePasswordHash replaces the stored hash for a user.
func (r *CredentialRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE user_password SET password_hash = $2, updated_at = $3
		WHERE user_id = $1
	`, id.String(), hash, time.Now())
	if err != nil {
		return oops.Code("CREDENTIAL_UPDATE_PASSWORD_FAILED").
			With("operation", "update password hash").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("CREDENTIAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanCredential scans a single row into a StoredCredential.
// Callers are responsible for handling pgx.ErrNoRows.
func scanCredential(row pgx.Row) (*auth.StoredCredential, error) {
	var (
		idStr        string
		rawUsername  string
		rawEmail     string
		passwordHash string
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := row.Scan(&idStr, &rawUsername, &rawEmail, &passwordHash, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("CREDENTIAL_SCAN_FAILED").
			With("operation", "scan credential").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("CREDENTIAL_CORRUPT").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}
	username, err := auth.ParseUsername(rawUsername)
	if err != nil {
		return nil, oops.Code("CREDENTIAL_CORRUPT").
			With("operation", "parse stored username").
			With("id", idStr).
			Wrap(err)
	}
	email, err := auth.ParseEmailAddress(rawEmail)
	if err != nil {
		return nil, oops.Code("CREDENTIAL_CORRUPT").
			With("operation", "parse stored email").
			With("id", idStr).
			Wrap(err)
	}

	cred, err := auth.NewStoredCredential(id, username, email, passwordHash, createdAt)
	if err != nil {
		return nil, oops.Code("CREDENTIAL_CORRUPT").With("id", idStr).Wrap(err)
	}
	cred.UpdatedAt = updatedAt
	return cred, nil
}
