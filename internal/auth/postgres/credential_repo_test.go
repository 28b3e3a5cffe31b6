// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todosite/todosite/internal/auth"
	"github.com/todosite/todosite/pkg/errutil"
)

var credentialColumns = []string{"user_id", "username", "email", "password_hash", "created_at", "updated_at"}

const testHash = "$argon2id$v=19$m=64,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2U"

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return mock
}

func mustUsername(t *testing.T, raw string) auth.Username {
	t.Helper()
	u, err := auth.ParseUsername(raw)
	require.NoError(t, err)
	return u
}

func mustEmail(t *testing.T, raw string) auth.EmailAddress {
	t.Helper()
	e, err := auth.ParseEmailAddress(raw)
	require.NoError(t, err)
	return e
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{
		Code:           pgerrcode.UniqueViolation,
		ConstraintName: constraint,
		Message:        "duplicate key value violates unique constraint",
	}
}

func TestCredentialRepository_FindByUsername(t *testing.T) {
	id := ulid.Make()
	created := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantCode  string
		wantErr   error
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT i.user_id, i.username`).
					WithArgs("alice").
					WillReturnRows(pgxmock.NewRows(credentialColumns).
						AddRow(id.String(), "alice", "alice@example.com", testHash, created, updated))
			},
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT i.user_id, i.username`).
					WithArgs("alice").
					WillReturnRows(pgxmock.NewRows(credentialColumns))
			},
			wantCode: "CREDENTIAL_NOT_FOUND",
			wantErr:  auth.ErrNotFound,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT i.user_id, i.username`).
					WithArgs("alice").
					WillReturnError(errors.New("connection refused"))
			},
			wantCode: "CREDENTIAL_GET_BY_USERNAME_FAILED",
		},
		{
			name: "corrupt stored id",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT i.user_id, i.username`).
					WithArgs("alice").
					WillReturnRows(pgxmock.NewRows(credentialColumns).
						AddRow("not-a-ulid", "alice", "alice@example.com", testHash, created, updated))
			},
			wantCode: "CREDENTIAL_GET_BY_USERNAME_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			tt.setupMock(mock)

			repo := NewCredentialRepository(mock)
			cred, err := repo.FindByUsername(context.Background(), mustUsername(t, "alice"))

			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, id, cred.ID)
				assert.Equal(t, "alice", cred.Username.String())
				assert.Equal(t, "alice@example.com", cred.Email.String())
				assert.Equal(t, testHash, cred.PasswordHash)
				assert.Equal(t, created, cred.CreatedAt)
				assert.Equal(t, updated, cred.UpdatedAt)
				return
			}

			require.Error(t, err)
			assert.Nil(t, cred)
			if tt.wantErr != nil {
				errutil.AssertCodedSentinel(t, err, tt.wantCode, tt.wantErr)
			} else {
				assert.NotErrorIs(t, err, auth.ErrNotFound)
			}
		})
	}
}

func TestCredentialRepository_FindByID(t *testing.T) {
	id := ulid.Make()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`WHERE i.user_id = \$1`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(credentialColumns).
				AddRow(id.String(), "bob", "bob@example.com", testHash, now, now))

		cred, err := NewCredentialRepository(mock).FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "bob", cred.Username.String())
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`WHERE i.user_id = \$1`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(credentialColumns))

		_, err := NewCredentialRepository(mock).FindByID(context.Background(), id)
		errutil.AssertCodedSentinel(t, err, "CREDENTIAL_NOT_FOUND", auth.ErrNotFound)
	})
}

func TestCredentialRepository_Exists(t *testing.T) {
	ctx := context.Background()

	t.Run("username taken", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM user_info WHERE username = \$1\)`).
			WithArgs("alice").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		exists, err := NewCredentialRepository(mock).UsernameExists(ctx, mustUsername(t, "alice"))
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("email free", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM user_info WHERE email = \$1\)`).
			WithArgs("alice@example.com").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		exists, err := NewCredentialRepository(mock).EmailExists(ctx, mustEmail(t, "Alice@Example.com"))
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("alice").
			WillReturnError(errors.New("connection refused"))

		_, err := NewCredentialRepository(mock).UsernameExists(ctx, mustUsername(t, "alice"))
		errutil.AssertErrorCode(t, err, "CREDENTIAL_EXISTS_CHECK_FAILED")
	})
}

func newTestCredential(t *testing.T) *auth.StoredCredential {
	t.Helper()
	cred, err := auth.NewStoredCredential(ulid.Make(), mustUsername(t, "alice"), mustEmail(t, "alice@example.com"),
		testHash, time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return cred
}

func TestCredentialRepository_Create(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface, cred *auth.StoredCredential)
		wantErr   error
		wantCode  string
	}{
		{
			name: "inserts both rows in one transaction",
			setupMock: func(mock pgxmock.PgxPoolIface, cred *auth.StoredCredential) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO user_info`).
					WithArgs(cred.ID.String(), "alice", "alice@example.com", cred.CreatedAt, cred.UpdatedAt).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectExec(`INSERT INTO user_password`).
					WithArgs(cred.ID.String(), testHash, cred.UpdatedAt).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "duplicate username",
			setupMock: func(mock pgxmock.PgxPoolIface, _ *auth.StoredCredential) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO user_info`).
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(uniqueViolation("user_info_username_key"))
				mock.ExpectRollback()
			},
			wantErr:  auth.ErrUsernameExists,
			wantCode: "CREDENTIAL_USERNAME_EXISTS",
		},
		{
			name: "duplicate email",
			setupMock: func(mock pgxmock.PgxPoolIface, _ *auth.StoredCredential) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO user_info`).
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(uniqueViolation("user_info_email_key"))
				mock.ExpectRollback()
			},
			wantErr:  auth.ErrEmailExists,
			wantCode: "CREDENTIAL_EMAIL_EXISTS",
		},
		{
			name: "other unique violation is not a conflict",
			setupMock: func(mock pgxmock.PgxPoolIface, _ *auth.StoredCredential) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO user_info`).
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(uniqueViolation("user_info_pkey"))
				mock.ExpectRollback()
			},
			wantCode: "CREDENTIAL_CREATE_FAILED",
		},
		{
			name: "password insert fails",
			setupMock: func(mock pgxmock.PgxPoolIface, _ *auth.StoredCredential) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO user_info`).
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectExec(`INSERT INTO user_password`).
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
			wantCode: "CREDENTIAL_CREATE_FAILED",
		},
		{
			name: "begin fails",
			setupMock: func(mock pgxmock.PgxPoolIface, _ *auth.StoredCredential) {
				mock.ExpectBegin().WillReturnError(errors.New("too many connections"))
			},
			wantCode: "TX_BEGIN_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			cred := newTestCredential(t)
			tt.setupMock(mock, cred)

			err := NewCredentialRepository(mock).Create(ctx, cred)
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NotErrorIs(t, err, auth.ErrUsernameExists)
				assert.NotErrorIs(t, err, auth.ErrEmailExists)
			}
		})
	}
}

func TestCredentialRepository_UpdatePasswordHash(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()

	t.Run("updates hash", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE user_password SET password_hash = \$2`).
			WithArgs(id.String(), "newhash", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, NewCredentialRepository(mock).UpdatePasswordHash(ctx, id, "newhash"))
	})

	t.Run("unknown user", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE user_password`).
			WithArgs(id.String(), "newhash", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := NewCredentialRepository(mock).UpdatePasswordHash(ctx, id, "newhash")
		errutil.AssertCodedSentinel(t, err, "CREDENTIAL_NOT_FOUND", auth.ErrNotFound)
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE user_password`).
			WithArgs(id.String(), "newhash", pgxmock.AnyArg()).
			WillReturnError(errors.New("connection reset"))

		err := NewCredentialRepository(mock).UpdatePasswordHash(ctx, id, "newhash")
		errutil.AssertErrorCode(t, err, "CREDENTIAL_UPDATE_PASSWORD_FAILED")
	})
}
