// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// StoredCredential is an account as persisted by the credential store.
// ID and Username never change after creation; PasswordHash may be rotated.
type StoredCredential struct {
	ID           ulid.ULID
	Username     Username
	Email        EmailAddress
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewStoredCredential creates a validated StoredCredential.
func NewStoredCredential(id ulid.ULID, username Username, email EmailAddress, passwordHash string, now time.Time) (*StoredCredential, error) {
	if id.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("CREDENTIAL_INVALID_ID").Errorf("credential ID cannot be zero")
	}
	if username.IsZero() {
		return nil, oops.Code("CREDENTIAL_INVALID_USERNAME").Errorf("username is required")
	}
	if email.IsZero() {
		return nil, oops.Code("CREDENTIAL_INVALID_EMAIL").Errorf("email address is required")
	}
	if passwordHash == "" {
		return nil, oops.Code("CREDENTIAL_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	return &StoredCredential{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Identity returns the public identity of the credential.
func (c *StoredCredential) Identity() Identity {
	return Identity{ID: c.ID, Username: c.Username}
}

// Identity is what the registration and authentication protocols return.
type Identity struct {
	ID       ulid.ULID
	Username Username
}

// CredentialRepository manages credential persistence.
//
// Implementations must participate in any transaction started by the
// Transactor they are paired with, by reading it from the context.
type CredentialRepository interface {
	// FindByUsername retrieves a credential by canonical username.
	// Returns ErrNotFound if no such user exists.
	FindByUsername(ctx context.Context, username Username) (*StoredCredential, error)

	// FindByID retrieves a credential by user ID.
	// Returns ErrNotFound if no such user exists.
	FindByID(ctx context.Context, id ulid.ULID) (*StoredCredential, error)

	// UsernameExists reports whether the username is taken.
	UsernameExists(ctx context.Context, username Username) (bool, error)

	// EmailExists reports whether the email address is taken.
	EmailExists(ctx context.Context, email EmailAddress) (bool, error)

	// Create stores a new credential. A uniqueness violation is reported as
	// ErrUsernameExists or ErrEmailExists.
	Create(ctx context.Context, cred *StoredCredential) error

	// UpdatePasswordHash replaces the stored hash for a user.
	// Returns ErrNotFound if no such user exists.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error
}

// Transactor runs a function inside a storage transaction.
type Transactor interface {
	// InTransaction calls fn with a context carrying the transaction.
	// The transaction commits if fn returns nil and rolls back otherwise.
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
