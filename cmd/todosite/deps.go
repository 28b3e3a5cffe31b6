// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/todosite/todosite/internal/auth"
	authpg "github.com/todosite/todosite/internal/auth/postgres"
	authredis "github.com/todosite/todosite/internal/auth/redis"
	"github.com/todosite/todosite/internal/store"
)

// Deps contains injectable dependencies for the CLI commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// CredentialStoreFactory opens the credential store.
	// Default: store.OpenPool with the postgres repository and transactor.
	CredentialStoreFactory func(ctx context.Context, url string) (*CredentialStore, error)

	// SessionStoreFactory opens the session store.
	// Default: the Redis session repository.
	SessionStoreFactory func(ctx context.Context, url string) (*SessionStore, error)

	// MigratorFactory creates a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(url string, logger *slog.Logger) (Migrator, error)

	// PasswordReader reads a password without echo after printing prompt.
	// Default: readTerminalPassword
	PasswordReader func(prompt string) ([]byte, error)
}

// CredentialStore bundles the credential ports with a release function.
type CredentialStore struct {
	Credentials auth.CredentialRepository
	Transactor  auth.Transactor
	Close       func()
}

// SessionStore bundles the session port with a release function.
type SessionStore struct {
	Sessions auth.SessionRepository
	Close    func() error
}

// Migrator interface wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Status() ([]store.MigrationState, error)
	Close() error
}

func (d *Deps) withDefaults() *Deps {
	out := *d
	if out.CredentialStoreFactory == nil {
		out.CredentialStoreFactory = openCredentialStore
	}
	if out.SessionStoreFactory == nil {
		out.SessionStoreFactory = openSessionStore
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(url string, logger *slog.Logger) (Migrator, error) {
			return store.NewMigrator(url, store.WithMigrationLogger(logger))
		}
	}
	if out.PasswordReader == nil {
		out.PasswordReader = readTerminalPassword
	}
	return &out
}

func openCredentialStore(ctx context.Context, url string) (*CredentialStore, error) {
	pool, err := store.OpenPool(ctx, url)
	if err != nil {
		return nil, err
	}
	return &CredentialStore{
		Credentials: authpg.NewCredentialRepository(pool),
		Transactor:  authpg.NewTransactor(pool),
		Close:       pool.Close,
	}, nil
}

func openSessionStore(ctx context.Context, url string) (*SessionStore, error) {
	rdb, err := authredis.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	return &SessionStore{
		Sessions: authredis.NewSessionRepository(rdb),
		Close:    rdb.Close,
	}, nil
}
