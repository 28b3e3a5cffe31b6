// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package store

import (
	"cmp"
	"embed"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	// Register pgx/v5 database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration identifies one embedded schema migration.
type Migration struct {
	Version uint
	Name    string // NNNNNN_name, without the .up.sql suffix
}

// MigrationState reports whether a migration has been applied.
type MigrationState struct {
	Migration
	Applied bool
}

// migrateIface abstracts golang-migrate so Migrator can be tested without a
// database.
type migrateIface interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() (source error, database error)
}

// Migrator wraps golang-migrate for database schema management.
type Migrator struct {
	m      migrateIface
	logger *slog.Logger
}

// MigratorOption configures a Migrator.
type MigratorOption func(*Migrator)

// WithMigrationLogger sets the logger used to report applied migrations.
func WithMigrationLogger(logger *slog.Logger) MigratorOption {
	return func(m *Migrator) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMigrator creates a Migrator for the embedded migrations. databaseURL
// may use the postgres://, postgresql:// or pgx5:// scheme.
func NewMigrator(databaseURL string, opts ...MigratorOption) (*Migrator, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").With("operation", "create migration source").Wrap(err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(databaseURL))
	if err != nil {
		_ = source.Close() //nolint:errcheck // init error takes precedence
		return nil, oops.Code("MIGRATION_INIT_FAILED").With("operation", "initialize migrator").Wrap(err)
	}

	return newMigrator(m, opts...), nil
}

func newMigrator(m migrateIface, opts ...MigratorOption) *Migrator {
	mig := &Migrator{m: m, logger: slog.Default()}
	for _, opt := range opts {
		opt(mig)
	}
	return mig
}

// migrateURL rewrites postgres:// and postgresql:// to the pgx5:// scheme
// the golang-migrate pgx/v5 driver registers.
func migrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(databaseURL, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Debug("schema already up to date")
			return nil
		}
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	m.logVersion("migrations applied")
	return nil
}

// Down rolls back every migration. All user data is dropped.
func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_DOWN_FAILED").Wrap(err)
	}
	m.logVersion("migrations rolled back")
	return nil
}

// Steps applies n migrations. Positive n migrates up, negative n down.
func (m *Migrator) Steps(n int) error {
	if n == 0 {
		return nil
	}
	if err := m.m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_STEPS_FAILED").With("steps", n).Wrap(err)
	}
	m.logVersion("migration steps applied")
	return nil
}

func (m *Migrator) logVersion(msg string) {
	version, dirty, err := m.Version()
	if err != nil {
		m.logger.Warn(msg, "version_error", err)
		return
	}
	m.logger.Info(msg, "version", version, "dirty", dirty)
}

// Version returns the current migration version and dirty state. Version 0
// means no migration has been applied. A dirty database needs Force after
// manual repair.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return version, dirty, nil
}

// Force records version as applied and clears the dirty flag without running
// any migration.
func (m *Migrator) Force(version int) error {
	if version < 0 {
		return oops.Code("INVALID_VERSION").Errorf("version must be non-negative, got %d", version)
	}
	if err := m.m.Force(version); err != nil {
		return oops.Code("MIGRATION_FORCE_FAILED").With("version", version).Wrap(err)
	}
	m.logger.Warn("migration version forced", "version", version)
	return nil
}

// Close releases the source and database handles.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	switch {
	case srcErr != nil && dbErr != nil:
		return oops.Code("MIGRATION_CLOSE_FAILED").
			With("component", "both").
			Wrap(errors.Join(srcErr, dbErr))
	case srcErr != nil:
		return oops.Code("MIGRATION_CLOSE_FAILED").With("component", "source").Wrap(srcErr)
	case dbErr != nil:
		return oops.Code("MIGRATION_CLOSE_FAILED").With("component", "database").Wrap(dbErr)
	default:
		return nil
	}
}

// PendingMigrations lists the migrations Up would apply, in order.
func (m *Migrator) PendingMigrations() ([]Migration, error) {
	states, err := m.Status()
	if err != nil {
		return nil, oops.With("operation", "get pending migrations").Wrap(err)
	}

	var pending []Migration
	for _, s := range states {
		if !s.Applied {
			pending = append(pending, s.Migration)
		}
	}
	return pending, nil
}

// Status lists every embedded migration with its applied state.
func (m *Migrator) Status() ([]MigrationState, error) {
	current, _, err := m.Version()
	if err != nil {
		return nil, err
	}

	all, err := Migrations()
	if err != nil {
		return nil, err
	}

	states := make([]MigrationState, len(all))
	for i, mig := range all {
		states[i] = MigrationState{Migration: mig, Applied: mig.Version <= current}
	}
	return states, nil
}

var loadMigrationsOnce = sync.OnceValues(loadMigrations)

// Migrations lists the embedded migrations in ascending version order.
func Migrations() ([]Migration, error) {
	all, err := loadMigrationsOnce()
	if err != nil {
		return nil, err
	}
	return slices.Clone(all), nil
}

// MigrationName returns the name of the migration with the given version,
// or "" when there is none.
func MigrationName(version uint) (string, error) {
	all, err := Migrations()
	if err != nil {
		return "", err
	}
	for _, mig := range all {
		if mig.Version == version {
			return mig.Name, nil
		}
	}
	return "", nil
}

// loadMigrations parses NNNNNN_name.up.sql file names. Other files are
// skipped with a warning.
func loadMigrations() ([]Migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_LIST_FAILED").With("operation", "read migrations dir").Wrap(err)
	}

	var all []Migration
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".up.sql")
		if !ok {
			continue
		}
		prefix, _, found := strings.Cut(name, "_")
		version, err := strconv.ParseUint(prefix, 10, 64)
		if !found || len(prefix) != 6 || err != nil {
			slog.Warn("skipping migration with unexpected file name",
				"filename", entry.Name(),
				"expected_format", "NNNNNN_name.up.sql")
			continue
		}
		all = append(all, Migration{Version: uint(version), Name: name})
	}

	slices.SortFunc(all, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return all, nil
}
