// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/todosite/todosite/pkg/errutil"
)

// newMigrateCmd creates the migrate command group.
func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back and inspect the PostgreSQL schema migrations.`,
	}

	cmd.AddCommand(newMigrateUpCmd(a))
	cmd.AddCommand(newMigrateDownCmd(a))
	cmd.AddCommand(newMigrateVersionCmd(a))
	cmd.AddCommand(newMigrateStatusCmd(a))
	cmd.AddCommand(newMigrateForceCmd(a))

	return cmd
}

// withMigrator runs fn with a migrator for the configured database.
func (a *app) withMigrator(fn func(Migrator) error) error {
	if err := a.cfg.RequireDatabase(); err != nil {
		return err
	}
	m, err := a.deps.MigratorFactory(a.cfg.Database.URL, a.logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			errutil.LogError(a.logger, "closing migrator failed", err)
		}
	}()
	return fn(m)
}

func newMigrateUpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withMigrator(func(m Migrator) error {
				if err := m.Up(); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "migrate up").Wrap(err)
				}
				return printVersion(cmd, m)
			})
		},
	}
}

func newMigrateDownCmd(a *app) *cobra.Command {
	var (
		steps int
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back the most recent migration, --steps migrations, or with
--all every migration. Rolling back drops tables and their data.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps < 1 {
				return oops.Code("INVALID_STEPS").
					With("steps", steps).
					Errorf("--steps must be at least 1")
			}
			return a.withMigrator(func(m Migrator) error {
				var err error
				if all {
					err = m.Down()
				} else {
					err = m.Steps(-steps)
				}
				if err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "migrate down").Wrap(err)
				}
				return printVersion(cmd, m)
			})
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.Flags().BoolVar(&all, "all", false, "roll back every migration")
	cmd.MarkFlagsMutuallyExclusive("steps", "all")

	return cmd
}

func newMigrateVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withMigrator(func(m Migrator) error {
				return printVersion(cmd, m)
			})
		},
	}
}

func printVersion(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "read version").Wrap(err)
	}
	switch {
	case version == 0:
		cmd.Println("Schema version: none (no migrations applied)")
	case dirty:
		cmd.Printf("Schema version: %d (dirty, fix the schema then run 'migrate force %d')\n", version, version)
	default:
		cmd.Printf("Schema version: %d\n", version)
	}
	return nil
}

func newMigrateStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether each is applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withMigrator(func(m Migrator) error {
				states, err := m.Status()
				if err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "read status").Wrap(err)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
				for _, s := range states {
					status := "pending"
					if s.Applied {
						status = "applied"
					}
					fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, s.Name, status)
				}
				return w.Flush()
			})
		},
	}
}

func newMigrateForceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Long: `Mark the schema as being at <version> and clear the dirty flag.
Use this after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return a.withMigrator(func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return oops.Code("MIGRATION_FAILED").
						With("operation", "force version").
						With("version", version).
						Wrap(err)
				}
				cmd.Printf("Forced schema version to %d\n", version)
				return nil
			})
		},
	}
}

// parseForceVersion parses a migration version argument.
func parseForceVersion(s string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").
			With("input", s).
			Errorf("version must be an integer: %q", s)
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").
			With("input", s).
			Errorf("version must not be negative: %d", version)
	}
	return version, nil
}
