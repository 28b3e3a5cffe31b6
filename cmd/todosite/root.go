// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package main

import (
	"bufio"
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/todosite/todosite/internal/auth"
	"github.com/todosite/todosite/internal/config"
	"github.com/todosite/todosite/internal/logging"
	"github.com/todosite/todosite/pkg/errutil"
)

// app carries state shared by all subcommands once the root has loaded
// configuration.
type app struct {
	deps   *Deps
	cfg    *config.Config
	logger *slog.Logger

	// stdin is created on first use so several prompts can share one
	// buffered reader.
	stdin *bufio.Reader
}

// NewRootCmd creates the root command for the todosite CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&Deps{})
}

func newRootCmd(deps *Deps) *cobra.Command {
	a := &app{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:   "todosite",
		Short: "todosite - account administration",
		Long: `todosite manages the account store behind the todosite web app:
PostgreSQL schema migrations, user registration, credential checks
and login sessions.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newMigrateCmd(a))
	cmd.AddCommand(newUserCmd(a))

	return cmd
}

// setup loads configuration and installs the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	cfg, err := config.Load(config.ConfigPath(flags), flags)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	logger, err := logging.Setup(logging.Options{
		Service: "todosite",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// withService opens the stores named by the configuration, builds an
// auth.Service and calls fn. Sessions are wired when a Redis URL is
// configured; needSessions makes that mandatory.
func (a *app) withService(ctx context.Context, needSessions bool, fn func(*auth.Service) error) error {
	if err := a.cfg.RequireDatabase(); err != nil {
		return err
	}
	if needSessions && a.cfg.Redis.URL == "" {
		return oops.Code("CONFIG_INVALID").
			With("key", "redis.url").
			Errorf("redis URL is required (set REDIS_URL, %sREDIS_URL or --redis-url)", config.EnvPrefix)
	}

	creds, err := a.deps.CredentialStoreFactory(ctx, a.cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open credential store").Wrap(err)
	}
	defer creds.Close()

	hasher, err := auth.NewArgon2idHasherWithParams(a.cfg.Argon2Params())
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	metrics := auth.NewMetrics(reg)
	defer logMetrics(ctx, a.logger, reg)

	pool, err := auth.NewHashPool(hasher, a.cfg.Hash.Workers, auth.WithPoolMetrics(metrics))
	if err != nil {
		return err
	}

	opts := []auth.Option{
		auth.WithLogger(a.logger),
		auth.WithMetrics(metrics),
		auth.WithSessionTTL(a.cfg.Session.TTL),
	}
	if a.cfg.Redis.URL != "" {
		sessions, err := a.deps.SessionStoreFactory(ctx, a.cfg.Redis.URL)
		if err != nil {
			return oops.Code("REDIS_CONNECT_FAILED").With("operation", "open session store").Wrap(err)
		}
		defer func() {
			if err := sessions.Close(); err != nil {
				errutil.LogErrorContext(ctx, a.logger, "closing session store failed", err)
			}
		}()
		opts = append(opts, auth.WithSessions(sessions.Sessions))
	}

	svc, err := auth.NewService(creds.Credentials, creds.Transactor, pool, opts...)
	if err != nil {
		return err
	}
	return fn(svc)
}
