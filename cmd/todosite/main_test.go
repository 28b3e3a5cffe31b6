// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todosite/todosite/pkg/errutil"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"migrate", "user"} {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
	for _, flag := range []string{"--config", "--database-url", "--redis-url", "--log-format", "--log-level"} {
		assert.Contains(t, output, flag, "Help missing %q flag", flag)
	}
}

func TestUserCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"user", "--help"})

	require.NoError(t, cmd.Execute())

	for _, sub := range []string{"register", "verify", "login", "logout", "passwd", "revoke-sessions"} {
		assert.Contains(t, buf.String(), sub)
	}
}

func TestRootCommand_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "test-version"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "test-version")
}

func TestRootCommand_NoArgs(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRootCommand_ConfigFile(t *testing.T) {
	env := newTestEnv(t)
	var gotURL string
	env.deps.MigratorFactory = func(url string, _ *slog.Logger) (Migrator, error) {
		gotURL = url
		return env.migrator, nil
	}
	path := writeConfig(t, "database:\n  url: postgres://file@localhost/todosite\nlog:\n  level: error\n")

	res := env.run(t, "", "migrate", "version", "--config", path)

	require.NoError(t, res.err)
	assert.Equal(t, "postgres://file@localhost/todosite", gotURL)
}

func TestRootCommand_Precedence(t *testing.T) {
	env := newTestEnv(t)
	var gotURL string
	env.deps.MigratorFactory = func(url string, _ *slog.Logger) (Migrator, error) {
		gotURL = url
		return env.migrator, nil
	}
	path := writeConfig(t, "database:\n  url: postgres://file@localhost/todosite\n")
	t.Setenv("TODOSITE_DATABASE_URL", "postgres://env@localhost/todosite")

	res := env.run(t, "", "migrate", "version", "--config", path)
	require.NoError(t, res.err)
	assert.Equal(t, "postgres://env@localhost/todosite", gotURL, "environment beats file")

	res = env.run(t, "", "migrate", "version", "--config", path, "--database-url", "postgres://flag@localhost/todosite")
	require.NoError(t, res.err)
	assert.Equal(t, "postgres://flag@localhost/todosite", gotURL, "flag beats environment")
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantKey string
	}{
		{name: "log format", args: []string{"--log-format=xml"}, wantKey: "log.format"},
		{name: "log level", args: []string{"--log-level=loud"}, wantKey: "log.level"},
		{name: "session ttl", args: []string{"--session-ttl=0s"}, wantKey: "session.ttl"},
		{name: "argon2 threads", args: []string{"--argon2-threads=0"}, wantKey: "argon2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			res := env.run(t, "", append([]string{"migrate", "version"}, tt.args...)...)

			require.Error(t, res.err)
			errutil.AssertErrorContext(t, res.err, "key", tt.wantKey)
			assert.Empty(t, env.migrator.calls)
		})
	}
}

func TestRootCommand_MissingConfigFile(t *testing.T) {
	env := newTestEnv(t)

	res := env.run(t, "", "migrate", "version", "--config", filepath.Join(t.TempDir(), "missing.yaml"))

	require.Error(t, res.err)
	errutil.AssertErrorCode(t, res.err, "CONFIG_LOAD_FAILED")
}
