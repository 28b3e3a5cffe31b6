// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/require"

	"github.com/todosite/todosite/internal/auth"
	"github.com/todosite/todosite/internal/auth/mocks"
)

const testPassword = "correct horse battery"

// cheapFlags keep argon2id fast and logs quiet.
var cheapFlags = []string{
	"--database-url=postgres://test@localhost/todosite",
	"--argon2-memory=64",
	"--argon2-threads=1",
	"--log-level=error",
}

// memCredentials is an in-memory auth.CredentialRepository.
type memCredentials struct {
	mu    sync.Mutex
	byID  map[ulid.ULID]auth.StoredCredential
	err   error
	calls int
}

var _ auth.CredentialRepository = (*memCredentials)(nil)

func newMemCredentials() *memCredentials {
	return &memCredentials{byID: make(map[ulid.ULID]auth.StoredCredential)}
}

func (m *memCredentials) FindByUsername(_ context.Context, username auth.Username) (*auth.StoredCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	for _, c := range m.byID {
		if c.Username == username {
			return &c, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memCredentials) FindByID(_ context.Context, id ulid.ULID) (*auth.StoredCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &c, nil
}

func (m *memCredentials) UsernameExists(_ context.Context, username auth.Username) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	for _, c := range m.byID {
		if c.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *memCredentials) EmailExists(_ context.Context, email auth.EmailAddress) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	for _, c := range m.byID {
		if c.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memCredentials) Create(_ context.Context, cred *auth.StoredCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.byID[cred.ID] = *cred
	return nil
}

func (m *memCredentials) UpdatePasswordHash(_ context.Context, id ulid.ULID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	c, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	c.PasswordHash = hash
	m.byID[id] = c
	return nil
}

// testEnv wires the CLI to in-memory stores.
type testEnv struct {
	creds    *memCredentials
	tx       *mocks.Transactor
	redis    *miniredis.Miniredis
	migrator *fakeMigrator
	prompts  []string
	answers  []string

	credsClosed int
	deps        *Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	// Keep the developer's config and environment out of the tests.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, name := range []string{"DATABASE_URL", "REDIS_URL", "TODOSITE_DATABASE_URL", "TODOSITE_REDIS_URL"} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}

	env := &testEnv{
		creds:    newMemCredentials(),
		tx:       &mocks.Transactor{},
		redis:    miniredis.RunT(t),
		migrator: &fakeMigrator{},
	}
	env.deps = &Deps{
		CredentialStoreFactory: func(_ context.Context, _ string) (*CredentialStore, error) {
			return &CredentialStore{
				Credentials: env.creds,
				Transactor:  env.tx,
				Close:       func() { env.credsClosed++ },
			}, nil
		},
		MigratorFactory: func(_ string, _ *slog.Logger) (Migrator, error) {
			return env.migrator, nil
		},
		PasswordReader: func(prompt string) ([]byte, error) {
			env.prompts = append(env.prompts, prompt)
			if len(env.answers) == 0 {
				return nil, oops.Code("PASSWORD_PROMPT_FAILED").Errorf("no more answers")
			}
			answer := env.answers[0]
			env.answers = env.answers[1:]
			return []byte(answer), nil
		},
	}
	return env
}

func (e *testEnv) redisURL() string {
	return "--redis-url=redis://" + e.redis.Addr() + "/0"
}

type result struct {
	stdout string
	stderr string
	err    error
}

// run executes the CLI with args and stdin.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	cmd := newRootCmd(e.deps)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

// with appends the cheap flags to args.
func with(args ...string) []string {
	return append(args, cheapFlags...)
}
