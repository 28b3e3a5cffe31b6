// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

// Package mocks provides testify mocks for the auth package ports.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/todosite/todosite/internal/auth"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockCredentialRepository is a mock auth.CredentialRepository.
type MockCredentialRepository struct {
	mock.Mock
}

var _ auth.CredentialRepository = (*MockCredentialRepository)(nil)

// NewMockCredentialRepository creates a mock that asserts its expectations
// when the test ends.
func NewMockCredentialRepository(t testingT) *MockCredentialRepository {
	m := &MockCredentialRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// FindByUsername implements auth.CredentialRepository.
func (m *MockCredentialRepository) FindByUsername(ctx context.Context, username auth.Username) (*auth.StoredCredential, error) {
	args := m.Called(ctx, username)
	cred, _ := args.Get(0).(*auth.StoredCredential)
	return cred, args.Error(1)
}

// FindByID implements auth.CredentialRepository.
func (m *MockCredentialRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.StoredCredential, error) {
	args := m.Called(ctx, id)
	cred, _ := args.Get(0).(*auth.StoredCredential)
	return cred, args.Error(1)
}

// UsernameExists implements auth.CredentialRepository.
func (m *MockCredentialRepository) UsernameExists(ctx context.Context, username auth.Username) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

// EmailExists implements auth.CredentialRepository.
func (m *MockCredentialRepository) EmailExists(ctx context.Context, email auth.EmailAddress) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

// Create implements auth.CredentialRepository.
func (m *MockCredentialRepository) Create(ctx context.Context, cred *auth.StoredCredential) error {
	args := m.Called(ctx, cred)
	return args.Error(0)
}

// UpdatePasswordHash implements auth.CredentialRepository.
func (m *MockCredentialRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	args := m.Called(ctx, id, hash)
	return args.Error(0)
}

// MockSessionRepository is a mock auth.SessionRepository.
type MockSessionRepository struct {
	mock.Mock
}

var _ auth.SessionRepository = (*MockSessionRepository)(nil)

// NewMockSessionRepository creates a mock that asserts its expectations
// when the test ends.
func NewMockSessionRepository(t testingT) *MockSessionRepository {
	m := &MockSessionRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create implements auth.SessionRepository.
func (m *MockSessionRepository) Create(ctx context.Context, session *auth.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

// GetByTokenHash implements auth.SessionRepository.
func (m *MockSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	args := m.Called(ctx, tokenHash)
	session, _ := args.Get(0).(*auth.Session)
	return session, args.Error(1)
}

// UpdateLastSeen implements auth.SessionRepository.
func (m *MockSessionRepository) UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error {
	args := m.Called(ctx, id, lastSeen)
	return args.Error(0)
}

// Delete implements auth.SessionRepository.
func (m *MockSessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// DeleteByUser implements auth.SessionRepository.
func (m *MockSessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockPasswordHasher is a mock auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

var _ auth.PasswordHasher = (*MockPasswordHasher)(nil)

// NewMockPasswordHasher creates a mock that asserts its expectations when
// the test ends.
func NewMockPasswordHasher(t testingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash implements auth.PasswordHasher.
func (m *MockPasswordHasher) Hash(password []byte) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

// Verify implements auth.PasswordHasher.
func (m *MockPasswordHasher) Verify(password []byte, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

// NeedsUpgrade implements auth.PasswordHasher.
func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	args := m.Called(hash)
	return args.Bool(0)
}

// Transactor runs fn directly, recording each call. Set Err to make
// InTransaction fail after fn succeeds, as a failed commit would.
type Transactor struct {
	Calls int
	Err   error
}

var _ auth.Transactor = (*Transactor)(nil)

// InTransaction implements auth.Transactor.
func (tx *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx.Calls++
	if err := fn(ctx); err != nil {
		return err
	}
	return tx.Err
}
