// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/codes"
)

// RegisterErrorKind classifies a registration failure for callers that need
// to pick a response: bad input, conflict, or server error.
type RegisterErrorKind int

// Registration failure kinds.
const (
	RegisterErrorNone RegisterErrorKind = iota
	RegisterInvalidEmail
	RegisterInvalidUsername
	RegisterInvalidPassword
	RegisterUsernameExists
	RegisterEmailExists
	RegisterUnexpected
)

// String returns a stable, lowercase name for the kind.
func (k RegisterErrorKind) String() string {
	switch k {
	case RegisterErrorNone:
		return "none"
	case RegisterInvalidEmail:
		return "invalid_email"
	case RegisterInvalidUsername:
		return "invalid_username"
	case RegisterInvalidPassword:
		return "invalid_password"
	case RegisterUsernameExists:
		return "username_exists"
	case RegisterEmailExists:
		return "email_exists"
	default:
		return "unexpected"
	}
}

// IsInputError reports whether the caller supplied malformed input.
func (k RegisterErrorKind) IsInputError() bool {
	return k == RegisterInvalidEmail || k == RegisterInvalidUsername || k == RegisterInvalidPassword
}

// IsConflict reports whether the username or email is already taken.
func (k RegisterErrorKind) IsConflict() bool {
	return k == RegisterUsernameExists || k == RegisterEmailExists
}

// RegisterErrorKindOf classifies an error returned by Register.
func RegisterErrorKindOf(err error) RegisterErrorKind {
	switch {
	case err == nil:
		return RegisterErrorNone
	case errors.Is(err, ErrInvalidEmail):
		return RegisterInvalidEmail
	case errors.Is(err, ErrInvalidUsername):
		return RegisterInvalidUsername
	case errors.Is(err, ErrInvalidPassword):
		return RegisterInvalidPassword
	case errors.Is(err, ErrUsernameExists):
		return RegisterUsernameExists
	case errors.Is(err, ErrEmailExists):
		return RegisterEmailExists
	default:
		return RegisterUnexpected
	}
}

// Register creates a new account.
//
// Inputs are validated in the order email, username, password and the first
// failure is returned. Uniqueness checks, ID generation, hashing and both
// inserts happen in one transaction; on any failure nothing is stored.
func (s *Service) Register(ctx context.Context, rawEmail, rawUsername, rawPassword string) (Identity, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Register")
	defer span.End()

	identity, err := s.register(ctx, rawEmail, rawUsername, rawPassword)
	kind := RegisterErrorKindOf(err)
	switch {
	case err == nil:
		s.metrics.recordRegistration(resultSuccess)
		s.logger.InfoContext(ctx, "user registered",
			"user_id", identity.ID.String(),
			"username", identity.Username.String())
	case kind == RegisterUnexpected:
		span.SetStatus(codes.Error, "registration failed")
		s.metrics.recordRegistration(resultError)
	default:
		s.metrics.recordRegistration(resultInvalid)
	}
	return identity, err
}

func (s *Service) register(ctx context.Context, rawEmail, rawUsername, rawPassword string) (Identity, error) {
	email, err := ParseEmailAddress(rawEmail)
	if err != nil {
		return Identity{}, err
	}
	username, err := ParseUsername(rawUsername)
	if err != nil {
		return Identity{}, err
	}
	password, err := ParsePassword(rawPassword)
	if err != nil {
		return Identity{}, err
	}
	defer password.Zero()

	var identity Identity
	err = s.transactor.InTransaction(ctx, func(ctx context.Context) error {
		exists, err := s.credentials.UsernameExists(ctx, username)
		if err != nil {
			return registerFailed("check username", err)
		}
		if exists {
			return oops.Code("REGISTER_USERNAME_EXISTS").
				With("username", username.String()).
				Wrap(ErrUsernameExists)
		}

		exists, err = s.credentials.EmailExists(ctx, email)
		if err != nil {
			return registerFailed("check email", err)
		}
		if exists {
			return oops.Code("REGISTER_EMAIL_EXISTS").Wrap(ErrEmailExists)
		}

		id := s.newID()
		hash, err := s.pool.Hash(ctx, password.Expose())
		if err != nil {
			return registerFailed("hash password", err)
		}

		cred, err := NewStoredCredential(id, username, email, hash, s.now())
		if err != nil {
			return registerFailed("build credential", err)
		}

		if err := s.credentials.Create(ctx, cred); err != nil {
			if errors.Is(err, ErrUsernameExists) || errors.Is(err, ErrEmailExists) {
				return err
			}
			return registerFailed("create credential", err)
		}

		identity = cred.Identity()
		return nil
	})
	if err != nil {
		if RegisterErrorKindOf(err) == RegisterUnexpected {
			return Identity{}, s.unexpected(ctx, "REGISTER_FAILED", "register", err)
		}
		return Identity{}, err
	}
	return identity, nil
}

func registerFailed(operation string, err error) error {
	return oops.Code("REGISTER_FAILED").With("operation", operation).Wrap(err)
}
