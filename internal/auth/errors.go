// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package auth

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Input validation categories. Every specific validation error wraps exactly
// one of these, so callers can match on the category with errors.Is.
var (
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidEmail    = errors.New("invalid email address")
)

// Username validation failures.
var (
	ErrUsernameEmpty              = fmt.Errorf("%w: username cannot be empty", ErrInvalidUsername)
	ErrUsernameTooLong            = fmt.Errorf("%w: username is too long", ErrInvalidUsername)
	ErrUsernameForbiddenCharacter = fmt.Errorf("%w: username contains a forbidden character", ErrInvalidUsername)
)

// Password validation failures.
var (
	ErrPasswordEmpty    = fmt.Errorf("%w: password cannot be empty", ErrInvalidPassword)
	ErrPasswordTooShort = fmt.Errorf("%w: password is too short", ErrInvalidPassword)
	ErrPasswordTooLong  = fmt.Errorf("%w: password is too long", ErrInvalidPassword)
)

// Uniqueness conflicts reported by registration.
var (
	ErrUsernameExists = errors.New("username already exists")
	ErrEmailExists    = errors.New("email address already exists")
)

// ErrInvalidCredentials is the single failure returned by authentication.
// It never says which part of the credentials was wrong.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrSessionInvalid is returned for unknown, expired or revoked sessions.
var ErrSessionInvalid = errors.New("invalid session")
