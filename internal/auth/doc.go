// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

// Package auth provides account registration and authentication for Todosite.
//
// # Domain Types
//
// User input enters the package through parse functions that return
// validated, canonical values:
//   - ParseUsername - trimmed, lowercased, at most 64 graphemes of [a-z0-9._-]
//   - ParsePassword - 12 to 256 graphemes, held in a redacting container
//   - ParseEmailAddress - lowercased and syntax-checked
//
// The zero values of these types are not valid inputs to any service method.
//
// # Services
//
// Service coordinates the credential store, the session store and the
// bounded hash pool:
//   - Register - create an account inside a single transaction
//   - Authenticate - verify a username and password pair
//   - Login, Logout, ValidateSession - session lifecycle
//   - ChangePassword - rotate a password hash and revoke sessions
//
// Authentication failures are indistinguishable to the caller: an unknown
// user, a malformed input and a wrong password all return
// ErrInvalidCredentials after the same amount of hashing work.
package auth
