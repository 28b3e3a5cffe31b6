// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package auth

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

// emailValidator is safe for concurrent use and caches its rule set.
var emailValidator = validator.New()

// EmailAddress is a validated, lowercased email address.
// Construct it with ParseEmailAddress.
type EmailAddress struct {
	value string
}

// ParseEmailAddress lowercases raw and checks it against the standard
// address syntax. No DNS or deliverability checks are made.
func ParseEmailAddress(raw string) (EmailAddress, error) {
	s := strings.ToLower(raw)
	if err := emailValidator.Var(s, "required,email"); err != nil {
		return EmailAddress{}, oops.Code("EMAIL_INVALID").Wrap(ErrInvalidEmail)
	}
	return EmailAddress{value: s}, nil
}

// String returns the canonical address.
func (e EmailAddress) String() string {
	return e.value
}

// IsZero reports whether e was never successfully parsed.
func (e EmailAddress) IsZero() bool {
	return e.value == ""
}
