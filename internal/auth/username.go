// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package auth

import (
	"strings"

	"github.com/samber/oops"
)

// MaxUsernameGraphemes is the longest accepted username, in graphemes.
const MaxUsernameGraphemes = 64

// Username is a validated, canonical (trimmed, lowercase) account name.
// Construct it with ParseUsername.
type Username struct {
	value string
}

// ParseUsername normalizes and validates a raw username.
//
// The input is trimmed and lowercased first. The result must be non-empty,
// at most MaxUsernameGraphemes long and consist only of ASCII letters,
// digits, '-', '_' and '.'.
func ParseUsername(raw string) (Username, error) {
	s := normalizeUsername(raw)
	if s == "" {
		return Username{}, oops.Code("USERNAME_EMPTY").Wrap(ErrUsernameEmpty)
	}
	if n := GraphemeLen(s); n > MaxUsernameGraphemes {
		return Username{}, oops.Code("USERNAME_TOO_LONG").
			With("graphemes", n).
			With("max_graphemes", MaxUsernameGraphemes).
			Wrap(ErrUsernameTooLong)
	}
	for _, r := range s {
		if !isUsernameRune(r) {
			return Username{}, oops.Code("USERNAME_FORBIDDEN_CHARACTER").
				With("character", string(r)).
				Wrap(ErrUsernameForbiddenCharacter)
		}
	}
	return Username{value: s}, nil
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// lookupUsername normalizes raw without validating it. Stored names are
// always valid, so a malformed lookup value never matches one.
func lookupUsername(raw string) Username {
	return Username{value: normalizeUsername(raw)}
}

func isUsernameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.':
		return true
	}
	return false
}

// String returns the canonical username.
func (u Username) String() string {
	return u.value
}

// IsZero reports whether u was never successfully parsed.
func (u Username) IsZero() bool {
	return u.value == ""
}
