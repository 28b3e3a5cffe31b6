// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package auth

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"github.com/samber/oops"
)

// Password length bounds, in graphemes.
const (
	MinPasswordGraphemes = 12
	MaxPasswordGraphemes = 256
)

const redacted = "[REDACTED]"

// Password holds a validated plaintext password.
//
// Every rendering of a Password (fmt verbs, slog, JSON, text marshaling)
// produces "[REDACTED]". Expose is the only way to read the secret.
// Copies of a Password share storage, so Zero on any copy wipes all of them.
type Password struct {
	secret []byte
}

// ParsePassword validates raw and returns it as a Password.
func ParsePassword(raw string) (Password, error) {
	return newPassword([]byte(raw))
}

// ParsePasswordBytes validates raw and returns it as a Password. The
// contents of raw are copied and then zeroed, whether or not validation
// succeeds.
func ParsePasswordBytes(raw []byte) (Password, error) {
	secret := bytes.Clone(raw)
	clear(raw)
	return newPassword(secret)
}

// newPassword takes ownership of secret and wipes it on failure.
func newPassword(secret []byte) (Password, error) {
	if len(secret) == 0 {
		return Password{}, oops.Code("PASSWORD_EMPTY").Wrap(ErrPasswordEmpty)
	}
	n := graphemeCountBytes(secret, MaxPasswordGraphemes)
	if n < MinPasswordGraphemes {
		clear(secret)
		return Password{}, oops.Code("PASSWORD_TOO_SHORT").
			With("min_graphemes", MinPasswordGraphemes).
			Wrap(ErrPasswordTooShort)
	}
	if n > MaxPasswordGraphemes {
		clear(secret)
		return Password{}, oops.Code("PASSWORD_TOO_LONG").
			With("max_graphemes", MaxPasswordGraphemes).
			Wrap(ErrPasswordTooLong)
	}
	return Password{secret: secret}, nil
}

// Expose returns the secret. The slice aliases the Password's storage:
// callers must not modify or retain it.
func (p Password) Expose() []byte {
	return p.secret
}

// Zero overwrites the secret in memory. It is best-effort: copies made by
// the runtime or by callers of Expose are not reachable from here.
func (p Password) Zero() {
	clear(p.secret)
}

// IsZero reports whether p holds no secret.
func (p Password) IsZero() bool {
	return len(p.secret) == 0
}

// String implements fmt.Stringer.
func (p Password) String() string {
	return redacted
}

// GoString implements fmt.GoStringer.
func (p Password) GoString() string {
	return redacted
}

// Format implements fmt.Formatter so that every verb, including %x and %v
// with flags, is redacted.
func (p Password) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, redacted)
}

// LogValue implements slog.LogValuer.
func (p Password) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// MarshalText implements encoding.TextMarshaler.
func (p Password) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// MarshalJSON implements json.Marshaler.
func (p Password) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}
