// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Time    uint32 // iterations
	Memory  uint32 // KiB
	Threads uint8  // parallelism
	SaltLen uint32 // salt length in bytes
	KeyLen  uint32 // output length in bytes
}

// DefaultArgon2Params returns OWASP-recommended argon2id parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    1,
		Memory:  64 * 1024, // 64 MB
		Threads: 4,
		SaltLen: 16,
		KeyLen:  32,
	}
}

// Validate checks that the parameters are usable.
func (p Argon2Params) Validate() error {
	switch {
	case p.Time == 0:
		return oops.Code("AUTH_INVALID_PARAMS").Errorf("argon2 time must be positive")
	case p.Memory < 8*uint32(p.Threads):
		return oops.Code("AUTH_INVALID_PARAMS").Errorf("argon2 memory must be at least 8 KiB per thread")
	case p.Threads == 0:
		return oops.Code("AUTH_INVALID_PARAMS").Errorf("argon2 threads must be positive")
	case p.SaltLen < 8:
		return oops.Code("AUTH_INVALID_PARAMS").Errorf("argon2 salt length must be at least 8 bytes")
	case p.KeyLen < 16:
		return oops.Code("AUTH_INVALID_PARAMS").Errorf("argon2 key length must be at least 16 bytes")
	}
	return nil
}

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a self-describing hash of the password with a fresh salt.
	Hash(password []byte) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password []byte, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash was produced with a different
	// algorithm or different parameters than the hasher currently uses.
	NeedsUpgrade(hash string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates an Argon2idHasher with DefaultArgon2Params.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultArgon2Params()}
}

// NewArgon2idHasherWithParams creates an Argon2idHasher with custom parameters.
func NewArgon2idHasherWithParams(params Argon2Params) (*Argon2idHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Argon2idHasher{params: params}, nil
}

// Params returns the parameters used for new hashes.
func (h *Argon2idHasher) Params() Argon2Params {
	return h.params
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password []byte) (string, error) {
	if len(password) == 0 {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	return h.HashWithSalt(password, salt), nil
}

// HashWithSalt produces an argon2id hash using the given salt.
// It exists for deterministic tests; production callers use Hash.
func (h *Argon2idHasher) HashWithSalt(password, salt []byte) string {
	key := argon2.IDKey(password, salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

// Verify checks if the password matches the hash.
func (h *Argon2idHasher) Verify(password []byte, encodedHash string) (bool, error) {
	decoded, err := decodeArgon2id(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(password, decoded.salt, decoded.params.Time, decoded.params.Memory,
		decoded.params.Threads, decoded.params.KeyLen)

	return subtle.ConstantTimeCompare(computed, decoded.key) == 1, nil
}

// NeedsUpgrade reports whether hash should be recomputed with the current
// parameters. Unparseable hashes and other algorithms always need upgrading.
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	decoded, err := decodeArgon2id(hash)
	if err != nil {
		return true
	}
	if decoded.version != argon2.Version {
		return true
	}
	p := decoded.params
	return p.Time != h.params.Time ||
		p.Memory != h.params.Memory ||
		p.Threads != h.params.Threads ||
		p.KeyLen != h.params.KeyLen ||
		uint32(len(decoded.salt)) != h.params.SaltLen
}

type decodedHash struct {
	version int
	params  Argon2Params
	salt    []byte
	key     []byte
}

// decodeArgon2id parses a PHC-format argon2id string.
func decodeArgon2id(encoded string) (*decodedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var d decodedHash
	if _, err := fmt.Sscanf(parts[2], "v=%d", &d.version); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	// Validate threads fits in uint8 to prevent silent truncation
	if threads == 0 || threads > 255 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}

	var err error
	d.salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	d.key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	// Validate key length to prevent integer overflow in uint32 conversion
	keyLen := len(d.key)
	if keyLen <= 0 || keyLen > 1<<30 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	d.params = Argon2Params{
		Time:    time,
		Memory:  memory,
		Threads: uint8(threads),
		SaltLen: uint32(len(d.salt)),
		KeyLen:  uint32(keyLen),
	}
	return &d, nil
}
