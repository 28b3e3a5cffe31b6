// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package auth

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	idEntropy   = ulid.Monotonic(rand.Reader, 0)
	idEntropyMu sync.Mutex
)

// NewID generates a new ULID with cryptographically random entropy.
// IDs generated within the same millisecond are strictly increasing.
func NewID() ulid.ULID {
	idEntropyMu.Lock()
	defer idEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), idEntropy)
}
