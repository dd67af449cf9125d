// Package lock provides short-lived, best-effort mutual exclusion keyed by
// string. Leases expire on their own so a crashed holder never wedges a key.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ErrHeld is returned by TryAcquire when another holder owns the key.
var ErrHeld = errors.New("lock held")

type Lease interface {
	Key() string
	// Release frees the key if this lease still owns it. Safe to call twice.
	Release(ctx context.Context) error
}

type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

func newToken() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return time.Now().UTC().Format(time.RFC3339Nano)
	}
	return hex.EncodeToString(b[:])
}
