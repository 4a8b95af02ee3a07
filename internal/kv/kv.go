// Package kv wraps the shared low-latency key-value store used for token
// nonces, scan cooldown markers and the per-ticket distributed mutex.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrLockBusy is returned by TryLock when another holder owns the key.
var ErrLockBusy = errors.New("lock busy")

// Store is the subset of key-value operations the gate needs.  Every call
// touches exactly one key.
type Store interface {
	// SetTTL writes value under key with the given expiry.
	SetTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)
	// Consume atomically reads and deletes key.  ok is false when the key
	// was absent or expired.
	Consume(ctx context.Context, key string) (value string, ok bool, err error)
	Delete(ctx context.Context, key string) error
}

// Lock is a held exclusive lease.
type Lock interface {
	// Release gives the lease up.  Releasing a lease that already expired
	// or was taken over by another holder is a no-op.
	Release(ctx context.Context) error
}

// Locker hands out short-TTL exclusive leases keyed by name.
type Locker interface {
	// TryLock makes a single acquisition attempt and returns ErrLockBusy
	// when the key is held.  It never waits for the holder.
	TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}
