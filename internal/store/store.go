// Package store provides keyed, versioned state for the attempt tracker and
// rate limiter. Every update is a compare-and-swap on a single key, so
// read-modify-write cycles on one key serialize while different keys never
// contend with each other.
package store

import (
	"context"
	"time"
)

// Entry is a versioned value. Version 0 means the key is absent or expired.
type Entry struct {
	Value   []byte
	Version uint64
}

// Found reports whether the entry holds a live value
func (e Entry) Found() bool {
	return e.Version != 0
}

// KeyedStore is the storage backend contract for per-key mutable state
type KeyedStore interface {
	// Get returns the live entry for key, or a zero Entry when absent.
	Get(ctx context.Context, key string) (Entry, error)

	// CompareAndSwap writes value if the key's current version equals
	// expected (0 for absent). It returns false when another writer got
	// there first. ttl <= 0 keeps the entry until deleted.
	CompareAndSwap(ctx context.Context, key string, expected uint64, value []byte, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Sweeper is implemented by backends that need periodic reclamation of
// expired entries. Backends with native expiry do not implement it.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}
