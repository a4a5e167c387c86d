// Package kv abstracts the ephemeral store backing the health counters and
// alert dedup marks. Implementations must provide atomic increments and
// set-with-expiry so that overlapping runs of one source never corrupt each
// other's state.
package kv

import (
	"context"
	"time"
)

// Store is the ephemeral key-value contract. Counters have no TTL and are
// cleared explicitly; markers expire on their own.
type Store interface {
	// Incr atomically increments the counter at key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// GetInt returns the counter value, 0 when the key is absent.
	GetInt(ctx context.Context, key string) (int64, error)
	// Del removes the given keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error
	// SetMark stores a presence marker that expires after ttl.
	SetMark(ctx context.Context, key string, ttl time.Duration) error
	// Exists reports whether an unexpired marker or counter is present.
	Exists(ctx context.Context, key string) (bool, error)
}
