package repositories

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by EphemeralStore.Get when a key is absent or
// has expired.
var ErrKeyNotFound = errors.New("key not found")

// EphemeralStore abstracts a fast TTL key-value store used for short-lived
// per-connection session state. Every write carries a TTL so abandoned state
// self-expires without an explicit cleanup call.
type EphemeralStore interface {
	// Set stores value under key, replacing any previous value and TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// RightPush appends value to the list at key and refreshes its TTL.
	RightPush(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// ListRange returns every element of the list at key, oldest first.
	// An absent key yields an empty slice.
	ListRange(ctx context.Context, key string) ([][]byte, error)
	// Keys returns all keys matching the glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Expire refreshes the TTL of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
