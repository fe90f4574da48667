// Package kv defines the shared key-value tier used by the response cache's
// second level. Only single-key operations are exposed; nothing in the
// pipeline requires multi-key transactions on this tier.
//
// Implementations must be safe for concurrent use.
package kv

import (
	"context"
	"time"
)

// Store is a minimal TTL-aware key-value store.
type Store interface {
	// Get returns the value for key. The second return is false when the
	// key is absent or expired; that case is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key. A ttl of 0 means no expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
