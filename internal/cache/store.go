// Package cache is the persisted key/value query cache the session
// registry reads and writes completed search snapshots through.
package cache

import (
	"context"
	"time"
)

const (
	// DefaultCacheTTL is the default time-to-live for cached entries (30 days)
	DefaultCacheTTL = 720 * time.Hour
	// NegativeCacheTTL is the TTL for empty result sets (7 days)
	NegativeCacheTTL = 168 * time.Hour
)

// Store is a key/value store with per-entry expiry.
type Store interface {
	// Get returns the stored value and whether a live entry was found.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key for ttl. A ttl <= 0 uses DefaultCacheTTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Invalidate removes every entry and returns how many were removed.
	Invalidate(ctx context.Context) (int64, error)
	// Close releases the underlying connection.
	Close() error
}

// Pruner is implemented by stores that keep expired rows until told to
// remove them.
type Pruner interface {
	ClearExpired(ctx context.Context) (int64, error)
}

func effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultCacheTTL
	}
	return ttl
}
