package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetJSON reads key and unmarshals it into T. A corrupt entry is reported
// as an error, not as a miss.
func GetJSON[T any](ctx context.Context, store Store, key string) (T, bool, error) {
	var zero T

	data, found, err := store.Get(ctx, key)
	if err != nil || !found {
		return zero, false, err
	}

	var result T
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return zero, false, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	return result, true, nil
}

// SetJSON marshals value and stores it under key.
func SetJSON(ctx context.Context, store Store, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal data for cache: %w", err)
	}
	return store.Set(ctx, key, string(data), ttl)
}

// TTLSelector picks the TTL for a value about to be cached.
type TTLSelector[T any] func(result T) time.Duration

// SelectNegativeCacheTTL returns a selector that caches "not found" results
// for NegativeCacheTTL and everything else for defaultTTL.
func SelectNegativeCacheTTL[T any](defaultTTL time.Duration, isNotFound func(T) bool) TTLSelector[T] {
	return func(result T) time.Duration {
		if isNotFound(result) {
			return NegativeCacheTTL
		}
		return effectiveTTL(defaultTTL)
	}
}
