package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore implements Store in process memory. Entries vanish with the
// process; useful for tests and for running without a writable disk.
type MemoryStore struct {
	cache *gocache.Cache
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory store which purges expired items
// every 10 minutes.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: gocache.New(DefaultCacheTTL, 10*time.Minute)}
}

// Get implements Store.Get
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	if x, found := s.cache.Get(key); found {
		return x.(string), true, nil
	}
	return "", false, nil
}

// Set implements Store.Set
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.cache.Set(key, value, effectiveTTL(ttl))
	return nil
}

// Delete implements Store.Delete
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// Invalidate implements Store.Invalidate
func (s *MemoryStore) Invalidate(_ context.Context) (int64, error) {
	n := int64(s.cache.ItemCount())
	s.cache.Flush()
	return n, nil
}

// Close implements Store.Close
func (s *MemoryStore) Close() error {
	return nil
}
