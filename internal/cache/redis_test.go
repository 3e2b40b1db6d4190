package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

func TestRedisStore_SetGet(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	require.NoError(t, store.Set(ctx, "library:book:isbn=9784", `{"uuid":"u1"}`, time.Hour))

	data, found, err := store.Get(ctx, "library:book:isbn=9784")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"uuid":"u1"}`, data)

	assert.True(t, mr.Exists("libsearch:library:book:isbn=9784"))
	assert.Equal(t, time.Hour, mr.TTL("libsearch:library:book:isbn=9784"))
}

func TestRedisStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStore_DefaultTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	require.NoError(t, store.Set(ctx, "k", "v", 0))
	assert.Equal(t, DefaultCacheTTL, mr.TTL("libsearch:k"))
}

func TestRedisStore_InvalidateOnlyTouchesPrefix(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	require.NoError(t, mr.Set("other:key", "keep"))
	require.NoError(t, store.Set(ctx, "a", "1", time.Hour))
	require.NoError(t, store.Set(ctx, "b", "2", time.Hour))

	removed, err := store.Invalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	require.NoError(t, store.Set(ctx, "k", "v", time.Hour))
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "k"))

	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNewRedisStore_ConnectionFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisStore(context.Background(), RedisConfig{Addr: addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}
