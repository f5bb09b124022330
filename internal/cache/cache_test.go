package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemoryCache(Config{DefaultTTL: 2 * time.Second, CleanupInterval: time.Second})
	require.NoError(t, err)

	require.NoError(t, cache.Set(ctx, "key1", "value1", 0))
	val, found, err := cache.Get(ctx, "key1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value1", val)

	val, found, err = cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, val)

	require.NoError(t, cache.Set(ctx, "short", "v", 50*time.Millisecond))
	time.Sleep(100 * time.Millisecond)
	_, found, _ = cache.Get(ctx, "short")
	assert.False(t, found)

	require.NoError(t, cache.Delete(ctx, "key1"))
	_, found, _ = cache.Get(ctx, "key1")
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, "key2", "value2", 0))
	require.NoError(t, cache.Clear(ctx))
	_, found, _ = cache.Get(ctx, "key2")
	assert.False(t, found)
}

func newTestRedis(t *testing.T, prefix string) (*miniredis.Miniredis, Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache, err := NewRedisCache(Config{RedisAddr: mr.Addr(), KeyPrefix: prefix, DefaultTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { cache.(*RedisCache).Close() })
	return mr, cache
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	mr, cache := newTestRedis(t, "test")

	require.NoError(t, cache.Set(ctx, "k", "v", 0))
	assert.True(t, mr.Exists("test:k"))
	assert.Equal(t, time.Minute, mr.TTL("test:k"))

	val, found, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", val)

	_, found, err = cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, "expiring", "v", time.Second))
	mr.FastForward(2 * time.Second)
	_, found, _ = cache.Get(ctx, "expiring")
	assert.False(t, found)

	require.NoError(t, cache.Delete(ctx, "k"))
	assert.False(t, mr.Exists("test:k"))
}

func TestRedisCache_ClearKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	mr, cache := newTestRedis(t, "answers")

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, cache.Set(ctx, k, "v", 0))
	}
	require.NoError(t, mr.Set("other:key", "keep"))

	require.NoError(t, cache.Clear(ctx))
	assert.False(t, mr.Exists("answers:a"))
	assert.False(t, mr.Exists("answers:c"))
	assert.True(t, mr.Exists("other:key"))
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	_, err := NewRedisCache(Config{RedisAddr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestCacheFactory(t *testing.T) {
	c, err := NewCache(DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	c, err = NewCache(Config{Type: "unknown-type"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	mr := miniredis.RunT(t)
	c, err = NewCache(Config{Type: "redis", RedisAddr: mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, c)
}

func TestGenerateCacheKey(t *testing.T) {
	assert.Equal(t, "prefix", GenerateCacheKey("prefix"))
	assert.Equal(t, "prefix:part1", GenerateCacheKey("prefix", "part1"))
	assert.Equal(t, "prefix:part1:part2:part3", GenerateCacheKey("prefix", "part1", "part2", "part3"))
}

func TestHashKey(t *testing.T) {
	assert.Equal(t, HashKey("what is the price?"), HashKey("  what is the price?\n"))
	assert.NotEqual(t, HashKey("a"), HashKey("b"))
	assert.Len(t, HashKey("anything"), 32)
}
