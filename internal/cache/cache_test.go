package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSet(t *testing.T) {
	cache := NewMemoryCache(0) // No cleanup for this test

	cache.Set("key1", "value1", 5*time.Minute)

	val, ok := cache.Get("key1")
	require.True(t, ok, "expected to find key1")
	assert.Equal(t, "value1", val)

	_, ok = cache.Get("nonexistent")
	assert.False(t, ok, "expected not to find nonexistent key")
}

func TestMemoryCache_Expiration(t *testing.T) {
	cache := NewMemoryCache(0)

	cache.Set("shortlived", "value", 50*time.Millisecond)

	val, ok := cache.Get("shortlived")
	require.True(t, ok)
	assert.Equal(t, "value", val)

	time.Sleep(100 * time.Millisecond)

	_, ok = cache.Get("shortlived")
	assert.False(t, ok, "expected key to be expired")
}

func TestMemoryCache_Delete(t *testing.T) {
	cache := NewMemoryCache(0)

	cache.Set("key1", "value1", 5*time.Minute)

	_, ok := cache.Get("key1")
	require.True(t, ok)

	cache.Delete("key1")

	_, ok = cache.Get("key1")
	assert.False(t, ok)
}

func TestMemoryCache_Clear(t *testing.T) {
	cache := NewMemoryCache(0)

	cache.Set("key1", "value1", 5*time.Minute)
	cache.Set("key2", "value2", 5*time.Minute)
	cache.Set("key3", "value3", 5*time.Minute)

	stats := cache.Stats()
	assert.Equal(t, 3, stats.CurrentSize)

	cache.Clear()

	stats = cache.Stats()
	assert.Equal(t, 0, stats.CurrentSize)
	_, ok := cache.Get("key1")
	assert.False(t, ok)
}

func TestMemoryCache_Stats(t *testing.T) {
	cache := NewMemoryCache(0)

	cache.Set("key1", "value1", 5*time.Minute)
	cache.Set("key2", "value2", 5*time.Minute)

	cache.Get("key1")      // hit
	cache.Get("key1")      // hit
	cache.Get("missing")   // miss
	cache.Get("alsogone")  // miss

	stats := cache.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(2), stats.Sets)
	assert.Equal(t, 2, stats.CurrentSize)
}

func TestMemoryCache_JanitorEvicts(t *testing.T) {
	cache := NewMemoryCache(20 * time.Millisecond)
	defer cache.Stop()

	cache.Set("doomed", "value", 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return cache.Stats().Evictions >= 1
	}, time.Second, 10*time.Millisecond, "janitor should evict the expired entry")

	assert.Equal(t, 0, cache.Stats().CurrentSize)
}

func TestMemoryCache_StopIsIdempotent(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	cache.Stop()
	cache.Stop()
}

func TestNoOpCache(t *testing.T) {
	cache := NewNoOpCache()

	cache.Set("key", "value", time.Minute)
	_, ok := cache.Get("key")
	assert.False(t, ok, "noop cache never stores")
	assert.Equal(t, Stats{}, cache.Stats())
	cache.Stop()
}
