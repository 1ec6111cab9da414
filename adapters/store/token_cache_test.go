package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/layer-3/evmauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTokenCacheGetSet(t *testing.T) {
	c := NewTokenCache(core.CacheConfig{TTL: time.Minute, MaxSize: 10})

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", true)
	c.Set("b", false)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.True(t, v)

	v, ok = c.Get("b")
	require.True(t, ok)
	assert.False(t, v)
}

func TestTokenCacheExpiry(t *testing.T) {
	clock := newFakeClock()
	c := NewTokenCache(core.CacheConfig{TTL: time.Minute, MaxSize: 10}, WithClock(clock.Now))

	c.Set("a", true)
	clock.Advance(time.Minute)
	_, ok := c.Get("a")
	assert.True(t, ok, "an entry exactly ttl old is still fresh")

	clock.Advance(time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry is removed on read")
}

func TestTokenCacheDisabled(t *testing.T) {
	c := NewTokenCache(core.CacheConfig{Disabled: true})
	c.Set("a", true)
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTokenCacheEvictsLowestScore(t *testing.T) {
	clock := newFakeClock()
	c := NewTokenCache(core.CacheConfig{TTL: time.Hour, MaxSize: 3}, WithClock(clock.Now))

	c.Set("oldest", true)
	clock.Advance(time.Second)
	c.Set("middle", true)
	clock.Advance(time.Second)
	c.Set("newest", true)

	// one hit on the oldest pushes its score 60s ahead of the others
	_, _ = c.Get("oldest")

	clock.Advance(time.Second)
	c.Set("extra", true)

	assert.Equal(t, 3, c.Len())
	_, ok := c.Get("middle")
	assert.False(t, ok, "middle had the lowest timestamp+hits score")
	for _, key := range []string{"oldest", "newest", "extra"} {
		_, ok := c.Get(key)
		assert.True(t, ok, key)
	}
}

func TestTokenCacheNeverExceedsMaxSize(t *testing.T) {
	clock := newFakeClock()
	c := NewTokenCache(core.CacheConfig{TTL: time.Hour, MaxSize: 5}, WithClock(clock.Now))

	for i := 0; i < 6; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i%2 == 0)
		clock.Advance(time.Millisecond)
		assert.LessOrEqual(t, c.Len(), 5)
	}
	_, ok := c.Get("key-0")
	assert.False(t, ok, "the first inserted key is the only one evicted")
	for i := 1; i < 6; i++ {
		_, ok := c.Get(fmt.Sprintf("key-%d", i))
		assert.True(t, ok)
	}
}

func TestTokenCacheOverwriteAtCapacity(t *testing.T) {
	c := NewTokenCache(core.CacheConfig{TTL: time.Hour, MaxSize: 2})
	c.Set("a", false)
	c.Set("b", false)
	c.Set("a", true)

	assert.Equal(t, 2, c.Len())
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.True(t, v)
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestTokenCacheDeletePrefix(t *testing.T) {
	c := NewTokenCache(core.CacheConfig{})
	c.Set("0xaa-1", true)
	c.Set("0xaa-3", false)
	c.Set("0xbb-1", true)

	assert.Equal(t, 2, c.DeletePrefix("0xaa-"))
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestTokenCacheConcurrentAccess(t *testing.T) {
	c := NewTokenCache(core.CacheConfig{TTL: time.Hour, MaxSize: 50})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k-%d-%d", g, i)
				c.Set(key, true)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}
