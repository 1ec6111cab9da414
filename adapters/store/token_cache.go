package store

import (
	"strings"
	"sync"
	"time"

	"github.com/layer-3/evmauth/core"
)

// hitWeight is how much one cache hit postpones eviction
const hitWeight = 60 * time.Second

type cacheEntry struct {
	value     bool
	timestamp time.Time
	hits      int64
}

// TokenCache holds ownership results keyed by wallet and token id. Entries
// expire after the configured TTL; when full, the entry with the lowest
// timestamp + hits*60s score is evicted before a new key is inserted
type TokenCache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	ttl      time.Duration
	maxSize  int
	disabled bool
	now      func() time.Time
}

// CacheOption configures a TokenCache
type CacheOption func(*TokenCache)

// WithClock replaces the time source
func WithClock(now func() time.Time) CacheOption {
	return func(c *TokenCache) {
		c.now = now
	}
}

// NewTokenCache creates a cache from cfg. Zero values fall back to the defaults
func NewTokenCache(cfg core.CacheConfig, opts ...CacheOption) *TokenCache {
	c := &TokenCache{
		entries:  make(map[string]*cacheEntry),
		ttl:      cfg.TTL,
		maxSize:  cfg.MaxSize,
		disabled: cfg.Disabled,
		now:      time.Now,
	}
	if c.ttl <= 0 {
		c.ttl = core.DefaultCacheTTL
	}
	if c.maxSize <= 0 {
		c.maxSize = core.DefaultCacheMaxSize
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value and whether it was present. Expired entries are
// removed and reported absent
func (c *TokenCache) Get(key string) (bool, bool) {
	if c.disabled {
		return false, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return false, false
	}
	if c.now().Sub(entry.timestamp) > c.ttl {
		delete(c.entries, key)
		return false, false
	}
	entry.hits++
	return entry.value, true
}

// Set stores value under key. It is a no-op when caching is disabled
func (c *TokenCache) Set(key string, value bool) {
	if c.disabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOne()
	}
	c.entries[key] = &cacheEntry{
		value:     value,
		timestamp: c.now(),
	}
}

// evictOne removes the single entry with the lowest score. Callers hold mu
func (c *TokenCache) evictOne() {
	var victim string
	var lowest int64
	found := false
	for key, entry := range c.entries {
		score := entry.timestamp.UnixMilli() + entry.hits*hitWeight.Milliseconds()
		if !found || score < lowest || (score == lowest && key < victim) {
			victim, lowest, found = key, score, true
		}
	}
	if found {
		delete(c.entries, victim)
	}
}

// DeletePrefix removes every key starting with prefix and returns how many
// were removed
func (c *TokenCache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired ones included
func (c *TokenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes all entries
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}
