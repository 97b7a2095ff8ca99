package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rxscout/backend/internal/domain"
	"go.uber.org/zap"
)

const (
	shardCount = 16

	// DefaultTTL applies when Set is called with a non-positive ttl.
	DefaultTTL = time.Hour
)

// cacheItem represents a single item in the cache with expiration
type cacheItem struct {
	Value     interface{}
	CreatedAt time.Time
	TTL       time.Duration
}

func (i cacheItem) expired(now time.Time) bool {
	return now.After(i.CreatedAt.Add(i.TTL))
}

type shard struct {
	mu   sync.RWMutex
	data map[string]cacheItem
}

// Stats reports cache activity since construction.
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// Option configures a MemoryCache.
type Option func(*MemoryCache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *MemoryCache) {
		c.now = now
	}
}

// WithDefaultTTL sets the ttl used when Set receives a non-positive one.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *MemoryCache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// MemoryCache is a sharded in-memory cache with a TTL per entry. Expired
// entries are dropped lazily by Get and in bulk by Sweep, which the janitor
// runs on a fixed interval.
type MemoryCache struct {
	shards     [shardCount]*shard
	now        func() time.Time
	defaultTTL time.Duration

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(opts ...Option) *MemoryCache {
	c := &MemoryCache{
		now:        time.Now,
		defaultTTL: DefaultTTL,
	}
	for i := range c.shards {
		c.shards[i] = &shard{data: make(map[string]cacheItem)}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%shardCount]
}

// Get retrieves a value from the cache. An expired entry counts as a miss and
// is removed on the way out.
func (c *MemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	s := c.shardFor(key)
	now := c.now()

	s.mu.RLock()
	item, exists := s.data[key]
	s.mu.RUnlock()

	if !exists {
		c.misses.Add(1)
		return nil, domain.ErrCacheMiss
	}

	if item.expired(now) {
		s.mu.Lock()
		// Re-check: a concurrent Set may have refreshed the entry.
		if current, ok := s.data[key]; ok && current.expired(now) {
			delete(s.data, key)
			c.evictions.Add(1)
		}
		s.mu.Unlock()
		c.misses.Add(1)
		return nil, domain.ErrCacheMiss
	}

	c.hits.Add(1)
	return item.Value, nil
}

// Set stores a value in the cache with TTL
func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	s := c.shardFor(key)

	s.mu.Lock()
	s.data[key] = cacheItem{
		Value:     value,
		CreatedAt: c.now(),
		TTL:       ttl,
	}
	s.mu.Unlock()

	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	s := c.shardFor(key)
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Exists checks if a key exists in the cache and is not expired
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	s := c.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.data[key]
	if !exists {
		return false, nil
	}
	return !item.expired(c.now()), nil
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *MemoryCache) Sweep() int {
	now := c.now()
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for key, item := range s.data {
			if item.expired(now) {
				delete(s.data, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	if removed > 0 {
		c.evictions.Add(int64(removed))
		zap.L().Debug("cache sweep", zap.Int("removed", removed), zap.Int("remaining", c.Size()))
	}
	return removed
}

// Size returns the current number of items in the cache, expired or not
func (c *MemoryCache) Size() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.data)
		s.mu.RUnlock()
	}
	return n
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.data = make(map[string]cacheItem)
		s.mu.Unlock()
	}
}

// Stats returns hit/miss/eviction counters.
func (c *MemoryCache) Stats() Stats {
	return Stats{
		Entries:   c.Size(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
