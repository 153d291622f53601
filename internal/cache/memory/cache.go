package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shortkit/redirector/internal/cache"
	"github.com/shortkit/redirector/internal/domain"
)

type item struct {
	entry     domain.CacheEntry
	expiresAt time.Time
}

// Cache implements cache.Cache using in-memory storage. It backs tests and
// single-process deployments that run without a Redis backend.
type Cache struct {
	data     map[string]item
	visitors map[string]time.Time
	mutex    sync.RWMutex
	hits     atomic.Int64
	misses   atomic.Int64
	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a new in-memory cache. A janitor goroutine evicts expired
// entries so Size does not drift upward between reads.
func New() *Cache {
	c := &Cache{
		data:     make(map[string]item),
		visitors: make(map[string]time.Time),
		stopChan: make(chan struct{}),
	}
	go c.janitor(time.Minute)
	return c
}

// Get retrieves a cache entry by short code
func (c *Cache) Get(ctx context.Context, shortCode string) (*domain.CacheEntry, bool) {
	c.mutex.RLock()
	it, exists := c.data[shortCode]
	c.mutex.RUnlock()

	if !exists || time.Now().After(it.expiresAt) {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)

	// Return a copy to prevent external modification
	entry := it.entry
	return &entry, true
}

// Put upserts an entry derived from the record
func (c *Cache) Put(ctx context.Context, record *domain.URLRecord, ttl time.Duration) error {
	entry := domain.NewCacheEntry(record, time.Now())

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[record.ShortCode] = item{
		entry:     *entry,
		expiresAt: time.Now().Add(ttl),
	}

	return nil
}

// Invalidate removes an entry
func (c *Cache) Invalidate(ctx context.Context, shortCode string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, shortCode)
	return nil
}

// PreWarm bulk-loads entries for the given records
func (c *Cache) PreWarm(ctx context.Context, records []*domain.URLRecord, ttl time.Duration) error {
	now := time.Now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	for _, record := range records {
		c.data[record.ShortCode] = item{
			entry:     *domain.NewCacheEntry(record, now),
			expiresAt: now.Add(ttl),
		}
	}

	return nil
}

// FirstSeen records a visitor marker and reports whether the visitor is new
func (c *Cache) FirstSeen(ctx context.Context, shortCode, visitor string, ttl time.Duration) (bool, error) {
	key := shortCode + ":" + visitor
	now := time.Now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if until, exists := c.visitors[key]; exists && now.Before(until) {
		return false, nil
	}
	c.visitors[key] = now.Add(ttl)
	return true, nil
}

// Stats returns accumulated counters and the current entry count
func (c *Cache) Stats(ctx context.Context) (cache.Stats, error) {
	c.mutex.RLock()
	size := int64(len(c.data))
	c.mutex.RUnlock()

	return cache.Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   size,
	}, nil
}

// Ping always succeeds for the in-memory backend
func (c *Cache) Ping(ctx context.Context) error {
	return nil
}

// Close stops the janitor
func (c *Cache) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	return nil
}

// janitor periodically evicts expired entries and visitor markers
func (c *Cache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictExpired(time.Now())
		case <-c.stopChan:
			return
		}
	}
}

func (c *Cache) evictExpired(now time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for shortCode, it := range c.data {
		if now.After(it.expiresAt) {
			delete(c.data, shortCode)
		}
	}
	for key, until := range c.visitors {
		if now.After(until) {
			delete(c.visitors, key)
		}
	}
}

// Ensure Cache implements the interface
var _ cache.Cache = (*Cache)(nil)
