package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/shortkit/redirector/internal/cache"
	"github.com/shortkit/redirector/internal/domain"
)

const (
	entryKeyPrefix   = "url:"
	visitorKeyPrefix = "visitor:"
)

// Cache implements cache.Cache backed by Redis. Backend failures degrade to
// misses on the read path and are logged on the write path; the redirect flow
// never depends on Redis being up.
type Cache struct {
	rdb     *goredis.Client
	timeout time.Duration
	hits    atomic.Int64
	misses  atomic.Int64
}

// Connect creates a Redis cache and verifies connectivity once at startup.
func Connect(addr, password string, db int, timeout time.Duration) (*Cache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{rdb: rdb, timeout: timeout}, nil
}

// Get retrieves a cache entry by short code. Any backend error counts as a miss.
func (c *Cache) Get(ctx context.Context, shortCode string) (*domain.CacheEntry, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.rdb.Get(ctx, entryKeyPrefix+shortCode).Result()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			log.Printf("[ERROR] cache get failed for '%s': %v", shortCode, err)
		}
		c.misses.Add(1)
		return nil, false
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// Unreadable entries are dropped so the store re-read can repair them
		log.Printf("[ERROR] cache entry corrupt for '%s': %v", shortCode, err)
		c.rdb.Del(ctx, entryKeyPrefix+shortCode)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return &entry, true
}

// Put upserts an entry derived from the record, overwriting unconditionally
func (c *Cache) Put(ctx context.Context, record *domain.URLRecord, ttl time.Duration) error {
	entry := domain.NewCacheEntry(record, time.Now())

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.rdb.Set(ctx, entryKeyPrefix+record.ShortCode, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}

	return nil
}

// Invalidate removes an entry
func (c *Cache) Invalidate(ctx context.Context, shortCode string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.rdb.Del(ctx, entryKeyPrefix+shortCode).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}

	return nil
}

// PreWarm bulk-loads entries for the given records in one pipeline round trip
func (c *Cache) PreWarm(ctx context.Context, records []*domain.URLRecord, ttl time.Duration) error {
	now := time.Now()

	pipe := c.rdb.Pipeline()
	for _, record := range records {
		raw, err := json.Marshal(domain.NewCacheEntry(record, now))
		if err != nil {
			return fmt.Errorf("failed to encode cache entry for '%s': %w", record.ShortCode, err)
		}
		pipe.Set(ctx, entryKeyPrefix+record.ShortCode, raw, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to pre-warm cache: %w", err)
	}

	return nil
}

// FirstSeen records a visitor marker via SETNX and reports whether it was new
func (c *Cache) FirstSeen(ctx context.Context, shortCode, visitor string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	first, err := c.rdb.SetNX(ctx, visitorKeyPrefix+shortCode+":"+visitor, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set visitor marker: %w", err)
	}

	return first, nil
}

// Stats returns accumulated counters and the backend key count. The cache runs
// in its own logical Redis database, so DBSIZE is the entry count.
func (c *Cache) Stats(ctx context.Context) (cache.Stats, error) {
	stats := cache.Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	size, err := c.rdb.DBSize(ctx).Result()
	if err != nil {
		return stats, fmt.Errorf("failed to read cache size: %w", err)
	}
	stats.Size = size

	return stats, nil
}

// Ping checks cache backend reachability
func (c *Cache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.rdb.Ping(ctx).Err()
}

// Close closes the client connection
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// Ensure Cache implements the interface
var _ cache.Cache = (*Cache)(nil)
