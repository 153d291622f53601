package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/shortkit/redirector/internal/cache"
	"github.com/shortkit/redirector/internal/domain"
)

// Cache is a mock implementation of cache.Cache
type Cache struct {
	mock.Mock
}

// Get retrieves a cache entry by short code
func (m *Cache) Get(ctx context.Context, shortCode string) (*domain.CacheEntry, bool) {
	args := m.Called(ctx, shortCode)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*domain.CacheEntry), args.Bool(1)
}

// Put upserts an entry derived from the record
func (m *Cache) Put(ctx context.Context, record *domain.URLRecord, ttl time.Duration) error {
	args := m.Called(ctx, record, ttl)
	return args.Error(0)
}

// Invalidate removes an entry
func (m *Cache) Invalidate(ctx context.Context, shortCode string) error {
	args := m.Called(ctx, shortCode)
	return args.Error(0)
}

// PreWarm bulk-loads entries for the given records
func (m *Cache) PreWarm(ctx context.Context, records []*domain.URLRecord, ttl time.Duration) error {
	args := m.Called(ctx, records, ttl)
	return args.Error(0)
}

// FirstSeen records a visitor marker
func (m *Cache) FirstSeen(ctx context.Context, shortCode, visitor string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, shortCode, visitor, ttl)
	return args.Bool(0), args.Error(1)
}

// Stats returns accumulated counters
func (m *Cache) Stats(ctx context.Context) (cache.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(cache.Stats), args.Error(1)
}

// Ping checks cache backend reachability
func (m *Cache) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close closes the cache connection
func (m *Cache) Close() error {
	args := m.Called()
	return args.Error(0)
}
