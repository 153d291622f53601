package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/shortkit/redirector/internal/domain"
)

// URLStore is a mock implementation of store.URLStore
type URLStore struct {
	mock.Mock
}

// GetURL retrieves a record by its short code
func (m *URLStore) GetURL(ctx context.Context, shortCode string) (*domain.URLRecord, error) {
	args := m.Called(ctx, shortCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.URLRecord), args.Error(1)
}

// UpsertURL inserts or replaces a record keyed by short code
func (m *URLStore) UpsertURL(ctx context.Context, record *domain.URLRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// SetActive enables or disables a record
func (m *URLStore) SetActive(ctx context.Context, shortCode string, active bool) error {
	args := m.Called(ctx, shortCode, active)
	return args.Error(0)
}

// RecordAccess increments access counters
func (m *URLStore) RecordAccess(ctx context.Context, shortCode string, at time.Time, uniqueVisitor bool) error {
	args := m.Called(ctx, shortCode, at, uniqueVisitor)
	return args.Error(0)
}

// TopURLs returns the most-clicked active records
func (m *URLStore) TopURLs(ctx context.Context, limit int) ([]*domain.URLRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.URLRecord), args.Error(1)
}

// Ping checks store reachability
func (m *URLStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close closes the store connection
func (m *URLStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
