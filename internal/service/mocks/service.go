package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shortkit/redirector/internal/cache"
	"github.com/shortkit/redirector/internal/domain"
	"github.com/shortkit/redirector/internal/service"
)

// RedirectService is a mock implementation of service.RedirectService
type RedirectService struct {
	mock.Mock
}

// Redirect runs the redirect state machine for one request
func (m *RedirectService) Redirect(ctx context.Context, in service.Input) service.Resolution {
	args := m.Called(ctx, in)
	return args.Get(0).(service.Resolution)
}

// RefreshCache re-reads the store and repopulates the cache entry
func (m *RedirectService) RefreshCache(ctx context.Context, shortCode string) (*domain.URLRecord, error) {
	args := m.Called(ctx, shortCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.URLRecord), args.Error(1)
}

// Stats returns the cache counters
func (m *RedirectService) Stats(ctx context.Context) (cache.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(cache.Stats), args.Error(1)
}

// Healthy reports collaborator reachability
func (m *RedirectService) Healthy(ctx context.Context) map[string]bool {
	args := m.Called(ctx)
	return args.Get(0).(map[string]bool)
}
