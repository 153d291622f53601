package service

import (
	"context"

	"github.com/shortkit/redirector/internal/cache"
	"github.com/shortkit/redirector/internal/domain"
)

// RedirectService is the surface the transport layer depends on
type RedirectService interface {
	// Redirect runs the redirect state machine for one request
	Redirect(ctx context.Context, in Input) Resolution

	// RefreshCache re-reads the store and repopulates the cache entry
	RefreshCache(ctx context.Context, shortCode string) (*domain.URLRecord, error)

	// Stats returns the cache counters
	Stats(ctx context.Context) (cache.Stats, error)

	// Healthy reports collaborator reachability
	Healthy(ctx context.Context) map[string]bool
}

// Ensure Redirector implements the interface
var _ RedirectService = (*Redirector)(nil)
