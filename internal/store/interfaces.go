package store

import (
	"context"
	"time"

	"github.com/shortkit/redirector/internal/domain"
)

// URLStore defines the interface for authoritative URL record access
type URLStore interface {
	// GetURL retrieves a record by its short code; domain.ErrNotFound when absent
	GetURL(ctx context.Context, shortCode string) (*domain.URLRecord, error)

	// UpsertURL inserts or replaces a record keyed by short code. Counters are
	// preserved on replace so redelivered creation events cannot reset them.
	UpsertURL(ctx context.Context, record *domain.URLRecord) error

	// SetActive enables or disables a record
	SetActive(ctx context.Context, shortCode string, active bool) error

	// RecordAccess atomically increments the click counter and stamps the last
	// access time; uniqueVisitor additionally advances the unique counter
	RecordAccess(ctx context.Context, shortCode string, at time.Time, uniqueVisitor bool) error

	// TopURLs returns the most-clicked active records, clicks descending
	TopURLs(ctx context.Context, limit int) ([]*domain.URLRecord, error)

	// Ping checks store reachability
	Ping(ctx context.Context) error

	// Close closes the store connection
	Close() error
}
