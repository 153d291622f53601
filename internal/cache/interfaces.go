package cache

import (
	"context"
	"time"

	"github.com/shortkit/redirector/internal/domain"
)

// Stats holds monotonically accumulating cache counters
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int64 `json:"size"`
}

// Cache defines the interface for the redirect cache layer. The cache is a
// derived projection of the store: any implementation must treat backend
// failures as misses on Get and as best-effort no-ops on writes, so the
// redirect path stays available when the backend is down.
type Cache interface {
	// Get retrieves a cache entry by short code; a miss or backend failure
	// is reported as (nil, false), never as an error
	Get(ctx context.Context, shortCode string) (*domain.CacheEntry, bool)

	// Put upserts an entry derived from the record, overwriting unconditionally
	Put(ctx context.Context, record *domain.URLRecord, ttl time.Duration) error

	// Invalidate removes an entry, used when a record is disabled or updated
	Invalidate(ctx context.Context, shortCode string) error

	// PreWarm bulk-loads entries for the given records
	PreWarm(ctx context.Context, records []*domain.URLRecord, ttl time.Duration) error

	// FirstSeen records a visitor marker for the short code and reports whether
	// this visitor is new within the marker TTL; best-effort, (false, err) when
	// the backend is unavailable
	FirstSeen(ctx context.Context, shortCode, visitor string, ttl time.Duration) (bool, error)

	// Stats returns accumulated hit/miss counters and the current size
	Stats(ctx context.Context) (Stats, error)

	// Ping checks cache backend reachability
	Ping(ctx context.Context) error

	// Close closes the cache connection (if applicable)
	Close() error
}
