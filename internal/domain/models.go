package domain

import (
	"time"
)

// URLRecord is the authoritative entity for a short code, owned by the store.
type URLRecord struct {
	ShortCode      string            `json:"short_code"`
	OriginalURL    string            `json:"original_url"`
	OwnerID        string            `json:"owner_id,omitempty"`
	Active         bool              `json:"active"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
	Clicks         int64             `json:"clicks"`
	UniqueVisitors int64             `json:"unique_visitors"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt *time.Time        `json:"last_accessed_at,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Redirectable reports whether the record may serve a redirect at the given time.
func (r *URLRecord) Redirectable(now time.Time) bool {
	if !r.Active {
		return false
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return false
	}
	return true
}

// CacheEntry is the derived, disposable projection of a URLRecord held by the
// cache layer. It carries the fields that decide redirectability so a cached
// hit never needs a store read to be judged.
type CacheEntry struct {
	ShortCode   string     `json:"short_code"`
	OriginalURL string     `json:"original_url"`
	Active      bool       `json:"active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CachedAt    time.Time  `json:"cached_at"`
}

// Redirectable reports whether the cached entry may serve a redirect.
func (e *CacheEntry) Redirectable(now time.Time) bool {
	if !e.Active {
		return false
	}
	if e.ExpiresAt != nil && !e.ExpiresAt.After(now) {
		return false
	}
	return true
}

// NewCacheEntry derives a cache entry from an authoritative record.
func NewCacheEntry(record *URLRecord, now time.Time) *CacheEntry {
	return &CacheEntry{
		ShortCode:   record.ShortCode,
		OriginalURL: record.OriginalURL,
		Active:      record.Active,
		ExpiresAt:   record.ExpiresAt,
		CachedAt:    now,
	}
}

// GeoRule maps country codes to destination overrides for one short code.
// Absence of a rule means no override.
type GeoRule struct {
	Default      string            `json:"default,omitempty"`
	Destinations map[string]string `json:"destinations,omitempty"`
}
