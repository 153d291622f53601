package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortkit/redirector/internal/domain"
)

func testRecord(shortCode, originalURL string) *domain.URLRecord {
	return &domain.URLRecord{
		ShortCode:   shortCode,
		OriginalURL: originalURL,
		Active:      true,
		CreatedAt:   time.Now(),
	}
}

func TestCache_PutGet(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	require.NoError(t, c.Put(ctx, testRecord("abc123", "https://example.com"), time.Minute))

	entry, hit := c.Get(ctx, "abc123")
	require.True(t, hit)
	assert.Equal(t, "abc123", entry.ShortCode)
	assert.Equal(t, "https://example.com", entry.OriginalURL)
	assert.True(t, entry.Active)
	assert.False(t, entry.CachedAt.IsZero())
}

func TestCache_GetMiss(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	entry, hit := c.Get(ctx, "missing")
	assert.False(t, hit)
	assert.Nil(t, entry)
}

func TestCache_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	require.NoError(t, c.Put(ctx, testRecord("abc123", "https://old.example.com"), time.Minute))
	require.NoError(t, c.Put(ctx, testRecord("abc123", "https://new.example.com"), time.Minute))

	entry, hit := c.Get(ctx, "abc123")
	require.True(t, hit)
	assert.Equal(t, "https://new.example.com", entry.OriginalURL)
}

func TestCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	require.NoError(t, c.Put(ctx, testRecord("abc123", "https://example.com"), 10*time.Millisecond))

	time.Sleep(25 * time.Millisecond)

	_, hit := c.Get(ctx, "abc123")
	assert.False(t, hit)
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	require.NoError(t, c.Put(ctx, testRecord("abc123", "https://example.com"), time.Minute))
	require.NoError(t, c.Invalidate(ctx, "abc123"))

	_, hit := c.Get(ctx, "abc123")
	assert.False(t, hit)
}

func TestCache_PreWarm(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	records := []*domain.URLRecord{
		testRecord("abc123", "https://example.com"),
		testRecord("def456", "https://other.example.com"),
	}
	require.NoError(t, c.PreWarm(ctx, records, time.Minute))

	for _, record := range records {
		entry, hit := c.Get(ctx, record.ShortCode)
		require.True(t, hit, "expected pre-warmed hit for %s", record.ShortCode)
		assert.Equal(t, record.OriginalURL, entry.OriginalURL)
	}

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(0), stats.Misses)
	assert.Equal(t, int64(2), stats.Size)
}

func TestCache_Stats(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	require.NoError(t, c.Put(ctx, testRecord("abc123", "https://example.com"), time.Minute))

	c.Get(ctx, "abc123")
	c.Get(ctx, "abc123")
	c.Get(ctx, "missing")

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Size)
}

func TestCache_FirstSeen(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	first, err := c.FirstSeen(ctx, "abc123", "visitor-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := c.FirstSeen(ctx, "abc123", "visitor-a", time.Minute)
	require.NoError(t, err)
	assert.False(t, again)

	other, err := c.FirstSeen(ctx, "abc123", "visitor-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, other)
}

func TestCache_FirstSeenExpiry(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	first, err := c.FirstSeen(ctx, "abc123", "visitor-a", 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, first)

	time.Sleep(25 * time.Millisecond)

	again, err := c.FirstSeen(ctx, "abc123", "visitor-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, again)
}

func TestCache_EvictExpired(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	require.NoError(t, c.Put(ctx, testRecord("abc123", "https://example.com"), 10*time.Millisecond))
	require.NoError(t, c.Put(ctx, testRecord("def456", "https://other.example.com"), time.Minute))

	c.evictExpired(time.Now().Add(time.Second))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Size)
}
