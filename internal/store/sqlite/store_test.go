package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortkit/redirector/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	return s
}

func record(shortCode, originalURL string) *domain.URLRecord {
	return &domain.URLRecord{
		ShortCode:   shortCode,
		OriginalURL: originalURL,
		Active:      true,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestStore_ReopenExistingDatabase(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	first, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, first.UpsertURL(ctx, record("abc123", "https://example.com")))
	require.NoError(t, first.Close())

	// Reopening replays no migrations and keeps existing data
	second, err := New(dbPath)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetURL(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got.OriginalURL)
}

func TestMigrationVersion(t *testing.T) {
	version, err := migrationVersion("001_create_urls_table.sql")
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	_, err = migrationVersion("no-prefix.sql")
	assert.Error(t, err)
}

func TestStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	expiresAt := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	original := record("abc123", "https://example.com")
	original.OwnerID = "user-1"
	original.ExpiresAt = &expiresAt
	original.Metadata = map[string]string{"campaign": "launch"}

	require.NoError(t, s.UpsertURL(ctx, original))

	got, err := s.GetURL(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.ShortCode)
	assert.Equal(t, "https://example.com", got.OriginalURL)
	assert.Equal(t, "user-1", got.OwnerID)
	assert.True(t, got.Active)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expiresAt.Equal(*got.ExpiresAt))
	assert.Equal(t, map[string]string{"campaign": "launch"}, got.Metadata)
	assert.Equal(t, int64(0), got.Clicks)
	assert.Nil(t, got.LastAccessedAt)
}

func TestStore_GetNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetURL(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertURL(ctx, record("abc123", "https://example.com")))
	require.NoError(t, s.RecordAccess(ctx, "abc123", time.Now(), true))

	// A redelivered creation event must not reset counters
	require.NoError(t, s.UpsertURL(ctx, record("abc123", "https://example.com")))

	got, err := s.GetURL(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Clicks)
	assert.Equal(t, int64(1), got.UniqueVisitors)
}

func TestStore_UpsertUpdatesFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertURL(ctx, record("abc123", "https://example.com")))

	updated := record("abc123", "https://moved.example.com")
	updated.Active = false
	require.NoError(t, s.UpsertURL(ctx, updated))

	got, err := s.GetURL(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "https://moved.example.com", got.OriginalURL)
	assert.False(t, got.Active)
}

func TestStore_RecordAccess(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertURL(ctx, record("abc123", "https://example.com")))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.RecordAccess(ctx, "abc123", at, true))
	require.NoError(t, s.RecordAccess(ctx, "abc123", at.Add(time.Second), false))

	got, err := s.GetURL(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Clicks)
	assert.Equal(t, int64(1), got.UniqueVisitors)
	require.NotNil(t, got.LastAccessedAt)
	assert.True(t, at.Add(time.Second).Equal(*got.LastAccessedAt))
}

func TestStore_SetActive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertURL(ctx, record("abc123", "https://example.com")))
	require.NoError(t, s.SetActive(ctx, "abc123", false))

	got, err := s.GetURL(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.False(t, got.Redirectable(time.Now()))
}

func TestStore_SetActiveNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.SetActive(ctx, "missing", false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_TopURLs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertURL(ctx, record("cold", "https://cold.example.com")))
	require.NoError(t, s.UpsertURL(ctx, record("warm", "https://warm.example.com")))
	require.NoError(t, s.UpsertURL(ctx, record("hot", "https://hot.example.com")))

	inactive := record("disabled", "https://disabled.example.com")
	inactive.Active = false
	require.NoError(t, s.UpsertURL(ctx, inactive))

	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordAccess(ctx, "hot", now, false))
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, s.RecordAccess(ctx, "warm", now, false))
	}

	top, err := s.TopURLs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "hot", top[0].ShortCode)
	assert.Equal(t, "warm", top[1].ShortCode)

	// Inactive records never qualify, regardless of clicks
	all, err := s.TopURLs(ctx, 10)
	require.NoError(t, err)
	for _, r := range all {
		assert.NotEqual(t, "disabled", r.ShortCode)
	}
}

func TestStore_Ping(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
