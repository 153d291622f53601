package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shortkit/redirector/internal/domain"
	"github.com/shortkit/redirector/internal/store"
)

// Store implements store.URLStore using SQLite
type Store struct {
	db *sql.DB
}

// New creates a new SQLite-backed store
func New(databasePath string) (*Store, error) {
	db, err := sql.Open("sqlite3", databasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys and WAL mode for better performance
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}

	if err := s.applyMigrations(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// GetURL retrieves a record by its short code
func (s *Store) GetURL(ctx context.Context, shortCode string) (*domain.URLRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT short_code, original_url, owner_id, active, expires_at,
		       clicks, unique_visitors, created_at, last_accessed_at, metadata
		FROM urls WHERE short_code = ?`, shortCode)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get URL: %w", err)
	}

	return record, nil
}

// UpsertURL inserts or replaces a record keyed by short code, preserving
// existing counters and creation time on replay
func (s *Store) UpsertURL(ctx context.Context, record *domain.URLRecord) error {
	metadata, err := encodeMetadata(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO urls (short_code, original_url, owner_id, active, expires_at,
		                  clicks, unique_visitors, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(short_code) DO UPDATE SET
			original_url = excluded.original_url,
			owner_id     = excluded.owner_id,
			active       = excluded.active,
			expires_at   = excluded.expires_at,
			metadata     = excluded.metadata`,
		record.ShortCode, record.OriginalURL, record.OwnerID, record.Active,
		nullableTime(record.ExpiresAt), record.Clicks, record.UniqueVisitors,
		record.CreatedAt, metadata)
	if err != nil {
		return fmt.Errorf("failed to upsert URL: %w", err)
	}

	return nil
}

// SetActive enables or disables a record
func (s *Store) SetActive(ctx context.Context, shortCode string, active bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE urls SET active = ? WHERE short_code = ?", active, shortCode)
	if err != nil {
		return fmt.Errorf("failed to set active: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// RecordAccess atomically increments counters and stamps the last access time.
// Plain SQL increments keep concurrent redirects commutative.
func (s *Store) RecordAccess(ctx context.Context, shortCode string, at time.Time, uniqueVisitor bool) error {
	uniqueDelta := 0
	if uniqueVisitor {
		uniqueDelta = 1
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE urls
		SET clicks = clicks + 1,
		    unique_visitors = unique_visitors + ?,
		    last_accessed_at = ?
		WHERE short_code = ?`, uniqueDelta, at, shortCode)
	if err != nil {
		return fmt.Errorf("failed to record access: %w", err)
	}

	return nil
}

// TopURLs returns the most-clicked active records, clicks descending
func (s *Store) TopURLs(ctx context.Context, limit int) ([]*domain.URLRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT short_code, original_url, owner_id, active, expires_at,
		       clicks, unique_visitors, created_at, last_accessed_at, metadata
		FROM urls
		WHERE active = 1
		ORDER BY clicks DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top URLs: %w", err)
	}
	defer rows.Close()

	var records []*domain.URLRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan top URL: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// Ping checks store reachability
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store connection
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.URLRecord, error) {
	var (
		record         domain.URLRecord
		ownerID        sql.NullString
		expiresAt      sql.NullTime
		lastAccessedAt sql.NullTime
		metadata       sql.NullString
	)

	err := row.Scan(&record.ShortCode, &record.OriginalURL, &ownerID,
		&record.Active, &expiresAt, &record.Clicks, &record.UniqueVisitors,
		&record.CreatedAt, &lastAccessedAt, &metadata)
	if err != nil {
		return nil, err
	}

	record.OwnerID = ownerID.String
	if expiresAt.Valid {
		record.ExpiresAt = &expiresAt.Time
	}
	if lastAccessedAt.Valid {
		record.LastAccessedAt = &lastAccessedAt.Time
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &record.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	return &record, nil
}

func encodeMetadata(metadata map[string]string) (sql.NullString, error) {
	if len(metadata) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Ensure Store implements the interface
var _ store.URLStore = (*Store)(nil)
