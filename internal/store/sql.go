package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Dialect selects placeholder syntax for SQLStore queries.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// Compile-time interface assertions
var (
	_ BlobStore   = (*SQLStore)(nil)
	_ SyncHistory = (*SQLStore)(nil)
)

// SQLStore keeps values in the prefs table of a SQL database.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewPostgresStore creates a store over a PostgreSQL connection
func NewPostgresStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: DialectPostgres}
}

// NewSQLiteStore creates a store over a SQLite connection
func NewSQLiteStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: DialectSQLite}
}

// bind rewrites $N placeholders for the store's dialect.
func (s *SQLStore) bind(query string) string {
	if s.dialect == DialectPostgres {
		return query
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Get returns the value for key
func (s *SQLStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT value FROM prefs WHERE key = $1`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

// Put stores value under key
func (s *SQLStore) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO prefs (key, value, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`), key, value)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// RecordSync inserts a sync history row
func (s *SQLStore) RecordSync(ctx context.Context, rec SyncRecord) error {
	var errText sql.NullString
	if rec.Error != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO sync_history (source, result, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5)
	`), rec.Source, rec.Result, errText, rec.StartedAt.UTC(), rec.CompletedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record sync: %w", err)
	}
	return nil
}

// RecentSyncs returns up to limit records, newest first
func (s *SQLStore) RecentSyncs(ctx context.Context, limit int) ([]SyncRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(`
		SELECT id, source, result, error, started_at, completed_at
		FROM sync_history
		ORDER BY started_at DESC, id DESC
		LIMIT $1
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync history: %w", err)
	}
	defer rows.Close()

	records := []SyncRecord{}
	for rows.Next() {
		var rec SyncRecord
		var errText sql.NullString
		var started, completed time.Time
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.Result, &errText, &started, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan sync history: %w", err)
		}
		rec.Error = errText.String
		rec.StartedAt = started
		rec.CompletedAt = completed
		records = append(records, rec)
	}
	return records, rows.Err()
}
