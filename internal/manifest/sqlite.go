package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS manifest_entries (
	run_key      TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	status       TEXT NOT NULL,
	last_attempt INTEGER NOT NULL,
	retries      INTEGER NOT NULL DEFAULT 0,
	reason       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_key, symbol)
)`

// SQLiteStore persists manifests in a SQLite database. Every RecordAttempt
// is a single UPSERT statement, so a crash leaves either the old or the new
// entry, never a partial mix. A mutex keeps one logical writer even when
// multiple fetch workers report concurrently.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the manifest database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening manifest db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating manifest schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads all entries for the run key. Rows carrying an unknown status
// value mean the persisted state was written by something else or damaged;
// that surfaces as ErrCorruptManifest rather than being skipped.
func (s *SQLiteStore) Load(ctx context.Context, runKey string) (*Manifest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, status, last_attempt, retries, reason
		 FROM manifest_entries WHERE run_key = ?`, runKey)
	if err != nil {
		return nil, fmt.Errorf("loading manifest %q: %w", runKey, err)
	}
	defer rows.Close()

	m := New(runKey)
	for rows.Next() {
		var (
			e      Entry
			status string
			unixTS int64
		)
		if err := rows.Scan(&e.Symbol, &status, &unixTS, &e.Retries, &e.Reason); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
		}
		e.Status = Status(status)
		if !e.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q for symbol %q", ErrCorruptManifest, status, e.Symbol)
		}
		if unixTS != 0 {
			e.LastAttempt = time.Unix(unixTS, 0).UTC()
		}
		m.Set(e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading manifest %q: %w", runKey, err)
	}
	return m, nil
}

// Reset deletes every entry persisted under the run key.
func (s *SQLiteStore) Reset(ctx context.Context, runKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM manifest_entries WHERE run_key = ?`, runKey); err != nil {
		return fmt.Errorf("resetting manifest %q: %w", runKey, err)
	}
	return nil
}

// RecordAttempt durably upserts the entry before returning.
func (s *SQLiteStore) RecordAttempt(ctx context.Context, runKey string, e Entry) error {
	if !e.Status.Valid() {
		return fmt.Errorf("recording %q: invalid status %q", e.Symbol, e.Status)
	}

	var unixTS int64
	if !e.LastAttempt.IsZero() {
		unixTS = e.LastAttempt.Unix()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO manifest_entries (run_key, symbol, status, last_attempt, retries, reason)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_key, symbol) DO UPDATE SET
			status = excluded.status,
			last_attempt = excluded.last_attempt,
			retries = excluded.retries,
			reason = excluded.reason`,
		runKey, e.Symbol, string(e.Status), unixTS, e.Retries, e.Reason)
	if err != nil {
		return fmt.Errorf("recording attempt for %q: %w", e.Symbol, err)
	}
	return nil
}
