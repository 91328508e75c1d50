// Package history persists run records so the daemon's status endpoint can
// report recent activity across restarts.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one completed pipeline run.
type Record struct {
	RunID      string
	Trigger    string
	Outcome    string // success|failed|canceled
	Revision   string
	NoChange   bool
	Error      string
	StartedAt  time.Time
	DurationMS int64
}

// Store persists run records.
type Store interface {
	RecordRun(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens the run history database.
// Use ":memory:" for an in-memory database, or a file path for persistence.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		trigger_kind TEXT NOT NULL,
		outcome TEXT NOT NULL,
		revision TEXT,
		no_change INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_run_id ON runs(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordRun appends one run record.
func (s *SQLiteStore) RecordRun(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	noChange := 0
	if rec.NoChange {
		noChange = 1
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (run_id, trigger_kind, outcome, revision, no_change, error, started_at, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		rec.RunID, rec.Trigger, rec.Outcome, rec.Revision, noChange, rec.Error, rec.StartedAt.Unix(), rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns the most recent runs, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, trigger_kind, outcome, revision, no_change, error, started_at, duration_ms FROM runs ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var noChange int
		var startedUnix int64
		if err := rows.Scan(&rec.RunID, &rec.Trigger, &rec.Outcome, &rec.Revision, &noChange, &rec.Error, &startedUnix, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.NoChange = noChange != 0
		rec.StartedAt = time.Unix(startedUnix, 0)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// NoopStore discards records. Used when history is disabled.
type NoopStore struct{}

func (NoopStore) RecordRun(context.Context, Record) error       { return nil }
func (NoopStore) Recent(context.Context, int) ([]Record, error) { return nil, nil }
func (NoopStore) Close() error                                  { return nil }
