// Package sqlite stores unsupported links in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS unsupported_urls (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id       TEXT NOT NULL,
    url          TEXT NOT NULL,
    parent_title TEXT NOT NULL DEFAULT '',
    recorded_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_unsupported_urls_run ON unsupported_urls(run_id);
`

// Row is one stored unsupported link.
type Row struct {
	ID          int64
	RunID       string
	URL         string
	ParentTitle string
	RecordedAt  time.Time
}

// UnsupportedStore implements the unsupported-links log on SQLite.
type UnsupportedStore struct {
	db    *sql.DB
	runID uuid.UUID
	now   func() time.Time
}

// New opens dbPath, creating the file, its directory and the schema as needed.
func New(dbPath string, runID uuid.UUID) (*UnsupportedStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &UnsupportedStore{
		db:    db,
		runID: runID,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the database connection.
func (s *UnsupportedStore) Close() error {
	return s.db.Close()
}

// Record inserts u for the current run.
func (s *UnsupportedStore) Record(ctx context.Context, u *url.URL, parentTitle string) error {
	if u == nil {
		return fmt.Errorf("url is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO unsupported_urls (run_id, url, parent_title, recorded_at) VALUES (?, ?, ?, ?)`,
		s.runID.String(), u.String(), parentTitle, s.now(),
	)
	if err != nil {
		return fmt.Errorf("insert unsupported url: %w", err)
	}
	return nil
}

// ListByRun returns the rows recorded for runID in insertion order.
func (s *UnsupportedStore) ListByRun(ctx context.Context, runID uuid.UUID) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, url, parent_title, recorded_at FROM unsupported_urls WHERE run_id = ? ORDER BY id`,
		runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query unsupported urls: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.RunID, &r.URL, &r.ParentTitle, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan unsupported url: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unsupported urls: %w", err)
	}
	return out, nil
}
