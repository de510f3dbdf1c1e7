// Package postgres provides the Postgres-backed unsupported-links store.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultTable = "unsupported_urls"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for unsupported-link rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// CreateTable issues CREATE TABLE IF NOT EXISTS on open.
	CreateTable bool
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// UnsupportedStore writes unsupported URLs into Postgres, one row per URL.
type UnsupportedStore struct {
	pool  execCloser
	table string
	runID uuid.UUID
	now   func() time.Time
}

// NewUnsupportedStore creates a pool from cfg and returns a store tagging rows with runID.
func NewUnsupportedStore(ctx context.Context, cfg Config, runID uuid.UUID) (*UnsupportedStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("unsupported.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewUnsupportedStoreWithPool(pool, cfg.Table, runID)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if cfg.CreateTable {
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return store, nil
}

// NewUnsupportedStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewUnsupportedStoreWithPool(pool execCloser, table string, runID uuid.UUID) (*UnsupportedStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &UnsupportedStore{
		pool:  pool,
		table: table,
		runID: runID,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// EnsureSchema creates the table when it does not exist.
func (s *UnsupportedStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id           BIGSERIAL PRIMARY KEY,
	run_id       UUID NOT NULL,
	url          TEXT NOT NULL,
	parent_title TEXT NOT NULL DEFAULT '',
	recorded_at  TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *UnsupportedStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Record inserts one unsupported URL row.
func (s *UnsupportedStore) Record(ctx context.Context, u *url.URL, parentTitle string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("unsupported store is not configured")
	}
	if u == nil {
		return fmt.Errorf("url is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	url,
	parent_title,
	recorded_at
) VALUES (
	$1,$2,$3,$4
)`, s.table)
	if _, err := s.pool.Exec(ctx, query, s.runID.String(), u.String(), parentTitle, s.now()); err != nil {
		return fmt.Errorf("insert unsupported url: %w", err)
	}
	return nil
}
