// Package storage keeps a local SQLite copy of the moisture history so it
// survives remote outages and can be browsed from the status page.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultLimit is the number of points RecentHistory returns for limit <= 0.
const DefaultLimit = 100

// MaxLimit caps a single RecentHistory query.
const MaxLimit = 10_000

// Point is one archived history sample.
type Point struct {
	At      time.Time `json:"at"`
	Percent float64   `json:"percent"`
}

// Store provides SQLite-backed persistence for history samples.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// One connection keeps ":memory:" a single database and serialises writers.
	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db)
}

// New returns a Store bound to an existing, migrated database handle.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Store{db: db}, nil
}

// AppendHistory records percent sampled at at.
func (s *Store) AppendHistory(ctx context.Context, at time.Time, percent float64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("append history: store is nil")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (at, percent) VALUES (?, ?)`,
		at.UnixMilli(), percent)
	if err != nil {
		return fmt.Errorf("append history: insert: %w", err)
	}
	return nil
}

// RecentHistory returns up to limit points, newest first.
func (s *Store) RecentHistory(ctx context.Context, limit int) ([]Point, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("recent history: store is nil")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT at, percent FROM history ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent history: query: %w", err)
	}
	defer rows.Close()

	points := make([]Point, 0, limit)
	for rows.Next() {
		var ms int64
		var p Point
		if err := rows.Scan(&ms, &p.Percent); err != nil {
			return nil, fmt.Errorf("recent history: scan: %w", err)
		}
		p.At = time.UnixMilli(ms).UTC()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent history: rows: %w", err)
	}
	return points, nil
}

// Count returns the number of archived points.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
