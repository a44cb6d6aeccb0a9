// Package market persists item templates, handbook reference prices and
// player market offers in SQLite. It backs the valuation oracle.
package market

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

// TimeFormat is the fixed-width RFC3339 format used for timestamps.
// Fixed width keeps lexicographic order equal to chronological order.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// Store wraps a SQLite database connection.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithNow overrides the time source used for updated_at stamps.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens a SQLite database with WAL mode and busy_timeout and runs
// migrations. The path should be absolute.
func Open(path string, opts ...Option) (*Store, error) {
	escapedPath := url.PathEscape(path)
	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", escapedPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// WAL allows parallel readers; writes are serialized by SQLite.
	db.SetMaxOpenConns(4)

	s := &Store{db: db, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// journalMode returns the current journal mode (for testing).
func (s *Store) journalMode() (string, error) {
	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return "", err
	}
	return mode, nil
}
