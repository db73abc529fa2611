package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("store: closed")

// Store represents the SQLite key log.
type Store struct {
	db     *sql.DB
	insert *sql.Stmt
	path   string
}

// Open opens or creates the database at path, applies migrations and
// recreates the aggregation views. Existing rows are preserved, so opening
// the same file repeatedly is safe.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer keeps append order identical to call order.
	db.SetMaxOpenConns(1)

	if err := setup(db); err != nil {
		db.Close()
		return nil, err
	}

	insert, err := db.Prepare("INSERT INTO key_log (time_utc, key_code) VALUES (?, ?)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}

	return &Store{db: db, insert: insert, path: path}, nil
}

func setup(db *sql.DB) error {
	if err := MigrateDB(db); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if err := RecreateViews(db); err != nil {
		return fmt.Errorf("create views: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the underlying handle for schema inspection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if s.insert != nil {
		s.insert.Close()
		s.insert = nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Append inserts one entry at the end of the log.
func (s *Store) Append(ctx context.Context, e Entry) error {
	if s.db == nil {
		return ErrClosed
	}
	if _, err := s.insert.ExecContext(ctx, e.TimeString(), e.Combo); err != nil {
		return fmt.Errorf("insert key_log: %w", err)
	}
	return nil
}

// AppendBatch inserts entries in order within one transaction.
func (s *Store) AppendBatch(ctx context.Context, entries []Entry) error {
	if s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt := tx.StmtContext(ctx, s.insert)
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.TimeString(), e.Combo); err != nil {
			return fmt.Errorf("insert key_log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Count returns the number of logged entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM key_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("count key_log: %w", err)
	}
	return n, nil
}

// Entries returns the whole log in time order.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, "SELECT time_utc, key_code FROM key_log ORDER BY time_utc, rowid")
	if err != nil {
		return nil, fmt.Errorf("query key_log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var ts, combo sql.NullString
		if err := rows.Scan(&ts, &combo); err != nil {
			return nil, fmt.Errorf("scan key_log: %w", err)
		}
		t, err := ParseTime(ts.String)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Time: t, Combo: combo.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate key_log: %w", err)
	}
	return out, nil
}

// KeyCounts reads the key_counts view. limit <= 0 returns all rows.
func (s *Store) KeyCounts(ctx context.Context, limit int) ([]KeyCount, error) {
	rows, err := s.queryView(ctx, ViewKeyCounts, "key_code", "count DESC, key_code", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KeyCount
	for rows.Next() {
		var kc KeyCount
		if err := rows.Scan(&kc.Combo, &kc.Count, &kc.Frequency, &kc.CumulativeFrequency); err != nil {
			return nil, fmt.Errorf("scan %s: %w", ViewKeyCounts, err)
		}
		out = append(out, kc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", ViewKeyCounts, err)
	}
	return out, nil
}

// Bigrams reads the bigram_counts view. limit <= 0 returns all rows.
func (s *Store) Bigrams(ctx context.Context, limit int) ([]GramCount, error) {
	return s.grams(ctx, ViewBigramCounts, "bigram", limit)
}

// Trigrams reads the trigram_counts view. limit <= 0 returns all rows.
func (s *Store) Trigrams(ctx context.Context, limit int) ([]GramCount, error) {
	return s.grams(ctx, ViewTrigramCounts, "trigram", limit)
}

func (s *Store) grams(ctx context.Context, view View, column string, limit int) ([]GramCount, error) {
	rows, err := s.queryView(ctx, view, column, "cumulative_frequency, count DESC, "+column, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GramCount
	for rows.Next() {
		var gc GramCount
		if err := rows.Scan(&gc.Gram, &gc.Count, &gc.Frequency, &gc.CumulativeFrequency); err != nil {
			return nil, fmt.Errorf("scan %s: %w", view, err)
		}
		out = append(out, gc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", view, err)
	}
	return out, nil
}

// queryView selects from a view. Identifiers are package constants, never
// user input.
func (s *Store) queryView(ctx context.Context, view View, column, order string, limit int) (*sql.Rows, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}
	q := fmt.Sprintf("SELECT %s, count, frequency, cumulative_frequency FROM %s ORDER BY %s LIMIT ?", column, view, order)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", view, err)
	}
	return rows, nil
}
