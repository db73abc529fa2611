package sink

import (
	"context"

	"keytally/internal/store"
)

// SQLite appends entries to the key_log table.
type SQLite struct {
	st *store.Store
}

// OpenSQLite opens (creating if needed) the key log database at path.
func OpenSQLite(path string) (*SQLite, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	return &SQLite{st: st}, nil
}

// NewSQLite wraps an already open store. Close closes it.
func NewSQLite(st *store.Store) *SQLite {
	return &SQLite{st: st}
}

// Append inserts e.
func (s *SQLite) Append(ctx context.Context, e store.Entry) error {
	return s.st.Append(ctx, e)
}

// Store returns the underlying store.
func (s *SQLite) Store() *store.Store {
	return s.st
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.st.Close()
}

func (s *SQLite) String() string {
	return "sqlite:" + s.st.Path()
}
