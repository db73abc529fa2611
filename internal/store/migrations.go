package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	Up          string
}

// migrations contains all database migrations in order.
//
// key_log may already exist from an earlier logger that never recorded
// schema versions, so every statement must be idempotent. There are no
// down migrations: the key log is append-only and is never dropped.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Create append-only key_log table",
		Up:          migrationV1Up,
	},
	{
		Version:     2,
		Description: "Index key_log by time for ordered scans",
		Up:          migrationV2Up,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS key_log (
    time_utc TEXT,
    key_code TEXT
);
`

const migrationV2Up = `
CREATE INDEX IF NOT EXISTS idx_key_log_time ON key_log(time_utc);
`

// MigrateDB applies all pending migrations to the database.
func MigrateDB(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UnixNano(), m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// RecreateViews drops and recreates the aggregation views.
func RecreateViews(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, v := range views {
		if _, err := tx.Exec("DROP VIEW IF EXISTS " + string(v.name)); err != nil {
			return fmt.Errorf("drop view %s: %w", v.name, err)
		}
		if _, err := tx.Exec(v.ddl); err != nil {
			return fmt.Errorf("create view %s: %w", v.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit views: %w", err)
	}
	return nil
}

// MigrationStatus reports applied and pending migrations.
type MigrationStatus struct {
	CurrentVersion int
	LatestVersion  int
	Pending        []Migration
	Applied        []AppliedMigration
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version     int
	AppliedAt   time.Time
	Description string
}

// GetMigrationStatus returns the current migration status.
func GetMigrationStatus(db *sql.DB) (*MigrationStatus, error) {
	status := &MigrationStatus{
		LatestVersion: len(migrations),
	}

	rows, err := db.Query("SELECT version, applied_at, description FROM schema_migrations ORDER BY version")
	if err != nil {
		// Table might not exist yet
		status.CurrentVersion = 0
		status.Pending = migrations
		return status, nil
	}
	defer rows.Close()

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var am AppliedMigration
		var appliedAt int64
		if err := rows.Scan(&am.Version, &appliedAt, &am.Description); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		am.AppliedAt = time.Unix(0, appliedAt)
		status.Applied = append(status.Applied, am)
		appliedVersions[am.Version] = true

		if am.Version > status.CurrentVersion {
			status.CurrentVersion = am.Version
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migrations: %w", err)
	}

	for _, m := range migrations {
		if !appliedVersions[m.Version] {
			status.Pending = append(status.Pending, m)
		}
	}

	return status, nil
}

// ValidateSchema checks that the key_log table and all views exist.
func ValidateSchema(db *sql.DB) error {
	required := []struct{ kind, name string }{
		{"table", "key_log"},
		{"table", "schema_migrations"},
		{"view", string(ViewKeyCounts)},
		{"view", string(ViewBigramCounts)},
		{"view", string(ViewTrigramCounts)},
	}

	for _, r := range required {
		var count int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
			r.kind, r.name,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("check %s %s: %w", r.kind, r.name, err)
		}
		if count == 0 {
			return fmt.Errorf("missing required %s: %s", r.kind, r.name)
		}
	}

	return nil
}
