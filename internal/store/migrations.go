// Package store provides the SQLite-backed clip history for smartclip.
package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrSchemaTooNew is returned when the database was written by a newer
// smartclip than this one.
var ErrSchemaTooNew = errors.New("database schema is newer than this build")

// Migration is one forward schema step. The schema version is kept in
// SQLite's user_version header field.
type Migration struct {
	Version     int
	Description string
	Up          string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "clips table with fingerprint and ordering indexes",
		Up: `
CREATE TABLE IF NOT EXISTS clips (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    kind        TEXT NOT NULL CHECK (kind IN ('text', 'image')),
    text        TEXT,
    image       BLOB,
    created_at  INTEGER NOT NULL,
    pinned      INTEGER NOT NULL DEFAULT 0 CHECK (pinned IN (0, 1)),
    is_otp      INTEGER NOT NULL DEFAULT 0 CHECK (is_otp IN (0, 1)),
    fingerprint TEXT NOT NULL,
    CHECK (
        (kind = 'text' AND text IS NOT NULL AND image IS NULL)
        OR
        (kind = 'image' AND image IS NOT NULL AND text IS NULL)
    )
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_clips_fingerprint ON clips(fingerprint);
CREATE INDEX IF NOT EXISTS idx_clips_order ON clips(pinned, created_at);
`,
	},
	{
		Version:     2,
		Description: "OTP expiry index",
		Up:          `CREATE INDEX IF NOT EXISTS idx_clips_otp ON clips(is_otp, created_at);`,
	},
}

// LatestVersion is the schema version this build writes.
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}

// SchemaVersion reads the database's user_version.
func SchemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// MigrateDB applies every migration above the current version, each in its
// own transaction together with the version bump.
func MigrateDB(db *sql.DB) error {
	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}
	if current > LatestVersion() {
		return fmt.Errorf("%w: version %d, this build knows %d", ErrSchemaTooNew, current, LatestVersion())
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(db, m); err != nil {
			return err
		}
	}
	return nil
}

func apply(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.Up); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	// PRAGMA does not take bound parameters.
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("set schema version %d: %w", m.Version, err)
	}
	return tx.Commit()
}

// ValidateSchema checks that the clips table and its indexes exist.
func ValidateSchema(db *sql.DB) error {
	for _, name := range []string{"clips", "idx_clips_fingerprint", "idx_clips_order", "idx_clips_otp"} {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = ?", name).Scan(&n); err != nil {
			return fmt.Errorf("check %s: %w", name, err)
		}
		if n == 0 {
			return fmt.Errorf("schema is missing %s", name)
		}
	}
	return nil
}
