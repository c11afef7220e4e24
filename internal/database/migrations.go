// Package database owns cherry2k's SQLite schema: opening the database
// file with the right permissions and pragmas, and migrating it forward.
package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SchemaVersion is the schema version this build of cherry2k understands.
// Bump it, and add a migration, whenever the schema changes.
const SchemaVersion = 1

// Migration represents a single forward schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// GetMigrations returns all available migrations in order, grounded on
// spec.md §4.4's schema: sessions keyed by working directory, messages
// with a monotonic autoincrement id, and a partial index over summary
// rows so the most recent summary can be found without scanning.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_sessions_and_messages",
			SQL: `
				CREATE TABLE IF NOT EXISTS sessions (
					id TEXT PRIMARY KEY,
					working_dir TEXT NOT NULL,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					last_message_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS messages (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
					role TEXT NOT NULL,
					content TEXT NOT NULL,
					token_count INTEGER,
					is_summary INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_sessions_dir_time
					ON sessions (working_dir, last_message_at DESC);

				CREATE INDEX IF NOT EXISTS idx_messages_session
					ON messages (session_id, created_at ASC);

				CREATE INDEX IF NOT EXISTS idx_messages_summary
					ON messages (session_id, id DESC) WHERE is_summary = 1;
			`,
		},
	}
}

// RunMigrations applies all pending migrations, refusing to proceed if the
// on-disk schema is newer than this build understands (grounded on
// original_source's storage::schema::ensure_schema, which the teacher's
// migration runner lacked).
func RunMigrations(db *sql.DB) error {
	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	if currentVersion > SchemaVersion {
		return fmt.Errorf(
			"database schema version %d is newer than supported version %d; please upgrade cherry2k",
			currentVersion, SchemaVersion,
		)
	}

	for _, migration := range GetMigrations() {
		if migration.Version <= currentVersion {
			continue
		}
		if err := runMigration(db, migration); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", migration.Version, migration.Name, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table if it doesn't exist.
func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// getCurrentVersion returns the current schema version, 0 if none applied yet.
func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// runMigration executes a single migration transactionally.
func runMigration(db *sql.DB, migration Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		migration.Version, migration.Name,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// ConfigureDatabase applies SQLite pragmas and runs migrations. Pragma
// order matches original_source's connection.rs: busy_timeout and
// foreign_keys before schema setup.
func ConfigureDatabase(db *sql.DB) error {
	// SQLite serializes writes; WAL mode allows concurrent readers, so a
	// small pool is still useful for read-heavy workloads.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply pragma '%s': %w", pragma, err)
		}
	}

	if err := RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
