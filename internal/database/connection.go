package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Open opens (creating if necessary) the SQLite database at path, sets
// restrictive file permissions, applies pragmas, and runs migrations.
// Grounded on original_source's storage::connection::open_at: create the
// parent directory, configure pragmas and migrate (which creates the
// file), then chmod the file to 0600 on POSIX.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ConfigureDatabase(db); err != nil {
		db.Close()
		return nil, err
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(path, 0600); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set database file permissions: %w", err)
		}
	}

	return db, nil
}
