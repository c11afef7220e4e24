package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	return db
}

func TestConfigureDatabase(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	require.NoError(t, ConfigureDatabase(db))

	var count int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'",
	).Scan(&count))
	assert.Equal(t, 1, count)

	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(GetMigrations()), count)
}

func TestRunMigrations(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	require.NoError(t, RunMigrations(db))

	for _, table := range []string{"sessions", "messages"} {
		var count int
		require.NoError(t, db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&count))
		assert.Equalf(t, 1, count, "expected table %s to exist", table)
	}

	var indexCount int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND tbl_name='messages'",
	).Scan(&indexCount))
	assert.GreaterOrEqual(t, indexCount, 2)
}

func TestRunMigrationsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	require.NoError(t, RunMigrations(db))
	require.NoError(t, RunMigrations(db))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(GetMigrations()), count)
}

func TestRunMigrations_RefusesNewerSchema(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	require.NoError(t, ensureMigrationsTable(db))
	_, err := db.Exec(
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		SchemaVersion+1, "from_the_future",
	)
	require.NoError(t, err)

	err = RunMigrations(db)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported version")
}

func TestGetCurrentVersion(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	version, err := getCurrentVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	require.NoError(t, ensureMigrationsTable(db))
	_, err = db.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", 1, "test_migration")
	require.NoError(t, err)

	version, err = getCurrentVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestGetMigrations(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)

	for i := 1; i < len(migrations); i++ {
		assert.Greater(t, migrations[i].Version, migrations[i-1].Version)
	}

	for _, m := range migrations {
		assert.Greater(t, m.Version, 0)
		assert.NotEmpty(t, m.Name)
		assert.NotEmpty(t, m.SQL)
	}
}
