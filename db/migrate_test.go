package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateCreatesJobsTable(t *testing.T) {
	db := openMemoryDB(t)

	require.NoError(t, Migrate(db, nil))

	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'jobs'").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "jobs", name)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openMemoryDB(t)

	require.NoError(t, Migrate(db, nil))
	require.NoError(t, Migrate(db, nil))

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count) // 000 and 001, each recorded once
}

func TestUniqueKeyIndexRejectsDuplicates(t *testing.T) {
	db := openMemoryDB(t)
	require.NoError(t, Migrate(db, nil))

	insert := `INSERT INTO jobs (id, name, unique_key, created_at, updated_at)
	           VALUES (?, 'report', ?, datetime('now'), datetime('now'))`

	_, err := db.Exec(insert, "a", `{"name":"report"}`)
	require.NoError(t, err)

	_, err = db.Exec(insert, "b", `{"name":"report"}`)
	assert.Error(t, err)

	// NULL unique keys never collide
	_, err = db.Exec(insert, "c", nil)
	require.NoError(t, err)
	_, err = db.Exec(insert, "d", nil)
	require.NoError(t, err)
}
