package migrations

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sessionsTable = Migration{
		Version:     1,
		Description: "sessions",
		Up:          `CREATE TABLE IF NOT EXISTS sessions (id TEXT PRIMARY KEY, project TEXT NOT NULL)`,
		Down:        `DROP TABLE IF EXISTS sessions`,
	}
	rollupsTable = Migration{
		Version:     2,
		Description: "rollups",
		Up:          `CREATE TABLE IF NOT EXISTS rollups (project TEXT PRIMARY KEY, body TEXT NOT NULL)`,
		Down:        `DROP TABLE IF EXISTS rollups`,
	}
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=ON")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteMigrations(t *testing.T) {
	ctx := context.Background()
	db := openMemoryDB(t)

	manager := NewManager()
	manager.Register(rollupsTable)
	manager.Register(sessionsTable)
	assert.Equal(t, 2, manager.Latest())

	require.NoError(t, manager.ApplySQLite(ctx, db))

	version, err := CurrentVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	_, err = db.Exec("INSERT INTO sessions (id, project) VALUES ('s1', 'p')")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO rollups (project, body) VALUES ('p', '{}')")
	require.NoError(t, err)

	// Applying again is a no-op
	require.NoError(t, manager.ApplySQLite(ctx, db))
	pending, err := manager.Pending(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, manager.RollbackSQLite(ctx, db))
	version, err = CurrentVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	_, err = db.Exec("INSERT INTO rollups (project, body) VALUES ('q', '{}')")
	assert.Error(t, err, "rollups table should have been dropped")
}

func TestRollbackWithNothingApplied(t *testing.T) {
	ctx := context.Background()
	db := openMemoryDB(t)

	manager := NewManager()
	manager.Register(sessionsTable)
	_, err := manager.Pending(ctx, db)
	require.NoError(t, err)
	assert.Error(t, manager.RollbackSQLite(ctx, db))
}

func TestRegisterDuplicatePanics(t *testing.T) {
	manager := NewManager()
	manager.Register(sessionsTable)
	assert.Panics(t, func() { manager.Register(sessionsTable) })
}
