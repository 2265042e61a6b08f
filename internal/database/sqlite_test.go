package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/CosmoTheDev/repowatch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cursorRow struct {
	Key       string `db:"dedup_key"`
	Marker    string `db:"marker"`
	UpdatedAt string `db:"updated_at"`
}

func newTestDB(t *testing.T) DB {
	t.Helper()
	db, err := Open(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))

	var n int
	require.NoError(t, db.Get(context.Background(), &n, `SELECT COUNT(*) FROM schema_migrations`))
	assert.Equal(t, 1, n)
}

func TestUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.Upsert(ctx, "cursors", cursorRow{Key: "a/b", Marker: "100", UpdatedAt: "t1"}, []string{"dedup_key"}))
	require.NoError(t, db.Upsert(ctx, "cursors", cursorRow{Key: "a/b", Marker: "200", UpdatedAt: "t2"}, []string{"dedup_key"}))

	var got cursorRow
	require.NoError(t, db.Get(ctx, &got, `SELECT dedup_key, marker, updated_at FROM cursors WHERE dedup_key = ?`, "a/b"))
	assert.Equal(t, "200", got.Marker)
	assert.Equal(t, "t2", got.UpdatedAt)
}

func TestGetMissingRowReturnsErrNoRows(t *testing.T) {
	db := newTestDB(t)
	var got cursorRow
	err := db.Get(context.Background(), &got, `SELECT dedup_key, marker, updated_at FROM cursors WHERE dedup_key = ?`, "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSelectScansByColumnName(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	for _, k := range []string{"x/1", "x/2"} {
		require.NoError(t, db.Upsert(ctx, "cursors", cursorRow{Key: k, Marker: "m-" + k, UpdatedAt: "t"}, []string{"dedup_key"}))
	}

	var rows []cursorRow
	// columns deliberately out of struct order
	require.NoError(t, db.Select(ctx, &rows, `SELECT marker, dedup_key FROM cursors ORDER BY dedup_key`))
	require.Len(t, rows, 2)
	assert.Equal(t, "x/1", rows[0].Key)
	assert.Equal(t, "m-x/2", rows[1].Marker)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestMySQLAdapt(t *testing.T) {
	in := "id INTEGER PRIMARY KEY AUTOINCREMENT,"
	assert.Equal(t, "id INT NOT NULL AUTO_INCREMENT PRIMARY KEY,", mysqlAdapt(in))
}

func TestSQLitePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "repowatch.db")
	db, err := New(config.DatabaseConfig{Path: path})
	require.NoError(t, err)
	defer db.Close()

	s, ok := db.(*SQLiteDB)
	require.True(t, ok, "empty driver selects sqlite")
	assert.Equal(t, path, s.Path())
	assert.Equal(t, "sqlite", s.Driver())
}
