package database

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/horoscope-bot/internal/database/migrations"
	"github.com/Proton-105/horoscope-bot/pkg/config"
	"github.com/Proton-105/horoscope-bot/pkg/logger"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()

	db, err := Open(context.Background(), config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyEmbeddedIsIdempotent(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, logger.Discard())
	ctx := context.Background()

	applied, err := m.ApplyEmbedded(ctx)
	require.NoError(t, err)

	names, err := ListMigrations(migrations.FS, ".")
	require.NoError(t, err)
	assert.Equal(t, names, applied)

	again, err := m.ApplyEmbedded(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	recorded, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, names, recorded)

	_, err = db.ExecContext(ctx, `SELECT user_id, is_active, last_delivery_date FROM profiles`)
	assert.NoError(t, err)
}

func TestApplyRollsBackFailedMigration(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, logger.Discard())

	fsys := fstest.MapFS{
		"0001_ok.up.sql":     {Data: []byte("CREATE TABLE a (id INTEGER PRIMARY KEY);")},
		"0002_broken.up.sql": {Data: []byte("CREATE TABLE b (id INTEGER PRIMARY KEY); NOT SQL AT ALL;")},
		"README.md":          {Data: []byte("ignored")},
	}

	applied, err := m.Apply(context.Background(), fsys, ".")
	require.Error(t, err)
	assert.Equal(t, []string{"0001_ok.up.sql"}, applied)

	recorded, err := m.Applied(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_ok.up.sql"}, recorded)
}

func TestListMigrationsSorted(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_b.up.sql":   {Data: []byte("")},
		"0001_a.up.sql":   {Data: []byte("")},
		"0001_a.down.sql": {Data: []byte("")},
	}

	names, err := ListMigrations(fsys, ".")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a.up.sql", "0002_b.up.sql"}, names)
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("CREATE TABLE a (x INT);\n\n  ;CREATE INDEX i ON a (x);\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, got)
}

func TestDriverName(t *testing.T) {
	name, err := DriverName("sqlite")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", name)

	name, err = DriverName("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", name)

	_, err = DriverName("mysql")
	assert.Error(t, err)
}
