package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wro-sim/simlink/internal/config"
	"github.com/wro-sim/simlink/internal/model"
)

func TestOpenSqlite_MigrateAndDump(t *testing.T) {
	db, err := OpenSqlite("")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	require.NoError(t, db.Create(&model.Run{UID: "run-1", Name: "lap"}).Error)

	dump := filepath.Join(t.TempDir(), "dump.db")
	require.NoError(t, DumpMemoryDBToDisk(db, dump))
	// a second dump replaces the first
	require.NoError(t, DumpMemoryDBToDisk(db, dump))

	disk, err := OpenSqlite(dump)
	require.NoError(t, err)
	var run model.Run
	require.NoError(t, disk.Where("uid = ?", "run-1").First(&run).Error)
	assert.Equal(t, "lap", run.Name)
}

func TestOpenSqlite_InMemoryIsPrivate(t *testing.T) {
	a, err := OpenSqlite("")
	require.NoError(t, err)
	b, err := OpenSqlite("")
	require.NoError(t, err)

	require.NoError(t, Migrate(a))
	assert.True(t, a.Migrator().HasTable(&model.Run{}))
	assert.False(t, b.Migrator().HasTable(&model.Run{}))
}

func TestDumpMemoryDBToDisk_NoPath(t *testing.T) {
	db, err := OpenSqlite("")
	require.NoError(t, err)
	assert.Error(t, DumpMemoryDBToDisk(db, ""))
}

func TestManager_FallsBackToSqlite(t *testing.T) {
	m := NewManager(zerolog.Nop())
	m.SqliteFilePath = filepath.Join(t.TempDir(), "fallback.db")

	err := m.Connect(config.DBConfig{Host: "127.0.0.1", Port: "1", Username: "u", Database: "d"})
	require.NoError(t, err)
	assert.True(t, m.ShouldSaveLocal)
	require.NoError(t, m.Setup())
	assert.True(t, m.DB.Migrator().HasTable(&model.VehicleState{}))

	_, err = os.Stat(m.SqliteFilePath)
	assert.NoError(t, err)
}

func TestGetBackupDBPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.db", "b.db", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "c.db"), 0755))

	paths, err := GetBackupDBPaths(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.db"), filepath.Join(dir, "b.db")}, paths)
}
