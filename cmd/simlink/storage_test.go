package main

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wro-sim/simlink/internal/config"
	"github.com/wro-sim/simlink/internal/storage"
	"github.com/wro-sim/simlink/internal/storage/memory"
	sqlitestorage "github.com/wro-sim/simlink/internal/storage/sqlite"
	wsstorage "github.com/wro-sim/simlink/internal/storage/websocket"
)

func testEnv(t *testing.T) storageEnv {
	return storageEnv{
		Logger:       slog.Default(),
		Zerolog:      zerolog.Nop(),
		LogsDir:      t.TempDir(),
		SessionStart: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		APIServerURL: "https://dash.example.com/",
		APIKey:       "k",
	}
}

func TestCreateStorageBackend(t *testing.T) {
	env := testEnv(t)

	b, err := createStorageBackend(config.StorageConfig{Type: "memory"}, env)
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)

	b, err = createStorageBackend(config.StorageConfig{Type: "none"}, env)
	require.NoError(t, err)
	assert.Equal(t, storage.Nop{}, b)

	b, err = createStorageBackend(config.StorageConfig{Type: "sqlite"}, env)
	require.NoError(t, err)
	assert.IsType(t, &sqlitestorage.Backend{}, b)

	b, err = createStorageBackend(config.StorageConfig{Type: "websocket"}, env)
	require.NoError(t, err)
	assert.IsType(t, &wsstorage.Backend{}, b)

	_, err = createStorageBackend(config.StorageConfig{Type: "cassandra"}, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage type")
}

func TestSessionFile(t *testing.T) {
	env := testEnv(t)
	assert.Equal(t, filepath.Join(env.LogsDir, "simlink_20260301_120000.db"), sessionFile(env, "db"))
}

func TestHTTPToWS(t *testing.T) {
	assert.Equal(t, "wss://dash.example.com", httpToWS("https://dash.example.com/"))
	assert.Equal(t, "ws://localhost:5000", httpToWS("http://localhost:5000"))
}
