package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wro-sim/simlink/internal/config"
	"github.com/wro-sim/simlink/internal/database"
	"github.com/wro-sim/simlink/internal/logging"
	"github.com/wro-sim/simlink/internal/storage"
	gormstorage "github.com/wro-sim/simlink/internal/storage/gorm"
	"github.com/wro-sim/simlink/internal/storage/memory"
	sqlitestorage "github.com/wro-sim/simlink/internal/storage/sqlite"
	wsstorage "github.com/wro-sim/simlink/internal/storage/websocket"
)

// storageEnv is what the backends need beyond their own config section.
type storageEnv struct {
	Logger       *slog.Logger
	Zerolog      zerolog.Logger
	LogsDir      string
	SessionStart time.Time
	DB           config.DBConfig
	APIServerURL string
	APIKey       string
}

func createStorageBackend(cfg config.StorageConfig, env storageEnv) (storage.Backend, error) {
	logger := env.Logger
	switch cfg.Type {
	case "postgres":
		mgr := database.NewManager(env.Zerolog)
		mgr.SqliteFilePath = sessionFile(env, "db")
		if err := mgr.Connect(env.DB); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if mgr.ShouldSaveLocal {
			logger.Warn("Postgres unreachable, recording to local SQLite", "path", mgr.SqliteFilePath)
		}
		logger.Info("Postgres storage backend initialized")
		return gormstorage.New(gormstorage.Dependencies{
			DB:     mgr.DB,
			Logger: logger,
		}), nil

	case "sqlite":
		path := cfg.SQLite.Path
		if path == "" {
			path = sessionFile(env, "db")
		}
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: cfg.SQLite.DumpInterval,
			DumpPath:     path,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend initialized", "path", path)
		return backend, nil

	case "websocket":
		wsURL := cfg.WebSocket.URL
		if wsURL == "" {
			wsURL = httpToWS(env.APIServerURL) + "/api/v1/stream"
		}
		token := cfg.WebSocket.AuthToken
		if token == "" {
			token = env.APIKey
		}
		logger.Info("WebSocket storage backend initialized", "url", wsURL)
		return wsstorage.New(wsstorage.Config{
			URL:       wsURL,
			AuthToken: token,
		}, logger), nil

	case "none":
		return storage.Nop{}, nil

	case "memory", "":
		logger.Info("Memory storage backend initialized", "outputDir", cfg.Memory.OutputDir)
		return memory.New(cfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

func sessionFile(env storageEnv, ext string) string {
	return filepath.Join(env.LogsDir, fmt.Sprintf("%s_%s.%s", AppName, env.SessionStart.Format(logging.SessionStamp), ext))
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
