package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skyblocks/flightdeck/internal/cache"
	"github.com/skyblocks/flightdeck/internal/config"
	"github.com/skyblocks/flightdeck/internal/geo"
	"github.com/skyblocks/flightdeck/internal/logging"
	"github.com/skyblocks/flightdeck/internal/storage"
	gormstorage "github.com/skyblocks/flightdeck/internal/storage/gorm"
	"github.com/skyblocks/flightdeck/internal/storage/memory"
	pgstorage "github.com/skyblocks/flightdeck/internal/storage/postgres"
	sqlitestorage "github.com/skyblocks/flightdeck/internal/storage/sqlite"
	wsstorage "github.com/skyblocks/flightdeck/internal/storage/websocket"
)

// createStorageBackend builds the backend named by storage.type. The
// backend is not initialized.
func createStorageBackend(
	storageCfg config.StorageConfig,
	proj *geo.Projector,
	logManager *logging.SlogManager,
	dbLog zerolog.Logger,
	sessionStart time.Time,
) (storage.Backend, error) {
	logger := logManager.Logger()
	switch strings.ToLower(storageCfg.Type) {
	case "postgres":
		logger.Info("Postgres storage backend selected", "host", storageCfg.Postgres.Host, "database", storageCfg.Postgres.Database)
		return pgstorage.New(storageCfg.Postgres, gormstorage.Dependencies{
			LogManager: logManager,
			DBLog:      dbLog,
			RunIndex:   cache.NewRunIndex(),
			Projector:  proj,
		}), nil

	case "sqlite":
		sqliteCfg := storageCfg.SQLite
		if sqliteCfg.Path == "" {
			sqliteCfg.Path = filepath.Join(".", fmt.Sprintf("%s_%s.db", AppName, sessionStart.Format("20060102_150405")))
		}
		backend, err := sqlitestorage.New(sqliteCfg, cache.NewRunIndex(), proj, logManager, dbLog)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend selected", "path", sqliteCfg.Path, "dumpInterval", sqliteCfg.DumpInterval)
		return backend, nil

	case "websocket":
		wsCfg := storageCfg.WebSocket
		if wsCfg.URL == "" {
			wsCfg.URL = httpToWS(config.GetString("api.serverUrl")) + "/ws/ingest"
		}
		logger.Info("WebSocket storage backend selected", "url", wsCfg.URL)
		return wsstorage.New(wsCfg, logger), nil

	case "memory", "":
		logger.Info("Memory storage backend selected", "outputDir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory, proj), nil
	}
	return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
