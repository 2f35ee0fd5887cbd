// Package database opens and migrates the gorm connections used by the
// run recorders.
package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/skyblocks/flightdeck/internal/config"
	"github.com/skyblocks/flightdeck/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNoDumpPath is returned when an in-memory database has nowhere to go.
var ErrNoDumpPath = errors.New("sqlite file path not set")

var memorySeq atomic.Uint64

var sqlitePragmas = []string{
	"PRAGMA user_version = 1;",
	"PRAGMA journal_mode = MEMORY;",
	"PRAGMA synchronous = OFF;",
	"PRAGMA cache_size = -32000;",
	"PRAGMA temp_store = MEMORY;",
	"PRAGMA foreign_keys = ON;",
}

// PostgresDSN builds the connection string for cfg.
func PostgresDSN(cfg config.PostgresConfig) string {
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=%s`,
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, sslmode)
}

// OpenPostgres connects to Postgres and checks the connection.
func OpenPostgres(cfg config.PostgresConfig, log zerolog.Logger) (*gorm.DB, error) {
	log.Debug().Str("host", cfg.Host).Str("port", cfg.Port).Str("database", cfg.Database).
		Msg("Connecting to Postgres DB")

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  PostgresDSN(cfg),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        10000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to validate postgres connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)

	log.Info().Msg("Connected to Postgres DB")
	return db, nil
}

// OpenSQLite opens a SQLite database at path. An empty path opens a private
// in-memory database, meant to be dumped with DumpMemoryToDisk.
func OpenSQLite(path string, log zerolog.Logger) (*gorm.DB, error) {
	dsn := path
	if path == "" {
		dsn = fmt.Sprintf("file:flightdeck-%d?mode=memory&cache=shared", memorySeq.Add(1))
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	// one connection keeps the pragmas and the in-memory database alive
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	for _, pragma := range sqlitePragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	if path == "" {
		log.Info().Msg("Using local SQLite DB in memory with periodic disk dump")
	} else {
		log.Info().Str("path", path).Msg("Using local SQLite DB")
	}
	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB, log zerolog.Logger) error {
	if db.Dialector.Name() == "postgres" {
		// geometry columns are WKB blobs; PostGIS only adds query support
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS postgis;`).Error; err != nil {
			log.Warn().Err(err).Msg("PostGIS extension not available")
		}
	}

	log.Info().Msg("Migrating schema")
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	log.Info().Msg("Database setup complete")
	return nil
}

// DumpMemoryToDisk vacuums the database into a file, replacing any
// previous dump.
func DumpMemoryToDisk(db *gorm.DB, path string) (time.Duration, error) {
	if path == "" {
		return 0, ErrNoDumpPath
	}
	if strings.ContainsRune(path, '\'') {
		return 0, fmt.Errorf("invalid dump path %q", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("error creating dump directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return 0, fmt.Errorf("error removing existing DB file: %w", err)
		}
	}

	start := time.Now()
	if err := db.Exec("VACUUM INTO 'file:" + path + "';").Error; err != nil {
		return 0, fmt.Errorf("error dumping memory DB to disk: %w", err)
	}
	return time.Since(start), nil
}

// BackupPaths returns the .db dumps in dir.
func BackupPaths(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var dbPaths []string
	for _, file := range files {
		if !file.IsDir() && filepath.Ext(file.Name()) == ".db" {
			dbPaths = append(dbPaths, filepath.Join(dir, file.Name()))
		}
	}
	return dbPaths, nil
}
