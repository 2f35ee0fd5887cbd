// Package postgres implements the storage.Backend interface on a PostgreSQL
// server, reusing the GORM backend's queues and background writer.
package postgres

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/skyblocks/flightdeck/internal/config"
	"github.com/skyblocks/flightdeck/internal/database"
	gormstorage "github.com/skyblocks/flightdeck/internal/storage/gorm"
	"gorm.io/gorm"
)

// Connect opens the server connection; tests replace it.
var Connect = func(cfg config.PostgresConfig, log zerolog.Logger) (*gorm.DB, error) {
	return database.OpenPostgres(cfg, log)
}

// Backend connects lazily on Init and then behaves like the GORM backend.
type Backend struct {
	*gormstorage.Backend
	cfg  config.PostgresConfig
	deps gormstorage.Dependencies
}

// New creates a new Postgres storage backend. deps.DB, when set, is used
// instead of connecting.
func New(cfg config.PostgresConfig, deps gormstorage.Dependencies) *Backend {
	return &Backend{
		Backend: gormstorage.New(deps),
		cfg:     cfg,
		deps:    deps,
	}
}

// Init connects if no DB was injected, then migrates and starts the writer.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := Connect(b.cfg, b.deps.DBLog)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		b.deps.DB = db
		b.Backend = gormstorage.New(b.deps)
	}
	return b.Backend.Init()
}
