// Package sqlitestorage implements the storage.Backend interface using an in-memory
// SQLite database with periodic disk dumps via VACUUM INTO.
// It wraps the GORM backend; the only SQLite-specific concerns are creating
// the in-memory DB and dumping it to disk.
package sqlitestorage

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/skyblocks/flightdeck/internal/cache"
	"github.com/skyblocks/flightdeck/internal/config"
	"github.com/skyblocks/flightdeck/internal/database"
	"github.com/skyblocks/flightdeck/internal/geo"
	"github.com/skyblocks/flightdeck/internal/logging"
	gormstorage "github.com/skyblocks/flightdeck/internal/storage/gorm"

	"gorm.io/gorm"
)

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      config.SQLiteConfig
	log      *logging.SlogManager
	stopChan chan struct{}
	done     chan struct{}
	closed   bool
}

// New creates a new SQLite storage backend.
func New(cfg config.SQLiteConfig, runIndex *cache.RunIndex, proj *geo.Projector, logManager *logging.SlogManager, dbLog zerolog.Logger) (*Backend, error) {
	db, err := database.OpenSQLite("", dbLog)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}
	if logManager == nil {
		logManager = logging.NewSlogManager()
	}

	gormBackend := gormstorage.New(gormstorage.Dependencies{
		DB:         db,
		LogManager: logManager,
		DBLog:      dbLog,
		RunIndex:   runIndex,
		Projector:  proj,
	})

	return &Backend{
		Backend:  gormBackend,
		db:       db,
		cfg:      cfg,
		log:      logManager,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.Path != "" && b.cfg.DumpInterval > 0 {
		go b.dumpLoop()
	} else {
		close(b.done)
	}
	return nil
}

// Close stops the dump goroutine, flushes the GORM backend and writes a
// final dump.
func (b *Backend) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.stopChan)
	<-b.done

	if err := b.Backend.Close(); err != nil {
		return err
	}
	if b.cfg.Path == "" {
		return nil
	}
	_, err := b.Dump()
	return err
}

// Dump writes the database to the configured path.
func (b *Backend) Dump() (time.Duration, error) {
	return database.DumpMemoryToDisk(b.db, b.cfg.Path)
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if took, err := b.Dump(); err != nil {
				b.log.Logger().Error("Error dumping to disk", "path", b.cfg.Path, "error", err)
			} else {
				b.log.Logger().Debug("Dumped to disk", "path", b.cfg.Path, "took", took)
			}
		}
	}
}
