// Package gormstorage implements the storage.Backend interface on any GORM
// database, with internal queues and a background DB writer goroutine.
// Run and program rows are written synchronously so that samples and events
// can reference them; samples and events are batched.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/skyblocks/flightdeck/internal/cache"
	"github.com/skyblocks/flightdeck/internal/database"
	"github.com/skyblocks/flightdeck/internal/geo"
	"github.com/skyblocks/flightdeck/internal/logging"
	"github.com/skyblocks/flightdeck/internal/model"
	"github.com/skyblocks/flightdeck/internal/model/convert"
	"github.com/skyblocks/flightdeck/internal/queue"
	"github.com/skyblocks/flightdeck/internal/storage"
	"github.com/skyblocks/flightdeck/pkg/core"

	"gorm.io/gorm"
)

// ErrNoDB is returned by Init when no connection was injected.
var ErrNoDB = errors.New("no database connection")

const (
	defaultFlushInterval = 2 * time.Second
	// queue bound per table; the oldest rows are dropped beyond it
	queueLimit = 500_000
	// rows per transaction
	writeBatch = 5000
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager
	// DBLog receives schema migration output.
	DBLog     zerolog.Logger
	RunIndex  *cache.RunIndex
	Projector *geo.Projector
	// FlushInterval is the writer period. Zero means two seconds.
	FlushInterval time.Duration
}

// queues holds the write queues for batch DB insertion.
type queues struct {
	Samples *queue.Queue[model.FlightSample]
	Events  *queue.Queue[model.FlightEvent]
}

func newQueues() *queues {
	return &queues{
		Samples: queue.NewBounded[model.FlightSample](queueLimit),
		Events:  queue.NewBounded[model.FlightEvent](queueLimit),
	}
}

// Backend implements storage.Backend with queue-based batch writes.
type Backend struct {
	deps     Dependencies
	queues   *queues
	flushMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.RunIndex == nil {
		deps.RunIndex = cache.NewRunIndex()
	}
	if deps.Projector == nil {
		deps.Projector, _ = geo.NewProjector(0, 0)
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

func (b *Backend) log() *slog.Logger {
	return b.deps.LogManager.Logger()
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return ErrNoDB
	}
	if err := database.Migrate(b.deps.DB, b.deps.DBLog); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writer()
	return nil
}

// Close stops the writer and flushes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	b.stopOnce.Do(func() {
		close(b.stopChan)
		<-b.done
	})
	return b.Flush()
}

// StartRun performs program get-or-insert and run create in the DB.
func (b *Backend) StartRun(run *core.Run) error {
	db := b.deps.DB
	if db == nil {
		return ErrNoDB
	}

	program := convert.CoreToProgram(*run, nil)
	created, err := program.GetOrInsert(db)
	if err != nil {
		return fmt.Errorf("failed to get or insert program: %w", err)
	}
	if created {
		b.log().Debug("Stored new program", "fingerprint", program.Fingerprint, "instructions", program.InstructionCount)
	}

	row := convert.CoreToFlightRun(*run, b.deps.Projector)
	row.ProgramID = &program.ID
	if err := db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	b.deps.RunIndex.Set(run.ID, row.ID)
	b.log().Info("Run recording started", "runId", run.ID, "rowId", row.ID)
	return nil
}

// EndRun flushes the run's rows and stores the summary on the run row.
func (b *Backend) EndRun(summary *core.RunSummary) error {
	rowID, ok := b.deps.RunIndex.Get(summary.RunID)
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrRunNotFound, summary.RunID)
	}
	if err := b.Flush(); err != nil {
		return err
	}

	var row model.FlightRun
	if err := b.deps.DB.First(&row, rowID).Error; err != nil {
		return fmt.Errorf("failed to load run %s: %w", summary.RunID, err)
	}
	convert.ApplySummary(&row, *summary, b.deps.Projector)
	if err := b.deps.DB.Save(&row).Error; err != nil {
		return fmt.Errorf("failed to update run %s: %w", summary.RunID, err)
	}

	b.deps.RunIndex.Delete(summary.RunID)
	b.log().Info("Run recording finished", "runId", summary.RunID, "frames", summary.Frames, "state", summary.State)
	return nil
}

// RecordSnapshot converts and queues a flight sample.
func (b *Backend) RecordSnapshot(s *core.Snapshot) error {
	rowID, ok := b.deps.RunIndex.Get(s.RunID)
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrRunNotFound, s.RunID)
	}
	b.queues.Samples.Push(convert.CoreToSample(*s, rowID, b.deps.Projector))
	return nil
}

// RecordEvent converts and queues a run event.
func (b *Backend) RecordEvent(e *core.RunEvent) error {
	rowID, ok := b.deps.RunIndex.Get(e.RunID)
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrRunNotFound, e.RunID)
	}
	b.queues.Events.Push(convert.CoreToEvent(*e, rowID, b.deps.Projector))
	return nil
}

// QueueLengths reports the rows waiting for the writer.
func (b *Backend) QueueLengths() map[string]int {
	return map[string]int{
		"samples": b.queues.Samples.Len(),
		"events":  b.queues.Events.Len(),
	}
}

// Dropped reports rows lost to full queues.
func (b *Backend) Dropped() uint64 {
	return b.queues.Samples.Dropped() + b.queues.Events.Dropped()
}

// GetRun loads a run summary and its events.
func (b *Backend) GetRun(runID string) (*core.RunSummary, []core.RunEvent, error) {
	var row model.FlightRun
	err := b.deps.DB.
		Preload("Events", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("run_id = ?", runID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", storage.ErrRunNotFound, runID)
		}
		return nil, nil, err
	}

	summary := convert.FlightRunToSummary(row)
	events := make([]core.RunEvent, 0, len(row.Events))
	for _, e := range row.Events {
		events = append(events, convert.EventToCore(e, runID))
	}
	return &summary, events, nil
}

// GetSamples loads the recorded samples of a run in frame order.
func (b *Backend) GetSamples(runID string) ([]core.Snapshot, error) {
	rowID, err := b.rowID(runID)
	if err != nil {
		return nil, err
	}
	var rows []model.FlightSample
	if err := b.deps.DB.Where("flight_run_id = ?", rowID).Order("frame").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Snapshot, 0, len(rows))
	for _, s := range rows {
		out = append(out, convert.SampleToSnapshot(s, runID))
	}
	return out, nil
}

func (b *Backend) rowID(runID string) (uint, error) {
	if id, ok := b.deps.RunIndex.Get(runID); ok {
		return id, nil
	}
	var row model.FlightRun
	err := b.deps.DB.Select("id").Where("run_id = ?", runID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("%w: %s", storage.ErrRunNotFound, runID)
	}
	return row.ID, err
}

// Flush writes every queued row.
func (b *Backend) Flush() error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	// samples first; events are rarer and the end-of-run summary waits on both
	for !b.queues.Samples.Empty() {
		if err := writeQueue(b.deps.DB, b.queues.Samples, "flight samples", b.log()); err != nil {
			return err
		}
	}
	for !b.queues.Events.Empty() {
		if err := writeQueue(b.deps.DB, b.queues.Events, "flight events", b.log()); err != nil {
			return err
		}
	}
	return nil
}

// writeQueue writes one batch from a queue to the database in a transaction.
// On failure the batch goes back to the front of the queue.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) error {
	items := q.Take(writeBatch)
	if len(items) == 0 {
		return nil
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&items, 1000).Error
	})
	if err != nil {
		log.Error("Error writing batch", "table", name, "rows", len(items), "error", err)
		q.Requeue(items...)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	log.Debug("Wrote batch", "table", name, "rows", len(items))
	return nil
}

// writer periodically drains the queues into the DB.
func (b *Backend) writer() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			// errors are logged by writeQueue; the rows stay queued for the next tick
			_ = b.Flush()
		}
	}
}
