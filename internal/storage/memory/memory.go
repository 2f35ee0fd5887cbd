// internal/storage/memory/memory.go
package memory

import (
	"sync"

	"github.com/skyblocks/flightdeck/internal/config"
	"github.com/skyblocks/flightdeck/internal/geo"
	"github.com/skyblocks/flightdeck/pkg/core"
)

// RunRecord groups a run with all its time-series data
type RunRecord struct {
	Run       core.Run
	Snapshots []core.Snapshot
	Events    []core.RunEvent
	Summary   *core.RunSummary
}

// Backend keeps the current run in memory and exports it to a JSON file
// when it ends.
type Backend struct {
	cfg  config.MemoryConfig
	proj *geo.Projector

	run *RunRecord

	lastExportPath string
	lastMetadata   core.UploadMetadata
	mu             sync.RWMutex
}

// New creates a new memory backend. proj places the exported path on the
// map; nil leaves it out.
func New(cfg config.MemoryConfig, proj *geo.Projector) *Backend {
	return &Backend{
		cfg:  cfg,
		proj: proj,
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartRun begins recording a new run, discarding any unfinished one
func (b *Backend) StartRun(run *core.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.run = &RunRecord{Run: *run}
	return nil
}

// EndRun finalizes and exports the run
func (b *Backend) EndRun(summary *core.RunSummary) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.run == nil {
		return nil
	}
	s := *summary
	b.run.Summary = &s
	return b.exportJSON()
}

// RecordSnapshot stores a frame without its path history; the path is
// exported once from the summary.
func (b *Backend) RecordSnapshot(s *core.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.run == nil {
		return nil
	}
	snap := *s
	snap.PathHistory = nil
	b.run.Snapshots = append(b.run.Snapshots, snap)
	return nil
}

// RecordEvent stores a lifecycle event
func (b *Backend) RecordEvent(e *core.RunEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.run == nil {
		return nil
	}
	b.run.Events = append(b.run.Events, *e)
	return nil
}

// GetExportedFilePath returns the path of the last exported run
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the last exported run
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastMetadata
}

// Current returns a copy of the run being recorded, if any
func (b *Backend) Current() (RunRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.run == nil {
		return RunRecord{}, false
	}
	rec := *b.run
	rec.Snapshots = append([]core.Snapshot(nil), b.run.Snapshots...)
	rec.Events = append([]core.RunEvent(nil), b.run.Events...)
	return rec, true
}
