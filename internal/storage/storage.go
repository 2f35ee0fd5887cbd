// internal/storage/storage.go
package storage

import (
	"errors"

	"github.com/skyblocks/flightdeck/pkg/core"
)

// ErrRunNotFound is returned by readers for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// ErrNoRun is returned when data arrives for a run that was never started.
var ErrNoRun = errors.New("no run in progress")

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Run management
	StartRun(run *core.Run) error
	EndRun(summary *core.RunSummary) error

	// Recording
	RecordSnapshot(s *core.Snapshot) error
	RecordEvent(e *core.RunEvent) error
}

// Uploadable is an optional interface for storage backends that produce
// a file per run.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}

// RunReader is an optional interface for backends that can load finished
// runs back.
type RunReader interface {
	GetRun(runID string) (*core.RunSummary, []core.RunEvent, error)
}

// QueueReporter is an optional interface for backends with write buffers.
type QueueReporter interface {
	QueueLengths() map[string]int
}
