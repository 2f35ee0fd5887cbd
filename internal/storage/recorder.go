package storage

import (
	"log/slog"
	"sync"

	"github.com/skyblocks/flightdeck/pkg/core"
)

// Recorder connects a Backend to the simulator's snapshot and event sinks.
// The caller announces a run with Prepare before starting it; the backend
// sees StartRun when the simulator reports run_started, so a rejected start
// never reaches storage.
type Recorder struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]core.Run
	active  string
	failed  bool
}

// NewRecorder wraps backend. A nil logger discards log output.
func NewRecorder(backend Backend, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{backend: backend, logger: logger, pending: make(map[string]core.Run)}
}

// Backend returns the wrapped backend.
func (r *Recorder) Backend() Backend {
	return r.backend
}

// Prepare registers run so that its run_started event can open it in the
// backend.
func (r *Recorder) Prepare(run core.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[run.ID] = run
}

// Discard forgets a prepared run that never started.
func (r *Recorder) Discard(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, runID)
}

func (r *Recorder) OnEvent(e core.RunEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.Type == core.EventRunStarted {
		run, ok := r.pending[e.RunID]
		if !ok {
			r.logger.Warn("Run started without being prepared", "runId", e.RunID)
			run = core.Run{ID: e.RunID, StartTime: e.Time}
		}
		delete(r.pending, e.RunID)
		r.active = e.RunID
		r.failed = false
		if err := r.backend.StartRun(&run); err != nil {
			r.logger.Error("Failed to start run in storage", "runId", e.RunID, "error", err)
			r.failed = true
			return
		}
	}
	if r.failed || e.RunID != r.active {
		return
	}
	if err := r.backend.RecordEvent(&e); err != nil {
		r.logger.Error("Failed to record event", "runId", e.RunID, "type", e.Type, "error", err)
	}
}

func (r *Recorder) OnSnapshot(s core.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed || s.RunID != r.active {
		return
	}
	if err := r.backend.RecordSnapshot(&s); err != nil {
		r.logger.Error("Failed to record snapshot", "runId", s.RunID, "frame", s.Frame, "error", err)
	}
}

// Finish closes the active run with its summary.
func (r *Recorder) Finish(summary core.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if summary.RunID != r.active {
		return ErrNoRun
	}
	r.active = ""
	if r.failed {
		return nil
	}
	return r.backend.EndRun(&summary)
}
