package sim

import (
	"sync"

	"github.com/skyblocks/flightdeck/pkg/core"
)

// Recorder keeps every snapshot and event in memory.
type Recorder struct {
	mu        sync.Mutex
	snapshots []core.Snapshot
	events    []core.RunEvent
}

func (r *Recorder) OnSnapshot(s core.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *Recorder) OnEvent(e core.RunEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Snapshots() []core.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Snapshot(nil), r.snapshots...)
}

func (r *Recorder) Events() []core.RunEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.RunEvent(nil), r.events...)
}

// EventsOf returns the recorded events of type t.
func (r *Recorder) EventsOf(t core.RunEventType) []core.RunEvent {
	var out []core.RunEvent
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
