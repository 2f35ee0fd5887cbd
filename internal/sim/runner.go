package sim

import (
	"context"
	"log/slog"
	"sync"

	"github.com/skyblocks/flightdeck/internal/channel"
	"github.com/skyblocks/flightdeck/pkg/core"
)

// SnapshotSink receives every frame of a run, in order.
type SnapshotSink interface {
	OnSnapshot(core.Snapshot)
}

// EventSink receives run lifecycle events, in order.
type EventSink interface {
	OnEvent(core.RunEvent)
}

// frame carries either a snapshot or an event to the sinks.
type frame struct {
	snapshot *core.Snapshot
	event    *core.RunEvent
}

// frameBuffer is how far sinks may lag behind the frame loop.
const frameBuffer = 256

// Runner drives a Simulator from a Clock and fans its output out to sinks.
// Sinks run on their own goroutine so slow storage never stalls the frame
// loop by more than frameBuffer frames.
type Runner struct {
	sim      *Simulator
	newClock func() Clock
	logger   *slog.Logger

	mu        sync.Mutex
	active    bool
	out       channel.Channel[frame]
	snapSinks []SnapshotSink
	evSinks   []EventSink
}

// NewRunner wires sim to a clock factory; each run gets a fresh clock.
func NewRunner(sim *Simulator, newClock func() Clock, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Runner{sim: sim, newClock: newClock, logger: logger}
	sim.OnEvent(r.forwardEvent)
	return r
}

// AddSnapshotSink registers s for all later runs.
func (r *Runner) AddSnapshotSink(s SnapshotSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapSinks = append(r.snapSinks, s)
}

// AddEventSink registers s for all later runs.
func (r *Runner) AddEventSink(s EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evSinks = append(r.evSinks, s)
}

// Simulator returns the driven simulator.
func (r *Runner) Simulator() *Simulator {
	return r.sim
}

// Active reports whether a run is in progress.
func (r *Runner) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Run executes run to completion and returns its summary. A second call
// while a run is active returns ErrRunActive immediately. Cancelling ctx
// stops the run at the next instruction boundary in the Cancelled state.
func (r *Runner) Run(ctx context.Context, run core.Run) (core.RunSummary, error) {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return core.RunSummary{}, ErrRunActive
	}
	r.active = true
	out := channel.New[frame](frameBuffer)
	r.out = out
	snapSinks := append([]SnapshotSink(nil), r.snapSinks...)
	evSinks := append([]EventSink(nil), r.evSinks...)
	r.mu.Unlock()

	drained := channel.Pump[frame](out, func(f frame) {
		switch {
		case f.snapshot != nil:
			for _, s := range snapSinks {
				s.OnSnapshot(*f.snapshot)
			}
		case f.event != nil:
			for _, s := range evSinks {
				s.OnEvent(*f.event)
			}
		}
	})

	defer func() {
		r.mu.Lock()
		r.out = nil
		r.active = false
		r.mu.Unlock()
	}()

	if err := r.sim.Start(run); err != nil {
		r.closeOut(out)
		<-drained
		return core.RunSummary{}, err
	}
	r.logger.Info("Simulation started", "runId", run.ID, "instructions", len(run.Instructions))

	first := r.sim.Snapshot()
	out.Send(frame{snapshot: &first})

	clock := r.newClock()
	defer clock.Stop()

	cancelled := false
	for !r.sim.Done() {
		if !cancelled && ctx.Err() != nil {
			r.logger.Info("Simulation cancel requested", "runId", run.ID)
			r.sim.Cancel()
			cancelled = true
		}
		snap := r.sim.Advance(clock.Wait())
		out.Send(frame{snapshot: &snap})
	}

	r.closeOut(out)
	<-drained

	summary := r.sim.Summary()
	r.logger.Info("Simulation ended",
		"runId", run.ID,
		"state", summary.State,
		"simulatedSeconds", summary.SimulatedSeconds,
		"frames", summary.Frames,
		"leftFlightArea", summary.LeftFlightArea)
	return summary, nil
}

// closeOut detaches out before closing it so late events are not sent on a
// closed channel.
func (r *Runner) closeOut(out channel.Channel[frame]) {
	r.mu.Lock()
	r.out = nil
	r.mu.Unlock()
	out.Close()
}

func (r *Runner) forwardEvent(ev core.RunEvent) {
	r.mu.Lock()
	out := r.out
	r.mu.Unlock()
	if out == nil {
		return
	}
	if ev.Type == core.EventOutOfBounds {
		r.logger.Warn(ev.Message, "runId", ev.RunID, "x", ev.Pose.X, "y", ev.Pose.Y)
	}
	out.Send(frame{event: &ev})
}
