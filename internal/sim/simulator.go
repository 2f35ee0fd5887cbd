// Package sim animates a flattened instruction sequence into a continuous
// pose trace using the same derivations as code generation.
package sim

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/skyblocks/flightdeck/pkg/core"
)

// DefaultGridSize is the side of the square flight area in metres.
const DefaultGridSize = 10.0

var (
	// ErrRunActive rejects a start request while another run is in flight.
	ErrRunActive = errors.New("a simulation run is already active")
	// ErrNoInstructions rejects a run with an empty sequence.
	ErrNoInstructions = errors.New("nothing to simulate")
	// ErrInvalidInstruction rejects a sequence with an instruction that
	// could never finish, e.g. a move at zero speed.
	ErrInvalidInstruction = errors.New("invalid instruction")
)

// Simulator is the run state machine: Idle -> Running -> Idle | Cancelled.
// Advance is the only transition that moves the drone. All methods are safe
// for concurrent use; listeners are called without the lock held.
type Simulator struct {
	mu       sync.Mutex
	gridSize float64

	state  core.RunState
	run    core.Run
	instrs []core.Instruction
	index  int

	segStart   core.Pose
	segElapsed float64

	pose            core.Pose
	path            []core.PathPoint
	outOfBounds     bool
	notified        bool
	cancelRequested bool

	elapsed  float64
	frame    uint
	distance float64
	maxAlt   float64

	listeners []func(core.RunEvent)
	pending   []core.RunEvent
}

// New returns an idle simulator. gridSize <= 0 selects DefaultGridSize.
func New(gridSize float64) *Simulator {
	if gridSize <= 0 {
		gridSize = DefaultGridSize
	}
	return &Simulator{
		gridSize: gridSize,
		state:    core.RunIdle,
		pose:     core.GroundPose(),
		path:     []core.PathPoint{{}},
	}
}

// OnEvent registers a listener for run lifecycle events.
func (s *Simulator) OnEvent(fn func(core.RunEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// GridSize returns the side of the flight area.
func (s *Simulator) GridSize() float64 {
	return s.gridSize
}

// Start resets the pose and begins run. It fails with ErrRunActive while a
// run is in progress and leaves that run untouched.
func (s *Simulator) Start(run core.Run) error {
	s.mu.Lock()
	if s.state == core.RunRunning {
		s.mu.Unlock()
		return ErrRunActive
	}
	if len(run.Instructions) == 0 {
		s.mu.Unlock()
		return ErrNoInstructions
	}
	if err := checkDurations(run.Instructions); err != nil {
		s.mu.Unlock()
		return err
	}

	if run.GridSize <= 0 {
		run.GridSize = s.gridSize
	}
	run.InstructionCount = len(run.Instructions)
	s.run = run
	s.instrs = slices.Clone(run.Instructions)
	s.index = 0
	s.state = core.RunRunning
	s.pose = core.GroundPose()
	s.path = []core.PathPoint{{}}
	s.outOfBounds = false
	s.notified = false
	s.cancelRequested = false
	s.elapsed = 0
	s.frame = 0
	s.distance = 0
	s.maxAlt = 0

	s.emit(core.EventRunStarted, "")
	s.beginSegment()
	s.mu.Unlock()

	s.flush()
	return nil
}

// Cancel asks the active run to stop. The current instruction completes
// first; the run then ends in the Cancelled state.
func (s *Simulator) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == core.RunRunning {
		s.cancelRequested = true
	}
}

// Done reports whether no run is in progress.
func (s *Simulator) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != core.RunRunning
}

// State returns the state machine position.
func (s *Simulator) State() core.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Advance moves the active run forward by dt seconds and returns the new
// snapshot. Time left over after an instruction finishes carries into the
// next one, so the trace does not depend on the frame rate. Advancing an
// idle simulator returns the current snapshot unchanged.
func (s *Simulator) Advance(dt float64) core.Snapshot {
	s.mu.Lock()
	if s.state == core.RunRunning {
		s.frame++
		s.step(math.Max(dt, 0))
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.flush()
	return snap
}

// Snapshot returns a copy of the current state.
func (s *Simulator) Snapshot() core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Summary describes the current or last run.
func (s *Simulator) Summary() core.RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.RunSummary{
		RunID:             s.run.ID,
		State:             s.state,
		EndTime:           s.clock(),
		FinalPose:         s.pose,
		SimulatedSeconds:  s.elapsed,
		Frames:            s.frame,
		DistanceFlown:     s.distance,
		MaxAltitude:       s.maxAlt,
		LeftFlightArea:    s.notified,
		InstructionsFlown: s.index,
		Path:              slices.Clone(s.path),
	}
}

func (s *Simulator) step(remaining float64) {
	for s.state == core.RunRunning {
		in := s.instrs[s.index]
		need := core.Duration(in) - s.segElapsed

		if remaining < need {
			s.segElapsed += remaining
			s.elapsed += remaining
			s.moveTo(interpolate(s.segStart, in, progress(s.segElapsed, core.MotionDuration(in))))
			return
		}

		remaining -= need
		s.elapsed += need
		s.moveTo(core.TargetPose(s.segStart, in))
		s.index++

		switch {
		case s.index == len(s.instrs):
			s.state = core.RunIdle
			s.emit(core.EventRunFinished, "")
		case s.cancelRequested:
			s.state = core.RunCancelled
			s.emit(core.EventRunCancelled, "")
		default:
			s.beginSegment()
		}
	}
}

func (s *Simulator) beginSegment() {
	s.segStart = s.pose
	s.segElapsed = 0
	s.emit(core.EventInstructionStarted, "")
}

// moveTo sets the pose, extends the path and checks the flight area.
func (s *Simulator) moveTo(p core.Pose) {
	s.distance += math.Sqrt(sq(p.X-s.pose.X) + sq(p.Y-s.pose.Y) + sq(p.Z-s.pose.Z))
	s.pose = p
	s.maxAlt = math.Max(s.maxAlt, p.Z)

	last := s.path[len(s.path)-1]
	if last.X != p.X || last.Y != p.Y {
		s.path = append(s.path, core.PathPoint{X: p.X, Y: p.Y})
	}

	half := s.run.GridSize / 2
	s.outOfBounds = math.Abs(p.X) > half || math.Abs(p.Y) > half
	if s.outOfBounds && !s.notified {
		s.notified = true
		s.emit(core.EventOutOfBounds, core.OutOfBoundsMessage)
	}
}

func (s *Simulator) emit(t core.RunEventType, msg string) {
	ev := core.RunEvent{
		RunID:            s.run.ID,
		Type:             t,
		Time:             s.clock(),
		Elapsed:          s.elapsed,
		InstructionIndex: s.index,
		Message:          msg,
		Pose:             s.pose,
	}
	if s.index < len(s.instrs) {
		ev.Instruction = s.instrs[s.index].String()
	}
	s.pending = append(s.pending, ev)
}

func (s *Simulator) flush() {
	s.mu.Lock()
	events := s.pending
	s.pending = nil
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, ev := range events {
		for _, fn := range listeners {
			fn(ev)
		}
	}
}

// clock is simulated time: the run start plus elapsed seconds.
func (s *Simulator) clock() time.Time {
	return s.run.StartTime.Add(time.Duration(s.elapsed * float64(time.Second)))
}

// snapshotLocked shares the path history with the caller as a capped view.
// The path is append-only within a run and Start allocates a new one, so
// later frames never write into a view already handed out. Readers must not
// modify it.
func (s *Simulator) snapshotLocked() core.Snapshot {
	return core.Snapshot{
		RunID:            s.run.ID,
		State:            s.state,
		Frame:            s.frame,
		Elapsed:          s.elapsed,
		InstructionIndex: s.index,
		Pose:             s.pose,
		OutOfBounds:      s.outOfBounds,
		PathHistory:      s.path[:len(s.path):len(s.path)],
		Time:             s.clock(),
	}
}

// checkDurations rejects instructions built outside the compiler whose
// timing is not a positive finite number of seconds.
func checkDurations(instrs []core.Instruction) error {
	for i, in := range instrs {
		total, motion := core.Duration(in), core.MotionDuration(in)
		if !(total > 0) || math.IsInf(total, 0) || !(motion >= 0) || math.IsInf(motion, 0) {
			return fmt.Errorf("%w: %s at index %d has duration %v", ErrInvalidInstruction, in.Kind(), i, total)
		}
	}
	return nil
}

func progress(elapsed, motion float64) float64 {
	if motion <= 0 {
		return 1
	}
	return math.Min(elapsed/motion, 1)
}

func sq(v float64) float64 { return v * v }
