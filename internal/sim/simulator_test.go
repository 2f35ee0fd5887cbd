package sim

import (
	"math"
	"runtime"
	"slices"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyblocks/flightdeck/internal/codegen"
	"github.com/skyblocks/flightdeck/pkg/core"
)

const tol = 1e-6

func newRun(id string, instrs ...core.Instruction) core.Run {
	return core.Run{
		ID:           id,
		StartTime:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Instructions: instrs,
	}
}

func fly(seq ...core.Instruction) []core.Instruction {
	out := append([]core.Instruction{core.Launch{}}, seq...)
	return append(out, core.Land{})
}

// runAll advances s in steps of dt until the run ends.
func runAll(t *testing.T, s *Simulator, dt float64) core.Snapshot {
	t.Helper()
	var snap core.Snapshot
	for i := 0; !s.Done(); i++ {
		require.Less(t, i, 1_000_000, "run did not finish")
		snap = s.Advance(dt)
	}
	return snap
}

func TestSimulator_HeadingAccumulation(t *testing.T) {
	s := New(0)
	require.NoError(t, s.Start(newRun("r1", fly(
		core.Rotate{Direction: core.Clockwise, Degrees: 90},
		core.Translate{Axis: core.AxisForward, DistanceMeters: 1.0, SpeedMps: 0.5},
	)...)))

	snap := runAll(t, s, 1.0/60)
	assert.Equal(t, core.RunIdle, snap.State)
	assert.InDelta(t, -90, snap.HeadingDegrees, tol)
	assert.InDelta(t, 0, snap.X, tol)
	assert.InDelta(t, -1.0, snap.Y, tol)
	assert.InDelta(t, 0, snap.Z, tol)
	assert.False(t, snap.Flying)
}

func TestSimulator_SpiralEndState(t *testing.T) {
	s := New(0)
	spiral := core.Spiral{Size: core.SpiralMedium, Direction: core.Clockwise, ClimbMeters: 0.5}
	require.NoError(t, s.Start(newRun("r1", core.Launch{}, spiral)))

	// finish the launch, then stop just before the spiral completes
	s.Advance(core.Duration(core.Launch{}))
	mid := s.Advance(core.Duration(spiral) / 2)
	assert.Equal(t, core.RunRunning, mid.State)
	// halfway round a clockwise spiral the drone is behind its start point
	assert.Less(t, mid.X, 0.0)

	end := s.Advance(core.Duration(spiral))
	assert.Equal(t, core.RunIdle, end.State)
	assert.InDelta(t, 0.8-0.3, end.X, tol)
	assert.InDelta(t, 0, end.Y, tol)
	assert.InDelta(t, core.LaunchAltitude+0.5, end.Z, tol)
	assert.InDelta(t, 0, end.HeadingDegrees, tol)
}

func TestSimulator_EaseInOut(t *testing.T) {
	s := New(0)
	move := core.Translate{Axis: core.AxisLeft, DistanceMeters: 2.0, SpeedMps: 1.0}
	require.NoError(t, s.Start(newRun("r1", core.Launch{}, move, core.Land{})))
	s.Advance(core.Duration(core.Launch{}))

	quarter := s.Advance(0.5)
	assert.InDelta(t, 2.0*core.Ease(0.25), quarter.Y, tol)
	half := s.Advance(0.5)
	assert.InDelta(t, 1.0, half.Y, tol)
	assert.Equal(t, 1, half.InstructionIndex)
}

func TestSimulator_LaunchAndLand(t *testing.T) {
	s := New(0)
	require.NoError(t, s.Start(newRun("r1", fly()...)))

	snap := s.Advance(1.0)
	assert.True(t, snap.Flying)
	assert.InDelta(t, core.LaunchAltitude*core.Ease(0.5), snap.Z, tol)

	// climb done at 2s, hover until 3s
	snap = s.Advance(1.5)
	assert.Equal(t, 0, snap.InstructionIndex)
	assert.InDelta(t, core.LaunchAltitude, snap.Z, tol)

	snap = s.Advance(1.5)
	assert.Equal(t, 1, snap.InstructionIndex)
	assert.True(t, snap.Flying, "still flying while descending")

	snap = runAll(t, s, 0.1)
	assert.False(t, snap.Flying)
	assert.InDelta(t, 0, snap.Z, tol)
	assert.InDelta(t, 5.0, snap.Elapsed, tol)
}

func TestSimulator_FrameRateIndependent(t *testing.T) {
	seq := fly(
		core.Translate{Axis: core.AxisForward, DistanceMeters: 1.5, SpeedMps: 0.5},
		core.Rotate{Direction: core.CounterClockwise, Degrees: 135},
		core.Spiral{Size: core.SpiralBig, Direction: core.CounterClockwise, ClimbMeters: -0.5},
		core.SetLight{Color: core.LightPurple},
		core.Translate{Axis: core.AxisRight, DistanceMeters: 0.5, SpeedMps: 0.2},
	)

	var finals []core.Snapshot
	for _, dt := range []float64{1.0 / 60, 1.0 / 7, 0.5, 10} {
		s := New(0)
		require.NoError(t, s.Start(newRun("r", seq...)))
		finals = append(finals, runAll(t, s, dt))
	}
	for _, f := range finals[1:] {
		assert.InDelta(t, finals[0].X, f.X, tol)
		assert.InDelta(t, finals[0].Y, f.Y, tol)
		assert.InDelta(t, finals[0].Z, f.Z, tol)
		assert.InDelta(t, finals[0].HeadingDegrees, f.HeadingDegrees, tol)
		assert.InDelta(t, finals[0].Elapsed, f.Elapsed, tol)
		assert.Equal(t, core.LightPurple, f.Light)
	}
}

func TestSimulator_MatchesEmitter(t *testing.T) {
	programs := map[string][]core.Instruction{
		"heading": fly(
			core.Rotate{Direction: core.Clockwise, Degrees: 90},
			core.Translate{Axis: core.AxisForward, DistanceMeters: 1.0, SpeedMps: 0.5},
		),
		"mixed": fly(
			core.Translate{Axis: core.AxisBack, DistanceMeters: 2.5, SpeedMps: 1.0},
			core.Rotate{Direction: core.CounterClockwise, Degrees: 45},
			core.Translate{Axis: core.AxisLeft, DistanceMeters: 1.5, SpeedMps: 0.2},
			core.ChangeAltitude{Direction: core.Up, DistanceMeters: 0.75, SpeedMps: 0.5},
			core.Spiral{Size: core.SpiralSmall, Direction: core.Clockwise, ClimbMeters: 0.5},
			core.Rotate{Direction: core.Clockwise, Degrees: 270},
			core.Spiral{Size: core.SpiralMedium, Direction: core.CounterClockwise, Sideways: true},
			core.Translate{Axis: core.AxisForward, DistanceMeters: 3.0, SpeedMps: 1.0},
			core.SetLight{Color: core.LightWhite},
		),
		"spin": fly(
			core.Rotate{Direction: core.CounterClockwise, Degrees: 360},
			core.Rotate{Direction: core.CounterClockwise, Degrees: 360},
			core.Translate{Axis: core.AxisRight, DistanceMeters: 0.5, SpeedMps: 0.5},
		),
	}

	emitter := codegen.NewEmitter(codegen.DefaultTemplate(), "")
	for name, seq := range programs {
		t.Run(name, func(t *testing.T) {
			out := emitter.Emit(seq)

			s := New(0)
			require.NoError(t, s.Start(newRun(name, seq...)))
			final := runAll(t, s, 1.0/60)

			assert.InDelta(t, out.FinalHeadingDegrees, final.HeadingDegrees, tol)
			assert.InDelta(t, out.Displacement.X, final.X, tol)
			assert.InDelta(t, out.Displacement.Y, final.Y, tol)
			assert.InDelta(t, out.Displacement.Z, final.Z, tol)
			assert.InDelta(t, out.TotalDuration, final.Elapsed, tol)
			// the script sleeps at 2 dp, so it may drift by half a
			// hundredth per instruction
			assert.InDelta(t, final.Elapsed, out.ScriptDuration, 0.005*float64(len(seq))+tol)
		})
	}
}

func TestSimulator_OutOfBoundsNotifiedOnce(t *testing.T) {
	s := New(4)
	var events []core.RunEvent
	s.OnEvent(func(e core.RunEvent) {
		if e.Type == core.EventOutOfBounds {
			events = append(events, e)
		}
	})

	out := core.Translate{Axis: core.AxisForward, DistanceMeters: 3.0, SpeedMps: 1.0}
	back := core.Translate{Axis: core.AxisBack, DistanceMeters: 3.0, SpeedMps: 1.0}
	require.NoError(t, s.Start(newRun("r1", fly(out, back, out, back, out)...)))

	sawOut, sawIn := false, false
	for !s.Done() {
		snap := s.Advance(0.05)
		if snap.OutOfBounds {
			sawOut = true
		} else if sawOut {
			sawIn = true
		}
	}
	assert.True(t, sawOut)
	assert.True(t, sawIn, "drone re-entered the area")
	require.Len(t, events, 1)
	assert.Equal(t, core.OutOfBoundsMessage, events[0].Message)
	assert.Greater(t, events[0].Pose.X, 2.0)

	final := s.Snapshot()
	assert.True(t, final.OutOfBounds, "run continues outside the area")
	assert.Equal(t, core.RunIdle, final.State)
	assert.True(t, s.Summary().LeftFlightArea)

	// a new run may notify again
	require.NoError(t, s.Start(newRun("r2", fly(out)...)))
	runAll(t, s, 0.05)
	assert.Len(t, events, 2)
}

func TestSimulator_RejectsConcurrentStart(t *testing.T) {
	s := New(0)
	first := newRun("first", fly(core.Translate{Axis: core.AxisForward, DistanceMeters: 2.0, SpeedMps: 0.2})...)
	require.NoError(t, s.Start(first))
	before := s.Advance(4.0)

	err := s.Start(newRun("second", fly(core.Rotate{Direction: core.Clockwise, Degrees: 90})...))
	assert.ErrorIs(t, err, ErrRunActive)

	after := s.Snapshot()
	assert.Equal(t, before, after, "rejected start leaves the run untouched")
	assert.Equal(t, "first", after.RunID)

	final := runAll(t, s, 0.25)
	assert.InDelta(t, 2.0, final.X, tol)
	assert.InDelta(t, 0, final.HeadingDegrees, tol)
}

func TestSimulator_ConcurrentStartRace(t *testing.T) {
	s := New(0)
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Start(newRun("r", fly()...)) == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
}

func TestSimulator_PathHistory(t *testing.T) {
	s := New(0)
	require.NoError(t, s.Start(newRun("r1", fly(
		core.ChangeAltitude{Direction: core.Up, DistanceMeters: 0.5, SpeedMps: 0.5},
		core.Translate{Axis: core.AxisForward, DistanceMeters: 1.0, SpeedMps: 1.0},
	)...)))

	// launch and climb do not move horizontally
	snap := s.Advance(4.0)
	assert.Equal(t, []core.PathPoint{{X: 0, Y: 0}}, snap.PathHistory)

	snap = runAll(t, s, 0.1)
	require.Greater(t, len(snap.PathHistory), 5)
	last := snap.PathHistory[len(snap.PathHistory)-1]
	assert.InDelta(t, 1.0, last.X, tol)
	for i := 1; i < len(snap.PathHistory); i++ {
		assert.GreaterOrEqual(t, snap.PathHistory[i].X, snap.PathHistory[i-1].X)
	}

	// the path resets with the pose
	require.NoError(t, s.Start(newRun("r2", fly()...)))
	assert.Equal(t, []core.PathPoint{{X: 0, Y: 0}}, s.Snapshot().PathHistory)
	assert.Equal(t, 0.0, s.Snapshot().X)
}

func TestSimulator_SnapshotPathIsStable(t *testing.T) {
	s := New(0)
	move := core.Translate{Axis: core.AxisForward, DistanceMeters: 1.0, SpeedMps: 1.0}
	require.NoError(t, s.Start(newRun("r1", fly(move, move)...)))

	s.Advance(core.Duration(core.Launch{}) + 0.5)
	early := s.Snapshot()
	n := len(early.PathHistory)
	require.Greater(t, n, 1)
	assert.Equal(t, n, cap(early.PathHistory), "view is capped at its length")
	want := slices.Clone(early.PathHistory)

	final := runAll(t, s, 0.1)
	assert.Greater(t, len(final.PathHistory), n)
	assert.Equal(t, want, early.PathHistory, "later frames do not change an earlier view")

	// appending to a view reallocates instead of writing into the live path
	grown := append(early.PathHistory, core.PathPoint{X: 99})
	assert.NotEqual(t, 99.0, s.Snapshot().PathHistory[n].X)
	assert.Len(t, grown, n+1)

	// a new run gets its own path
	require.NoError(t, s.Start(newRun("r2", fly()...)))
	assert.Equal(t, want, early.PathHistory)
}

func TestSimulator_LongRunFrameCostIsFlat(t *testing.T) {
	s := New(0)
	spiral := core.Spiral{Size: core.SpiralBig, Direction: core.Clockwise}
	instrs := make([]core.Instruction, 0, 200)
	for i := 0; i < 200; i++ {
		instrs = append(instrs, spiral)
	}
	require.NoError(t, s.Start(newRun("long", fly(instrs...)...)))

	// fly long enough for the path to hold thousands of points
	for i := 0; i < 100*60; i++ {
		s.Advance(1.0 / 60)
	}
	require.False(t, s.Done())
	pathBytes := uint64(len(s.Snapshot().PathHistory)) * uint64(unsafe.Sizeof(core.PathPoint{}))

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	for i := 0; i < 100; i++ {
		s.Advance(1.0 / 60)
	}
	runtime.ReadMemStats(&after)

	// copying the path per frame would allocate 100 * pathBytes
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, 10*pathBytes)
}

func TestSimulator_CancelAtInstructionBoundary(t *testing.T) {
	s := New(0)
	move := core.Translate{Axis: core.AxisForward, DistanceMeters: 1.0, SpeedMps: 0.5}
	require.NoError(t, s.Start(newRun("r1", fly(move, move, move)...)))

	s.Advance(core.Duration(core.Launch{}) + 0.5)
	s.Cancel()
	snap := s.Advance(0.5)
	assert.Equal(t, core.RunRunning, snap.State, "the current instruction completes")

	snap = runAll(t, s, 0.1)
	assert.Equal(t, core.RunCancelled, snap.State)
	assert.InDelta(t, 1.0, snap.X, tol)
	assert.Equal(t, 2, snap.InstructionIndex)

	// a cancelled simulator accepts a new run
	require.NoError(t, s.Start(newRun("r2", fly()...)))
}

func TestSimulator_Events(t *testing.T) {
	s := New(0)
	var types []core.RunEventType
	s.OnEvent(func(e core.RunEvent) { types = append(types, e.Type) })

	require.NoError(t, s.Start(newRun("r1", fly(core.SetLight{Color: core.LightRed})...)))
	runAll(t, s, 1)

	assert.Equal(t, []core.RunEventType{
		core.EventRunStarted,
		core.EventInstructionStarted,
		core.EventInstructionStarted,
		core.EventInstructionStarted,
		core.EventRunFinished,
	}, types)
	assert.Equal(t, core.LightRed, s.Snapshot().Light)
}

func TestSimulator_StartErrors(t *testing.T) {
	s := New(0)
	assert.ErrorIs(t, s.Start(newRun("r")), ErrNoInstructions)
	assert.Equal(t, core.RunIdle, s.State())

	// advancing an idle simulator changes nothing
	snap := s.Advance(1)
	assert.Equal(t, uint(0), snap.Frame)
}

func TestSimulator_StartRejectsUnfinishableInstructions(t *testing.T) {
	tests := []struct {
		name string
		in   core.Instruction
	}{
		{"zero speed", core.Translate{Axis: core.AxisForward, DistanceMeters: 1.0, SpeedMps: 0}},
		{"zero speed and distance", core.Translate{Axis: core.AxisForward}},
		{"infinite climb", core.ChangeAltitude{Direction: core.Up, DistanceMeters: math.Inf(1), SpeedMps: 1}},
		{"no rotation", core.Rotate{Direction: core.Clockwise}},
		{"unknown spiral size", core.Spiral{Size: "huge", Direction: core.Clockwise}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(0)
			err := s.Start(newRun("r", fly(tt.in)...))
			assert.ErrorIs(t, err, ErrInvalidInstruction)
			assert.Equal(t, core.RunIdle, s.State())
		})
	}
}

func TestSimulator_Summary(t *testing.T) {
	s := New(0)
	run := newRun("r1", fly(
		core.ChangeAltitude{Direction: core.Up, DistanceMeters: 1.0, SpeedMps: 1.0},
		core.Translate{Axis: core.AxisForward, DistanceMeters: 2.0, SpeedMps: 1.0},
	)...)
	require.NoError(t, s.Start(run))
	runAll(t, s, 0.01)

	sum := s.Summary()
	assert.Equal(t, "r1", sum.RunID)
	assert.Equal(t, core.RunIdle, sum.State)
	assert.Equal(t, 4, sum.InstructionsFlown)
	assert.InDelta(t, 2.0, sum.MaxAltitude, tol)
	// up 1, climb 1, forward 2, land 2
	assert.InDelta(t, 6.0, sum.DistanceFlown, tol)
	assert.InDelta(t, 3+1+2+2, sum.SimulatedSeconds, tol)
	assert.WithinDuration(t, run.StartTime.Add(8*time.Second), sum.EndTime, time.Millisecond)
}
