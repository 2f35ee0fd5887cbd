package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyblocks/flightdeck/pkg/core"
)

// gateClock hands out one step per receive on tick.
type gateClock struct {
	tick    chan struct{}
	step    float64
	stopped chan struct{}
}

func newGateClock(step float64) *gateClock {
	return &gateClock{tick: make(chan struct{}), step: step, stopped: make(chan struct{})}
}

func (c *gateClock) Wait() float64 {
	<-c.tick
	return c.step
}

func (c *gateClock) Stop() { close(c.stopped) }

func TestRunner_RecordsRun(t *testing.T) {
	rec := &Recorder{}
	r := NewRunner(New(0), func() Clock { return NewStepClock(30) }, nil)
	r.AddSnapshotSink(rec)
	r.AddEventSink(rec)

	run := newRun("r1", fly(core.Translate{Axis: core.AxisForward, DistanceMeters: 1.0, SpeedMps: 0.5})...)
	sum, err := r.Run(context.Background(), run)
	require.NoError(t, err)
	assert.False(t, r.Active())

	assert.Equal(t, core.RunIdle, sum.State)
	assert.InDelta(t, 1.0, sum.FinalPose.X, tol)
	assert.InDelta(t, 7.0, sum.SimulatedSeconds, tol)

	snaps := rec.Snapshots()
	require.NotEmpty(t, snaps)
	assert.Equal(t, uint(0), snaps[0].Frame)
	assert.Equal(t, sum.Frames, snaps[len(snaps)-1].Frame)
	for i := 1; i < len(snaps); i++ {
		assert.Equal(t, snaps[i-1].Frame+1, snaps[i].Frame)
	}

	events := rec.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, core.EventRunStarted, events[0].Type)
	assert.Equal(t, core.EventRunFinished, events[len(events)-1].Type)
	assert.Len(t, rec.EventsOf(core.EventInstructionStarted), 3)
}

func TestRunner_OutOfBoundsReachesSinks(t *testing.T) {
	rec := &Recorder{}
	r := NewRunner(New(2), func() Clock { return NewStepClock(20) }, nil)
	r.AddEventSink(rec)

	run := newRun("r1", fly(core.Translate{Axis: core.AxisLeft, DistanceMeters: 2.0, SpeedMps: 1.0})...)
	sum, err := r.Run(context.Background(), run)
	require.NoError(t, err)
	assert.True(t, sum.LeftFlightArea)

	oob := rec.EventsOf(core.EventOutOfBounds)
	require.Len(t, oob, 1)
	assert.Equal(t, "Drone left the flight area!", oob[0].Message)
}

func TestRunner_RejectsSecondRun(t *testing.T) {
	clock := newGateClock(0.1)
	r := NewRunner(New(0), func() Clock { return clock }, nil)

	first := newRun("first", fly()...)
	done := make(chan core.RunSummary)
	go func() {
		sum, err := r.Run(context.Background(), first)
		assert.NoError(t, err)
		done <- sum
	}()

	clock.tick <- struct{}{}
	require.True(t, r.Active())

	_, err := r.Run(context.Background(), newRun("second", fly()...))
	assert.ErrorIs(t, err, ErrRunActive)
	assert.Equal(t, "first", r.Simulator().Snapshot().RunID)

	go func() {
		for {
			select {
			case clock.tick <- struct{}{}:
			case <-clock.stopped:
				return
			}
		}
	}()
	sum := <-done
	assert.Equal(t, "first", sum.RunID)
	assert.Equal(t, core.RunIdle, sum.State)
	assert.False(t, r.Active())
}

func TestRunner_ContextCancelStopsAtBoundary(t *testing.T) {
	clock := newGateClock(0.5)
	rec := &Recorder{}
	r := NewRunner(New(0), func() Clock { return clock }, nil)
	r.AddEventSink(rec)

	move := core.Translate{Axis: core.AxisForward, DistanceMeters: 1.0, SpeedMps: 1.0}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan core.RunSummary)
	go func() {
		sum, err := r.Run(ctx, newRun("r1", fly(move, move, move)...))
		assert.NoError(t, err)
		done <- sum
	}()

	// 3.0s: launch done, first move just begun
	for range 6 {
		clock.tick <- struct{}{}
	}
	cancel()

	go func() {
		for {
			select {
			case clock.tick <- struct{}{}:
			case <-clock.stopped:
				return
			}
		}
	}()

	select {
	case sum := <-done:
		assert.Equal(t, core.RunCancelled, sum.State)
		assert.InDelta(t, 1.0, sum.FinalPose.X, tol)
		assert.Equal(t, 2, sum.InstructionsFlown)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
	assert.Len(t, rec.EventsOf(core.EventRunCancelled), 1)
}

func TestRunner_StartError(t *testing.T) {
	r := NewRunner(New(0), func() Clock { return NewStepClock(0) }, nil)
	_, err := r.Run(context.Background(), newRun("empty"))
	assert.ErrorIs(t, err, ErrNoInstructions)
	assert.False(t, r.Active())
}

func TestStepClock(t *testing.T) {
	c := NewStepClock(0)
	assert.InDelta(t, 1.0/DefaultFrameRate, c.Wait(), 1e-12)
	c.Stop()
}
