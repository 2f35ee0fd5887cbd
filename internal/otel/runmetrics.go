package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/skyblocks/flightdeck/pkg/core"
)

// RunMetricsName is the instrumentation scope of the simulator counters.
const RunMetricsName = "github.com/skyblocks/flightdeck/internal/sim"

// RunMetrics counts simulator activity. It is registered with the runner as
// a snapshot and event sink.
type RunMetrics struct {
	frames       metric.Int64Counter
	runs         metric.Int64Counter
	instructions metric.Int64Counter
	outOfBounds  metric.Int64Counter
	elapsed      metric.Float64Histogram
}

// NewRunMetrics creates the instruments on m.
func NewRunMetrics(m metric.Meter) (*RunMetrics, error) {
	var (
		rm  RunMetrics
		err error
	)
	if rm.frames, err = m.Int64Counter("sim.frames",
		metric.WithDescription("Simulator frames advanced")); err != nil {
		return nil, fmt.Errorf("creating frames counter: %w", err)
	}
	if rm.runs, err = m.Int64Counter("sim.runs",
		metric.WithDescription("Runs by outcome")); err != nil {
		return nil, fmt.Errorf("creating runs counter: %w", err)
	}
	if rm.instructions, err = m.Int64Counter("sim.instructions",
		metric.WithDescription("Instructions started, by kind")); err != nil {
		return nil, fmt.Errorf("creating instructions counter: %w", err)
	}
	if rm.outOfBounds, err = m.Int64Counter("sim.out_of_bounds",
		metric.WithDescription("Runs that left the flight area")); err != nil {
		return nil, fmt.Errorf("creating out-of-bounds counter: %w", err)
	}
	if rm.elapsed, err = m.Float64Histogram("sim.run.duration",
		metric.WithDescription("Simulated seconds per run"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}
	return &rm, nil
}

func (rm *RunMetrics) OnSnapshot(core.Snapshot) {
	rm.frames.Add(context.Background(), 1)
}

func (rm *RunMetrics) OnEvent(e core.RunEvent) {
	ctx := context.Background()
	switch e.Type {
	case core.EventInstructionStarted:
		rm.instructions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", e.Instruction)))
	case core.EventOutOfBounds:
		rm.outOfBounds.Add(ctx, 1)
	case core.EventRunFinished, core.EventRunCancelled:
		rm.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(e.Type))))
		rm.elapsed.Record(ctx, e.Elapsed)
	}
}
