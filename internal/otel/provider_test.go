package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/skyblocks/flightdeck/pkg/core"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NotNil(t, p.Meter("test"))
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutSink(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "flightdeck"})
	assert.ErrorIs(t, err, ErrNoExporter)
}

func TestNew_FileExporter(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:        true,
		ServiceName:    "flightdeck",
		ServiceVersion: "test",
		BatchTimeout:   time.Second,
		LogWriter:      &buf,
	})
	require.NoError(t, err)
	require.NotNil(t, p.LoggerProvider())

	logger := otelslog.NewLogger("flightdeck", otelslog.WithLoggerProvider(p.LoggerProvider()))
	logger.Info("run finished", "runId", "r1")

	require.NoError(t, p.Flush(context.Background()))
	assert.Contains(t, buf.String(), "run finished")
	assert.NoError(t, p.Shutdown(context.Background()))
	// second shutdown is harmless
	assert.NoError(t, p.Shutdown(context.Background()))
}

type countingMeter struct {
	noop.Meter
	counters map[string]*countingCounter
}

func (m *countingMeter) Int64Counter(name string, _ ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	c := &countingCounter{}
	m.counters[name] = c
	return c, nil
}

type countingCounter struct {
	noop.Int64Counter
	n     int64
	attrs []attribute.Set
}

func (c *countingCounter) Add(_ context.Context, incr int64, opts ...metric.AddOption) {
	c.n += incr
	c.attrs = append(c.attrs, metric.NewAddConfig(opts).Attributes())
}

func TestRunMetrics(t *testing.T) {
	m := &countingMeter{counters: map[string]*countingCounter{}}
	rm, err := NewRunMetrics(m)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		rm.OnSnapshot(core.Snapshot{Frame: uint(i)})
	}
	rm.OnEvent(core.RunEvent{Type: core.EventRunStarted})
	rm.OnEvent(core.RunEvent{Type: core.EventInstructionStarted, Instruction: "Launch"})
	rm.OnEvent(core.RunEvent{Type: core.EventInstructionStarted, Instruction: "Land"})
	rm.OnEvent(core.RunEvent{Type: core.EventOutOfBounds})
	rm.OnEvent(core.RunEvent{Type: core.EventRunFinished, Elapsed: 5})

	assert.Equal(t, int64(4), m.counters["sim.frames"].n)
	assert.Equal(t, int64(2), m.counters["sim.instructions"].n)
	assert.Equal(t, int64(1), m.counters["sim.out_of_bounds"].n)

	runs := m.counters["sim.runs"]
	require.Equal(t, int64(1), runs.n)
	outcome, ok := runs.attrs[0].Value("outcome")
	require.True(t, ok)
	assert.Equal(t, string(core.EventRunFinished), outcome.AsString())

	kind, ok := m.counters["sim.instructions"].attrs[0].Value("kind")
	require.True(t, ok)
	assert.Equal(t, "Launch", kind.AsString())
}
