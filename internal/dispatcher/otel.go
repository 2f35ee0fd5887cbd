package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName    = "github.com/skyblocks/flightdeck/internal/dispatcher"
	instrumentationVersion = "0.1.0"
)

func defaultMeter() metric.Meter {
	return otel.Meter(instrumentationName, metric.WithInstrumentationVersion(instrumentationVersion))
}

// instrument creates the dispatcher counters and the queue depth gauge on m.
func (d *Dispatcher) instrument(m metric.Meter) error {
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&d.processed, "dispatcher.events.processed", "Events handled, by command"},
		{&d.dropped, "dispatcher.events.dropped", "Events dropped because the command queue was full"},
		{&d.failed, "dispatcher.events.failed", "Events whose handler returned an error"},
	}
	for _, c := range counters {
		ctr, err := m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return fmt.Errorf("creating %s: %w", c.name, err)
		}
		*c.dst = ctr
	}

	gauge, err := m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Events waiting in each command queue"))
	if err != nil {
		return fmt.Errorf("creating queue gauge: %w", err)
	}
	d.queueSize = gauge

	if _, err := m.RegisterCallback(d.observeQueues, gauge); err != nil {
		return fmt.Errorf("registering queue callback: %w", err)
	}
	return nil
}

func (d *Dispatcher) observeQueues(_ context.Context, o metric.Observer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for cmd, buf := range d.buffers {
		o.ObserveInt64(d.queueSize, int64(len(buf)), metric.WithAttributes(attribute.String("command", cmd)))
	}
	return nil
}
