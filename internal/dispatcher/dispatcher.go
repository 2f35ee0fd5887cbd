package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Commands understood by the flight service.
const (
	CmdCompile  = "compile"
	CmdGenerate = "generate"
	CmdSimulate = "simulate"
	CmdSend     = "send"
	CmdStatus   = "status"
)

// Queued is the result of a buffered dispatch.
const Queued = "queued"

var (
	// ErrUnknownCommand is returned for commands with no handler.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrQueueFull is returned when a non-blocking buffered handler is saturated.
	ErrQueueFull = errors.New("queue full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("dispatcher closed")
)

// Event is one request: a command, its workspace payload and string
// parameters such as the program name.
type Event struct {
	Command   string
	Payload   []byte
	Params    map[string]string
	Timestamp time.Time
}

// Param returns a parameter or "".
func (e Event) Param(key string) string {
	return e.Params[key]
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(context.Context, Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type queued struct {
	ctx context.Context
	e   Event
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	buffers  map[string]chan queued
	closed   bool
	workers  sync.WaitGroup
	logger   Logger

	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
}

// New creates a Dispatcher that reports to the global OTel meter, which is
// a no-op until a meter provider is installed.
func New(logger Logger) (*Dispatcher, error) {
	return NewWithMeter(logger, defaultMeter())
}

// NewWithMeter creates a Dispatcher that reports queue depth and event
// outcomes to m.
func NewWithMeter(logger Logger, m metric.Meter) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan queued),
		logger:   logger,
	}
	if err := d.instrument(m); err != nil {
		return nil, err
	}
	return d, nil
}

// Register adds a handler for the given command with optional configuration.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h
	if cfg.logged {
		handler = d.withLogging(command, handler)
	}
	if cfg.bufferSize > 0 {
		handler = d.withBuffer(command, cfg.bufferSize, cfg.blocking, handler)
	}

	d.mu.Lock()
	d.handlers[command] = handler
	d.mu.Unlock()
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	closed := d.closed
	d.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(ctx, e)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// QueueLen returns the number of events waiting for a buffered command.
func (d *Dispatcher) QueueLen(command string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.buffers[command])
}

// Close stops accepting events and waits for buffered handlers to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, buf := range d.buffers {
		close(buf)
	}
	d.mu.Unlock()
	d.workers.Wait()
}

func (d *Dispatcher) withBuffer(command string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan queued, size)

	d.mu.Lock()
	d.buffers[command] = buffer
	d.mu.Unlock()

	cmdAttr := attribute.String("command", command)

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for q := range buffer {
			if _, err := h(q.ctx, q.e); err != nil {
				d.failed.Add(context.Background(), 1, metric.WithAttributes(cmdAttr))
			}
			d.processed.Add(context.Background(), 1, metric.WithAttributes(cmdAttr))
		}
	}()

	// the caller's cancellation must not abort work it has already handed off
	enqueue := func(ctx context.Context, e Event) queued {
		return queued{ctx: context.WithoutCancel(ctx), e: e}
	}

	if blocking {
		return func(ctx context.Context, e Event) (any, error) {
			d.mu.RLock()
			defer d.mu.RUnlock()
			if d.closed {
				return nil, ErrClosed
			}
			select {
			case buffer <- enqueue(ctx, e):
				return Queued, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return func(ctx context.Context, e Event) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, ErrClosed
		}
		select {
		case buffer <- enqueue(ctx, e):
			return Queued, nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(cmdAttr))
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, command)
		}
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "bytes", len(e.Payload))

		result, err := h(ctx, e)

		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		}

		return result, err
	}
}
