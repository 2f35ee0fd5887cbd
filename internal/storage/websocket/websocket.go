// Package websocket streams runs live to a rendering surface.
package websocket

import (
	"log/slog"
	"sync"

	"github.com/skyblocks/flightdeck/internal/config"
	"github.com/skyblocks/flightdeck/pkg/core"
	"github.com/skyblocks/flightdeck/pkg/streaming"
)

// Backend streams run data over WebSocket.
// It implements storage.Backend but not storage.Uploadable.
type Backend struct {
	conn *connection
	cfg  config.WebSocketConfig

	mu            sync.Mutex
	// path points of the open run already queued, and the reconnect count
	// they were queued under
	pathSent      int
	pathReconnect int
}

// New creates a new WebSocket storage backend. A nil logger uses
// slog.Default.
func New(cfg config.WebSocketConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// StartRun announces the run and waits for the server ack.
func (b *Backend) StartRun(run *core.Run) error {
	data, err := streaming.Marshal(streaming.TypeRunStarted, streaming.NewRunStarted(*run))
	if err != nil {
		return err
	}
	b.conn.setRunStart(data)
	b.mu.Lock()
	b.pathSent, b.pathReconnect = 0, b.conn.reconnectCount()
	b.mu.Unlock()
	return b.conn.sendAndWait(data, streaming.TypeRunStarted, run.ID, ackTimeout)
}

// EndRun sends the summary and waits for the server ack.
func (b *Backend) EndRun(summary *core.RunSummary) error {
	data, err := streaming.Marshal(streaming.TypeRunEnded, streaming.NewRunEnded(*summary))
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeRunEnded, summary.RunID, ackTimeout)

	// Clear cached state regardless of error.
	b.conn.setRunStart(nil)
	return err
}

// RecordSnapshot sends a frame with the path points added since the last
// queued frame. After a dropped frame or a reconnect the next frame starts
// over from the first point so the surface can rebuild the whole path.
func (b *Backend) RecordSnapshot(s *core.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rc := b.conn.reconnectCount(); rc != b.pathReconnect {
		b.pathSent, b.pathReconnect = 0, rc
	}
	payload := streaming.NewSnapshot(*s, b.pathSent)
	data, err := streaming.Marshal(streaming.TypeSnapshot, payload)
	if err != nil {
		return err
	}
	if b.conn.send(data) {
		b.pathSent = len(s.PathHistory)
	} else {
		b.pathSent = 0
	}
	return nil
}

func (b *Backend) RecordEvent(e *core.RunEvent) error {
	data, err := streaming.Marshal(streaming.TypeEvent, streaming.NewEvent(*e))
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// QueueLengths reports messages waiting for the writer.
func (b *Backend) QueueLengths() map[string]int {
	return map[string]int{"websocket": len(b.conn.sendCh)}
}

// Dropped reports messages lost to a full send queue.
func (b *Backend) Dropped() uint64 {
	return b.conn.dropped.Load()
}
