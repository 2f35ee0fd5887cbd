package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/skyblocks/flightdeck/pkg/streaming"
)

const (
	sendChSize   = 10_000
	ackChSize    = 16
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

// connection owns one WebSocket with a single writer goroutine. Frames are
// fire-and-forget; run boundaries wait for an ack.
type connection struct {
	mu     sync.Mutex
	conn   *ws.Conn
	stop   chan struct{} // closed when conn is replaced
	sendCh chan []byte
	ackCh  chan streaming.AckMessage
	done   chan struct{} // closed on shutdown
	closed bool

	wsURL  string
	secret string
	dialer *ws.Dialer

	// run_started of the open run, replayed after a reconnect
	runStart   []byte
	reconnects int
	dropped    atomic.Uint64

	// first backoff step; tests shorten it
	backoff time.Duration

	logger *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		sendCh:  make(chan []byte, sendChSize),
		ackCh:   make(chan streaming.AckMessage, ackChSize),
		done:    make(chan struct{}),
		dialer:  &ws.Dialer{HandshakeTimeout: writeWait, EnableCompression: true},
		backoff: time.Second,
		logger:  logger,
	}
}

// dial connects and starts the read/write loops.
func (c *connection) dial(rawURL, secret string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid websocket URL %q: scheme must be ws or wss", rawURL)
	}
	c.wsURL = u.String()
	c.secret = secret

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	go c.writeLoop(conn, stop)
	go c.readLoop(conn)
	return nil
}

// dialOnce performs a single handshake, authenticating with the secret as a
// bearer token.
func (c *connection) dialOnce() (*ws.Conn, error) {
	header := http.Header{}
	if c.secret != "" {
		header.Set("Authorization", "Bearer "+c.secret)
	}
	conn, resp, err := c.dialer.Dial(c.wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// writeLoop drains sendCh onto conn. It returns on error, shutdown or when
// conn is replaced; a write error hands over to reconnect.
func (c *connection) writeLoop(conn *ws.Conn, stop <-chan struct{}) {
	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case data := <-c.sendCh:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				go c.reconnect(conn)
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				go c.reconnect(conn)
				return
			}
		}
	}
}

// readLoop routes acks from conn to ackCh.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			go c.reconnect(conn)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != "ack" {
			c.logger.Debug("Non-ack message received", "raw", string(message))
			continue
		}
		select {
		case c.ackCh <- ack:
		default:
			c.logger.Debug("Ack channel full, dropping", "for", ack.For)
		}
	}
}

// reconnect replaces broken with a new connection, backing off
// exponentially. Both loops may report the same broken connection; only the
// first call acts.
func (c *connection) reconnect(broken *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != broken {
		c.mu.Unlock()
		return
	}
	close(c.stop)
	_ = broken.Close()
	c.conn = nil
	c.mu.Unlock()

	backoff := c.backoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.stop = make(chan struct{})
		stop := c.stop
		c.reconnects++
		replay := c.runStart
		c.mu.Unlock()

		// the server must know which run the following frames belong to
		if replay != nil {
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err == nil {
				err = conn.WriteMessage(ws.TextMessage, replay)
			}
			if err != nil {
				c.logger.Warn("Failed to replay run_started after reconnect", "error", err)
				c.mu.Lock()
				close(c.stop)
				c.conn = nil
				c.mu.Unlock()
				_ = conn.Close()
				continue
			}
		}

		c.logger.Info("WebSocket reconnected", "attempt", attempt)
		go c.writeLoop(conn, stop)
		go c.readLoop(conn)
		return
	}

	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// send queues data for the write loop. It never blocks; when the queue is
// full the message is dropped and counted.
func (c *connection) send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		if c.dropped.Add(1) == 1 {
			c.logger.Warn("WebSocket send channel full, dropping messages")
		}
		return false
	}
}

// sendAndWait sends data and blocks until the server acknowledges msgType
// for runID or the timeout expires.
func (c *connection) sendAndWait(data []byte, msgType, runID string, timeout time.Duration) error {
	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-c.ackCh:
			if ack.For == msgType && (ack.RunID == "" || ack.RunID == runID) {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", msgType)
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", msgType)
		}
	}
}

// setRunStart caches data for replay; nil clears it.
func (c *connection) setRunStart(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runStart = data
}

func (c *connection) reconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

// close sends a close frame and stops all goroutines.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}
	return nil
}
