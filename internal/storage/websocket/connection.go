package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/wro-sim/simlink/pkg/streaming"
)

const (
	sendChSize   = 10_000
	ackChSize    = 16
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

// connection owns one dashboard socket. A single writeLoop serialises writes.
type connection struct {
	mu     sync.Mutex
	conn   *ws.Conn
	sendCh chan []byte
	ackCh  chan streaming.AckMessage
	done   chan struct{} // closed on shutdown
	closed bool

	wsURL     string
	authToken string

	// start_run message replayed after a reconnect.
	cachedStartMsg []byte

	firstBackoff time.Duration
	dropped      uint64

	logger *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		sendCh:       make(chan []byte, sendChSize),
		ackCh:        make(chan streaming.AckMessage, ackChSize),
		done:         make(chan struct{}),
		firstBackoff: time.Second,
		logger:       logger,
	}
}

// dial connects to the dashboard and starts the read and write loops.
func (c *connection) dial(rawURL, authToken string) error {
	c.wsURL = rawURL
	c.authToken = authToken

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.serve(conn)

	return nil
}

func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid websocket URL: unsupported scheme %q", u.Scheme)
	}

	header := http.Header{}
	if c.authToken != "" {
		header.Set("Authorization", "Bearer "+c.authToken)
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// serve runs the read and write loops for conn and reconnects once either
// of them fails.
func (c *connection) serve(conn *ws.Conn) {
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		c.readLoop(conn)
	}()

	if !c.writeLoop(conn, readDone) {
		return
	}
	c.reconnect(conn)
}

// writeLoop drains sendCh onto conn. It reports whether conn failed.
func (c *connection) writeLoop(conn *ws.Conn, readDone <-chan struct{}) bool {
	for {
		select {
		case <-c.done:
			return false
		case <-readDone:
			return true
		case data := <-c.sendCh:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				return true
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				return true
			}
		}
	}
}

// readLoop routes acks from the dashboard to ackCh until conn fails.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("WebSocket read error", "error", err)
			}
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

// reconnect replaces stale with a fresh connection using exponential backoff,
// replays start_run and serves the new connection.
func (c *connection) reconnect(stale *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != stale {
		c.mu.Unlock()
		return
	}
	_ = stale.Close()
	c.conn = nil
	c.mu.Unlock()

	backoff := c.firstBackoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		c.logger.Info("Reconnecting to dashboard", "attempt", attempt, "backoff", backoff)
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
		cached := c.cachedStartMsg
		c.mu.Unlock()

		if cached != nil {
			err = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err == nil {
				err = conn.WriteMessage(ws.TextMessage, cached)
			}
			if err != nil {
				c.logger.Warn("Failed to replay start_run after reconnect", "error", err)
				_ = conn.Close()
				continue
			}
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()

		c.logger.Info("WebSocket reconnected", "attempt", attempt)
		go c.serve(conn)
		return
	}

	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// send queues data for the write loop. It drops when the queue is full.
func (c *connection) send(data []byte) {
	select {
	case c.sendCh <- data:
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		c.logger.Warn("WebSocket send channel full, dropping message")
	}
}

// sendAndWait queues data and blocks until the matching ack arrives.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-c.ackCh:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
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
		_ = conn.WriteMessage(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		)
		return conn.Close()
	}
	return nil
}
