package registry

import (
	"net"
	"sync"

	"github.com/google/uuid"
)

// Peer is one connected client. It owns the socket, a single-slot outbox of
// pending telemetry, and the workers serving the connection.
type Peer struct {
	ID uuid.UUID

	conn   net.Conn
	outbox chan []byte
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// NewPeer wraps an accepted connection.
func NewPeer(conn net.Conn) *Peer {
	return &Peer{
		ID:     uuid.New(),
		conn:   conn,
		outbox: make(chan []byte, 1),
		done:   make(chan struct{}),
	}
}

// Conn returns the underlying connection.
func (p *Peer) Conn() net.Conn {
	return p.conn
}

// RemoteAddr returns the remote address as a string, or "" when unknown.
func (p *Peer) RemoteAddr() string {
	if a := p.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

// Offer queues frame for the writer without blocking. A frame still pending
// from an earlier tick is replaced; replaced reports whether that happened.
// Offers to a closed peer are ignored.
func (p *Peer) Offer(frame []byte) (replaced bool) {
	select {
	case <-p.done:
		return false
	default:
	}

	for {
		select {
		case p.outbox <- frame:
			return replaced
		default:
		}
		select {
		case <-p.outbox:
			replaced = true
		default:
		}
	}
}

// Outbox delivers frames offered to the peer.
func (p *Peer) Outbox() <-chan []byte {
	return p.outbox
}

// Done is closed once the peer has been closed.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// Close closes the connection. Only the first call has any effect; later calls
// return the first call's result.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.closeErr = p.conn.Close()
	})
	return p.closeErr
}

// Go runs fn as a worker tracked by the peer.
func (p *Peer) Go(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
}

// Wait blocks until every worker started with Go has returned.
func (p *Peer) Wait() {
	p.wg.Wait()
}
