// Package server is the multi-client TCP endpoint of the simulator. Peers send
// 8-byte control frames and receive the telemetry frame broadcast every tick.
//
// Delivery is latest-frame-wins. Each peer has a one-slot outbox, so a peer
// that reads slower than the tick rate skips intermediate frames and always
// gets the newest one next. A peer whose write exceeds Config.WriteTimeout is
// disconnected. Neither case delays the tick loop or the other peers.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wro-sim/simlink/internal/frame"
	"github.com/wro-sim/simlink/internal/registry"
)

// ControlSink receives every decoded control frame.
type ControlSink interface {
	SetControl(value1, value2 float32)
}

// Config holds the listener settings.
type Config struct {
	Addr           string
	ReadBufferSize int
	WriteTimeout   time.Duration
	// MaxPeers caps concurrent connections; 0 means unlimited.
	MaxPeers int
}

// DefaultConfig listens on the loopback port control programs expect.
func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:12345",
		ReadBufferSize: 1024,
		WriteTimeout:   time.Second,
	}
}

// PeerEvent reports a peer joining or leaving.
type PeerEvent struct {
	PeerID     uuid.UUID
	RemoteAddr string
	Connected  bool
	Time       time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithPeerHook calls fn on every connect and disconnect. fn runs on the
// peer's reader goroutine, connect before the first read and disconnect after
// the last, so a slow fn delays only that peer and never the accept loop.
func WithPeerHook(fn func(PeerEvent)) Option {
	return func(s *Server) {
		s.onPeer = fn
	}
}

// WithControlHook calls fn after every applied control frame. fn runs on the
// peer's reader and must not block.
func WithControlHook(fn func(uuid.UUID, frame.Control)) Option {
	return func(s *Server) {
		s.onControl = fn
	}
}

// Server accepts peers, applies their control frames and fans telemetry out
// to all of them.
type Server struct {
	cfg    Config
	sink   ControlSink
	logger *slog.Logger
	peers  *registry.Registry

	onPeer    func(PeerEvent)
	onControl func(uuid.UUID, frame.Control)

	metrics *metrics

	mu         sync.Mutex
	ln         net.Listener
	cancel     context.CancelFunc
	acceptDone chan struct{}
}

// New creates a stopped server delivering control frames to sink.
func New(cfg Config, sink ControlSink, opts ...Option) (*Server, error) {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultConfig().ReadBufferSize
	}

	s := &Server{
		cfg:    cfg,
		sink:   sink,
		logger: slog.Default(),
		peers:  registry.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	m, err := newMetrics(s.peers.Len)
	if err != nil {
		return nil, err
	}
	s.metrics = m

	return s, nil
}

// Start binds the listener and begins accepting. A failure to bind is returned
// as a *BindError. Cancelling ctx has the same effect on the accept loop as
// Stop, but Stop must still be called to release the peers.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return &BindError{Addr: s.cfg.Addr, Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.ln = ln
	s.cancel = cancel
	s.acceptDone = make(chan struct{})

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go s.acceptLoop(ctx, ln, s.acceptDone)

	s.logger.Info("telemetry server listening", "addr", ln.Addr().String())
	return nil
}

// Stop closes the listener and every peer, then waits for all peer workers.
// Stopping a stopped server is a no-op.
func (s *Server) Stop() {
	s.mu.Lock()
	ln, cancel, done := s.ln, s.cancel, s.acceptDone
	s.ln, s.cancel, s.acceptDone = nil, nil, nil
	s.mu.Unlock()

	if ln == nil {
		return
	}

	cancel()
	_ = ln.Close()
	<-done

	s.peers.CloseAll()
	s.logger.Info("telemetry server stopped")
}

// Addr returns the bound address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// PeerCount returns the number of connected peers.
func (s *Server) PeerCount() int {
	return s.peers.Len()
}

// Broadcast offers data to every connected peer and returns how many peers it
// was offered to. It never blocks on a peer. data is shared between peers and
// must not be modified afterwards.
func (s *Server) Broadcast(data []byte) int {
	n := 0
	s.peers.ForEach(func(p *registry.Peer) {
		if p.Offer(data) {
			s.metrics.dropped.Add(context.Background(), 1)
		}
		n++
	})
	return n
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, done chan struct{}) {
	defer close(done)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		s.attach(conn)
	}
}

// attach registers conn and starts its reader and writer.
func (s *Server) attach(conn net.Conn) {
	if s.cfg.MaxPeers > 0 && s.peers.Len() >= s.cfg.MaxPeers {
		s.logger.Warn("peer limit reached, rejecting connection",
			"remote", conn.RemoteAddr().String(),
			"maxPeers", s.cfg.MaxPeers)
		s.metrics.peerErrors.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("op", "accept")))
		_ = conn.Close()
		return
	}

	p := registry.NewPeer(conn)
	s.peers.Add(p)

	s.logger.Info("peer connected", "peer", p.ID, "remote", p.RemoteAddr())

	p.Go(func() { s.readLoop(p) })
	p.Go(func() { s.writeLoop(p) })
}

func (s *Server) readLoop(p *registry.Peer) {
	buf := make([]byte, s.cfg.ReadBufferSize)
	staging := make([]byte, 0, 2*frame.ControlSize)

	s.emitPeer(p, true)
	defer func() {
		if len(staging) > 0 {
			_, err := frame.ParseControl(staging)
			s.logger.Debug("discarding partial control frame", "peer", p.ID, "error", err)
		}
		s.peers.Remove(p.ID)
		s.logger.Info("peer disconnected", "peer", p.ID)
		s.emitPeer(p, false)
	}()

	for {
		n, err := p.Conn().Read(buf)
		if n > 0 {
			staging = append(staging, buf[:n]...)
			staging = s.consume(p, staging)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.fail(p, "read", err)
			}
			return
		}
		if n == 0 {
			return
		}
	}
}

// consume applies every complete control frame at the start of staging and
// returns the unconsumed tail.
func (s *Server) consume(p *registry.Peer, staging []byte) []byte {
	off := 0
	for len(staging)-off >= frame.ControlSize {
		c, _ := frame.DecodeControl(staging[off : off+frame.ControlSize])
		off += frame.ControlSize

		s.sink.SetControl(c.Value1, c.Value2)
		s.metrics.controlFrames.Add(context.Background(), 1)
		if s.onControl != nil {
			s.onControl(p.ID, c)
		}
	}
	return append(staging[:0], staging[off:]...)
}

func (s *Server) writeLoop(p *registry.Peer) {
	conn := p.Conn()
	for {
		select {
		case <-p.Done():
			return
		case data := <-p.Outbox():
			if s.cfg.WriteTimeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			}
			if _, err := conn.Write(data); err != nil {
				s.fail(p, "write", err)
				return
			}
			s.metrics.sent.Add(context.Background(), 1)
		}
	}
}

// fail isolates a peer after an I/O error. Errors caused by the peer already
// being closed are not reported.
func (s *Server) fail(p *registry.Peer, op string, err error) {
	select {
	case <-p.Done():
		return
	default:
	}

	cerr := &ConnectionError{PeerID: p.ID, Op: op, Err: err}
	s.logger.Warn("peer connection error", "error", cerr)
	s.metrics.peerErrors.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("op", op)))
	s.peers.Remove(p.ID)
}

func (s *Server) emitPeer(p *registry.Peer, connected bool) {
	if s.onPeer == nil {
		return
	}
	s.onPeer(PeerEvent{
		PeerID:     p.ID,
		RemoteAddr: p.RemoteAddr(),
		Connected:  connected,
		Time:       time.Now(),
	})
}
