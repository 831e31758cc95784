// Package websocket streams a run live to a dashboard over a WebSocket.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/wro-sim/simlink/pkg/core"
	"github.com/wro-sim/simlink/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL       string
	AuthToken string
}

// Backend streams run data to the dashboard. It implements storage.Backend
// but not storage.Uploadable.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger),
		cfg:  cfg,
	}
}

// Init connects to the dashboard.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.AuthToken)
}

// Close disconnects from the dashboard.
func (b *Backend) Close() error {
	return b.conn.close()
}

// Dropped returns how many messages were discarded because the send queue was full.
func (b *Backend) Dropped() uint64 {
	b.conn.mu.Lock()
	defer b.conn.mu.Unlock()
	return b.conn.dropped
}

func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope is fire-and-forget.
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartRun sends the run header and waits for the dashboard ack.
func (b *Backend) StartRun(run *core.Run) error {
	data, err := marshalEnvelope(streaming.TypeStartRun, streaming.StartRunPayload{Run: run})
	if err != nil {
		return err
	}

	b.conn.mu.Lock()
	b.conn.cachedStartMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeStartRun, ackTimeout)
}

// EndRun sends end_run and waits for the dashboard ack.
func (b *Backend) EndRun() error {
	data, err := marshalEnvelope(streaming.TypeEndRun, nil)
	if err == nil {
		err = b.conn.sendAndWait(data, streaming.TypeEndRun, ackTimeout)
	}

	b.conn.mu.Lock()
	b.conn.cachedStartMsg = nil
	b.conn.mu.Unlock()

	return err
}

func (b *Backend) RecordVehicleState(s *core.VehicleState) error {
	return b.sendEnvelope(streaming.TypeVehicleState, s)
}

func (b *Backend) RecordControl(e *core.ControlEvent) error {
	return b.sendEnvelope(streaming.TypeControl, e)
}

func (b *Backend) RecordPeerEvent(e *core.PeerEvent) error {
	return b.sendEnvelope(streaming.TypePeerEvent, e)
}
