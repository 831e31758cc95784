package worker

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wro-sim/simlink/internal/dispatcher"
	"github.com/wro-sim/simlink/internal/frame"
	"github.com/wro-sim/simlink/internal/server"
	"github.com/wro-sim/simlink/pkg/core"
	"github.com/wro-sim/simlink/pkg/streaming"
)

// RegisterHandlers registers all event handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Run start is sync: states must not be recorded before the run exists.
	d.Register(streaming.TypeStartRun, m.handleStartRun, dispatcher.Logged())

	d.Register(streaming.TypeVehicleState, m.handleVehicleState, dispatcher.Buffered(10000))
	d.Register(streaming.TypeControl, m.handleControl, dispatcher.Buffered(2000))
	// Peer events are lossless; a full queue delays only the reporting peer's
	// reader, never the accept loop or the tick.
	d.Register(streaming.TypePeerEvent, m.handlePeerEvent, dispatcher.Buffered(100), dispatcher.Blocking(), dispatcher.Logged())
}

func (m *Manager) handleStartRun(e dispatcher.Event) (any, error) {
	r, ok := e.Payload.(*core.Run)
	if !ok {
		return nil, fmt.Errorf("%w: %T for %s", ErrUnexpectedPayload, e.Payload, e.Type)
	}
	if err := m.backend.StartRun(r); err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	m.deps.RunContext.SetRun(r)
	m.deps.Logger.Info("Run started", "run", r.ID, "name", r.Name, "tag", r.Tag)
	return r.ID, nil
}

func (m *Manager) handleVehicleState(e dispatcher.Event) (any, error) {
	s, ok := e.Payload.(*core.VehicleState)
	if !ok {
		return nil, fmt.Errorf("%w: %T for %s", ErrUnexpectedPayload, e.Payload, e.Type)
	}
	if err := m.backend.RecordVehicleState(s); err != nil {
		m.deps.Logger.Debug("Vehicle state not stored", "tick", s.Tick, "error", err)
		return nil, err
	}
	if m.deps.Telemetry != nil {
		if err := m.deps.Telemetry.WriteVehicleState(m.deps.RunContext.GetRun(), s); err != nil {
			m.deps.Logger.Warn("Telemetry write failed", "tick", s.Tick, "error", err)
		}
	}
	return nil, nil
}

func (m *Manager) handleControl(e dispatcher.Event) (any, error) {
	c, ok := e.Payload.(*core.ControlEvent)
	if !ok {
		return nil, fmt.Errorf("%w: %T for %s", ErrUnexpectedPayload, e.Payload, e.Type)
	}
	return nil, m.backend.RecordControl(c)
}

func (m *Manager) handlePeerEvent(e dispatcher.Event) (any, error) {
	p, ok := e.Payload.(*core.PeerEvent)
	if !ok {
		return nil, fmt.Errorf("%w: %T for %s", ErrUnexpectedPayload, e.Payload, e.Type)
	}
	return nil, m.backend.RecordPeerEvent(p)
}

// ControlHook returns a server control hook that publishes every applied
// control frame.
func ControlHook(d *dispatcher.Dispatcher, now func() time.Time) func(uuid.UUID, frame.Control) {
	return func(peer uuid.UUID, c frame.Control) {
		t := now()
		_, _ = d.Dispatch(dispatcher.Event{
			Type: streaming.TypeControl,
			Payload: &core.ControlEvent{
				PeerID: peer.String(),
				Time:   t,
				Value1: c.Value1,
				Value2: c.Value2,
			},
			Timestamp: t,
		})
	}
}

// PeerHook returns a server peer hook that publishes connects and disconnects.
func PeerHook(d *dispatcher.Dispatcher) func(server.PeerEvent) {
	return func(ev server.PeerEvent) {
		_, _ = d.Dispatch(dispatcher.Event{
			Type: streaming.TypePeerEvent,
			Payload: &core.PeerEvent{
				PeerID:     ev.PeerID.String(),
				RemoteAddr: ev.RemoteAddr,
				Connected:  ev.Connected,
				Time:       ev.Time,
			},
			Timestamp: ev.Time,
		})
	}
}
