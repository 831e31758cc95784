package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wro-sim/simlink/internal/config"
	"github.com/wro-sim/simlink/internal/dispatcher"
	"github.com/wro-sim/simlink/internal/frame"
	"github.com/wro-sim/simlink/internal/run"
	"github.com/wro-sim/simlink/internal/server"
	"github.com/wro-sim/simlink/internal/storage"
	"github.com/wro-sim/simlink/internal/storage/memory"
	"github.com/wro-sim/simlink/pkg/core"
	"github.com/wro-sim/simlink/pkg/streaming"
)

type telemetryRecorder struct {
	mu     sync.Mutex
	runs   []string
	states []uint64
	err    error
}

func (r *telemetryRecorder) WriteVehicleState(run *core.Run, s *core.VehicleState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run.ID)
	r.states = append(r.states, s.Tick)
	return r.err
}

type uploadRecorder struct {
	path string
	meta core.UploadMetadata
	err  error
}

func (u *uploadRecorder) Upload(_ context.Context, path string, meta core.UploadMetadata) error {
	u.path, u.meta = path, meta
	return u.err
}

// countingBackend wraps Nop and counts calls.
type countingBackend struct {
	storage.Nop
	mu       sync.Mutex
	started  int
	ended    int
	states   int
	controls []core.ControlEvent
	peers    []core.PeerEvent
}

func (b *countingBackend) StartRun(*core.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started++
	return nil
}

func (b *countingBackend) EndRun() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended++
	return nil
}

func (b *countingBackend) RecordVehicleState(*core.VehicleState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states++
	return nil
}

func (b *countingBackend) RecordControl(e *core.ControlEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.controls = append(b.controls, *e)
	return nil
}

func (b *countingBackend) RecordPeerEvent(e *core.PeerEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peers = append(b.peers, *e)
	return nil
}

func newDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	d, err := dispatcher.New(slog.Default())
	require.NoError(t, err)
	return d
}

func startRun(t *testing.T, d *dispatcher.Dispatcher, r *core.Run) {
	t.Helper()
	_, err := d.Dispatch(dispatcher.Event{Type: streaming.TypeStartRun, Payload: r})
	require.NoError(t, err)
}

func TestRegisterHandlers(t *testing.T) {
	d := newDispatcher(t)
	defer d.Close()
	NewManager(Dependencies{}, storage.Nop{}).RegisterHandlers(d)

	for _, typ := range []string{
		streaming.TypeStartRun,
		streaming.TypeVehicleState,
		streaming.TypeControl,
		streaming.TypePeerEvent,
	} {
		assert.True(t, d.HasHandler(typ), typ)
	}
	assert.False(t, d.HasHandler(streaming.TypeEndRun))
}

func TestStartRun_SetsContext(t *testing.T) {
	d := newDispatcher(t)
	defer d.Close()
	rc := run.NewContext()
	b := &countingBackend{}
	NewManager(Dependencies{RunContext: rc}, b).RegisterHandlers(d)

	r := &core.Run{ID: "r1", Name: "lap"}
	id, err := d.Dispatch(dispatcher.Event{Type: streaming.TypeStartRun, Payload: r})
	require.NoError(t, err)
	assert.Equal(t, "r1", id)
	assert.Same(t, r, rc.GetRun())
	assert.Equal(t, 1, b.started)
}

func TestHandlers_RejectWrongPayload(t *testing.T) {
	d := newDispatcher(t)
	defer d.Close()
	NewManager(Dependencies{}, storage.Nop{}).RegisterHandlers(d)

	_, err := d.Dispatch(dispatcher.Event{Type: streaming.TypeStartRun, Payload: "nope"})
	assert.ErrorIs(t, err, ErrUnexpectedPayload)

	m := NewManager(Dependencies{}, storage.Nop{})
	for _, h := range []dispatcher.HandlerFunc{m.handleVehicleState, m.handleControl, m.handlePeerEvent} {
		_, err := h(dispatcher.Event{Payload: 42})
		assert.ErrorIs(t, err, ErrUnexpectedPayload)
	}
}

func TestVehicleState_RecordsAndMirrorsTelemetry(t *testing.T) {
	d := newDispatcher(t)
	b := &countingBackend{}
	tel := &telemetryRecorder{err: errors.New("influx down")}
	NewManager(Dependencies{Telemetry: tel}, b).RegisterHandlers(d)

	startRun(t, d, &core.Run{ID: "r1"})
	for tick := uint64(6); tick <= 18; tick += 6 {
		_, err := d.Dispatch(dispatcher.Event{Type: streaming.TypeVehicleState, Payload: &core.VehicleState{Tick: tick}})
		require.NoError(t, err)
	}
	d.Close()

	assert.Equal(t, 3, b.states)
	assert.Equal(t, []uint64{6, 12, 18}, tel.states)
	assert.Equal(t, []string{"r1", "r1", "r1"}, tel.runs)
}

func TestHooks_PublishControlAndPeerEvents(t *testing.T) {
	d := newDispatcher(t)
	b := &countingBackend{}
	NewManager(Dependencies{}, b).RegisterHandlers(d)
	startRun(t, d, &core.Run{ID: "r1"})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	peer := uuid.New()

	PeerHook(d)(server.PeerEvent{PeerID: peer, RemoteAddr: "127.0.0.1:5000", Connected: true, Time: now})
	ControlHook(d, func() time.Time { return now })(peer, frame.Control{Value1: 0.5, Value2: -0.25})
	d.Close()

	require.Len(t, b.peers, 1)
	assert.Equal(t, peer.String(), b.peers[0].PeerID)
	assert.Equal(t, "127.0.0.1:5000", b.peers[0].RemoteAddr)
	assert.True(t, b.peers[0].Connected)

	require.Len(t, b.controls, 1)
	assert.Equal(t, core.ControlEvent{PeerID: peer.String(), Time: now, Value1: 0.5, Value2: -0.25}, b.controls[0])
}

func TestEndRun_NotStarted(t *testing.T) {
	b := &countingBackend{}
	m := NewManager(Dependencies{}, b)
	require.NoError(t, m.EndRun(context.Background()))
	assert.Equal(t, 0, b.ended)
}

func TestEndRun_UploadsExport(t *testing.T) {
	d := newDispatcher(t)
	end := time.Date(2026, 3, 1, 12, 1, 30, 0, time.UTC)
	up := &uploadRecorder{}
	b := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	m := NewManager(Dependencies{Uploader: up, Now: func() time.Time { return end }}, b)
	m.RegisterHandlers(d)

	r := &core.Run{ID: "r1", Name: "lap", Tag: "practice", StartTime: end.Add(-90 * time.Second)}
	startRun(t, d, r)
	_, err := d.Dispatch(dispatcher.Event{Type: streaming.TypeVehicleState, Payload: &core.VehicleState{Tick: 6, Time: end}})
	require.NoError(t, err)
	d.Close()

	require.NoError(t, m.EndRun(context.Background()))
	assert.Equal(t, end, r.EndTime)
	assert.Equal(t, b.GetExportedFilePath(), up.path)
	assert.NotEmpty(t, up.path)
	assert.Equal(t, "r1", up.meta.RunID)
}

func TestEndRun_UploadFailureReturnsError(t *testing.T) {
	d := newDispatcher(t)
	up := &uploadRecorder{err: errors.New("dashboard down")}
	b := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	m := NewManager(Dependencies{Uploader: up}, b)
	m.RegisterHandlers(d)
	startRun(t, d, &core.Run{ID: "r1", StartTime: time.Now()})
	d.Close()

	err := m.EndRun(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dashboard down")
}

func TestGetLastDBWriteDuration_Unsupported(t *testing.T) {
	m := NewManager(Dependencies{}, storage.Nop{})
	assert.Equal(t, time.Duration(0), m.GetLastDBWriteDuration())
}
