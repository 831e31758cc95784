package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wro-sim/simlink/internal/controller"
	"github.com/wro-sim/simlink/internal/dispatcher"
	"github.com/wro-sim/simlink/internal/frame"
	"github.com/wro-sim/simlink/internal/geo"
	"github.com/wro-sim/simlink/internal/sensor"
	"github.com/wro-sim/simlink/internal/vehicle"
	"github.com/wro-sim/simlink/pkg/core"
	"github.com/wro-sim/simlink/pkg/streaming"
)

type staticHost struct {
	obs sensor.Observation
}

func (h staticHost) Sense(vehicle.State) sensor.Observation {
	return h.obs
}

type recordingOut struct {
	mu     sync.Mutex
	frames [][]byte
	peers  int
}

func (o *recordingOut) Broadcast(data []byte) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames = append(o.frames, data)
	return o.peers
}

func (o *recordingOut) PeerCount() int {
	return o.peers
}

type recordingPub struct {
	events []dispatcher.Event
}

func (p *recordingPub) Dispatch(e dispatcher.Event) (any, error) {
	p.events = append(p.events, e)
	return "queued", nil
}

type fixture struct {
	runner  *Runner
	targets *controller.Targets
	out     *recordingOut
	layout  frame.Layout
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	layout := frame.DefaultLayout()
	targets := &controller.Targets{}
	out := &recordingOut{peers: 2}
	v := vehicle.New(vehicle.DefaultParams(), vehicle.State{})

	r, err := New(cfg, v, controller.NewRemote(targets), sensor.New(layout), out, opts...)
	require.NoError(t, err)
	return &fixture{runner: r, targets: targets, out: out, layout: layout}
}

func hit(d float32) sensor.Reading {
	return sensor.Reading{Hit: true, Distance: d}
}

func TestStep_BroadcastsSensedFrame(t *testing.T) {
	host := staticHost{obs: sensor.Observation{
		Ranges: [4]sensor.Reading{
			sensor.Front: hit(1.25),
			sensor.Back:  hit(0.5),
			sensor.Left:  hit(0.75),
		},
	}}
	f := newFixture(t, DefaultConfig(), WithHost(host))

	require.NoError(t, f.runner.Step(1.0/60))

	require.Len(t, f.out.frames, 1)
	tm, err := frame.DecodeTelemetry(f.layout, f.out.frames[0])
	require.NoError(t, err)
	assert.Equal(t, float32(1.25), tm.Front)
	assert.Equal(t, float32(0.5), tm.Back)
	assert.Equal(t, float32(0.75), tm.Left)
	assert.Equal(t, float32(0), tm.Right, "never-written channel reads zero")
	assert.Equal(t, float32(0), tm.Orientation)

	last := f.runner.Last()
	assert.Equal(t, uint64(1), last.Tick)
	assert.Equal(t, 2, last.Peers)
	assert.Equal(t, float32(1.25), last.Ranges.Front)
}

func TestStep_AppliesLatestControl(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.targets.SetControl(0.333, 0)

	for i := 0; i < 60; i++ {
		require.NoError(t, f.runner.Step(1.0/60))
	}

	last := f.runner.Last()
	assert.InDelta(t, 0.333, last.Speed, 1e-9)
	assert.Greater(t, last.Position.Z, 0.0)
	assert.InDelta(t, 0, last.Position.X, 1e-12)
	assert.Equal(t, uint64(60), f.runner.Ticks())
}

func TestStep_OrientationFollowsTurn(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.targets.SetControl(0.333, 1)

	for i := 0; i < 30; i++ {
		require.NoError(t, f.runner.Step(1.0/60))
	}

	tm, err := frame.DecodeTelemetry(f.layout, f.out.frames[len(f.out.frames)-1])
	require.NoError(t, err)
	assert.Greater(t, tm.Orientation, float32(0), "right turn reads clockwise")
	assert.Less(t, tm.Orientation, float32(180))
	assert.Equal(t, tm.Orientation, f.runner.Last().Orientation)
}

func TestStep_RejectedImageStillBroadcasts(t *testing.T) {
	host := staticHost{obs: sensor.Observation{
		Ranges: [4]sensor.Reading{sensor.Right: hit(2)},
		Image:  make([]byte, 10),
	}}
	f := newFixture(t, DefaultConfig(), WithHost(host))

	err := f.runner.Step(1.0 / 60)
	require.Error(t, err)
	assert.True(t, errors.Is(err, frame.ErrLengthMismatch))

	require.Len(t, f.out.frames, 1)
	tm, err := frame.DecodeTelemetry(f.layout, f.out.frames[0])
	require.NoError(t, err)
	assert.Equal(t, float32(2), tm.Right)
}

func TestStep_PublishesEveryNthTick(t *testing.T) {
	pub := &recordingPub{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, Config{TickRate: 60, RecordEvery: 3},
		WithPublisher(pub),
		WithClock(func() time.Time { return now }),
	)

	for i := 0; i < 7; i++ {
		require.NoError(t, f.runner.Step(1.0/60))
	}

	require.Len(t, pub.events, 2)
	for i, e := range pub.events {
		assert.Equal(t, streaming.TypeVehicleState, e.Type)
		assert.Equal(t, now, e.Timestamp)
		state, ok := e.Payload.(*core.VehicleState)
		require.True(t, ok)
		assert.Equal(t, uint64(3*(i+1)), state.Tick)
	}
}

func TestStep_NoPublishWhenDisabled(t *testing.T) {
	pub := &recordingPub{}
	f := newFixture(t, Config{TickRate: 60}, WithPublisher(pub))

	require.NoError(t, f.runner.Step(1.0/60))
	assert.Empty(t, pub.events)
}

func TestStep_AddsLatLon(t *testing.T) {
	p, err := geo.NewProjector(48.2, 16.37)
	require.NoError(t, err)
	f := newFixture(t, DefaultConfig(), WithProjector(p))

	require.NoError(t, f.runner.Step(1.0/60))

	last := f.runner.Last()
	assert.InDelta(t, 48.2, last.Latitude, 1e-6)
	assert.InDelta(t, 16.37, last.Longitude, 1e-6)
}

func TestStep_WithoutBroadcaster(t *testing.T) {
	layout := frame.LegacyLayout()
	v := vehicle.New(vehicle.DefaultParams(), vehicle.State{Position: r3.Vec{Z: -1}})
	r, err := New(DefaultConfig(), v, nil, sensor.New(layout), nil)
	require.NoError(t, err)

	require.NoError(t, r.Step(1.0/60))
	assert.Equal(t, 0, r.Last().Peers)
	assert.Equal(t, -1.0, r.Last().Position.Z)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	v := vehicle.New(vehicle.DefaultParams(), vehicle.State{})
	agg := sensor.New(frame.DefaultLayout())

	_, err := New(Config{TickRate: 0}, v, nil, agg, nil)
	assert.Error(t, err)

	_, err = New(Config{TickRate: 60, RecordEvery: -1}, v, nil, agg, nil)
	assert.Error(t, err)
}

func TestInterval(t *testing.T) {
	f := newFixture(t, Config{TickRate: 50})
	assert.Equal(t, 20*time.Millisecond, f.runner.Interval())
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	f := newFixture(t, Config{TickRate: 200})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.runner.Run(ctx) }()

	require.Eventually(t, func() bool { return f.runner.Ticks() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
