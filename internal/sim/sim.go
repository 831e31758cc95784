// Package sim drives the simulation: once per tick it updates the controller,
// integrates the vehicle, senses the environment, broadcasts the telemetry
// frame and publishes the vehicle state for recording.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wro-sim/simlink/internal/controller"
	"github.com/wro-sim/simlink/internal/dispatcher"
	"github.com/wro-sim/simlink/internal/geo"
	"github.com/wro-sim/simlink/internal/sensor"
	"github.com/wro-sim/simlink/internal/vehicle"
	"github.com/wro-sim/simlink/pkg/core"
	"github.com/wro-sim/simlink/pkg/streaming"
)

// Host is the environment the vehicle drives in. It reports what the sensors
// see at a pose.
type Host interface {
	Sense(s vehicle.State) sensor.Observation
}

// Broadcaster delivers a telemetry frame to every connected peer.
type Broadcaster interface {
	Broadcast(data []byte) int
	PeerCount() int
}

// Publisher accepts recorded events. *dispatcher.Dispatcher satisfies it.
type Publisher interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Config holds tick loop settings.
type Config struct {
	TickRate    float64 // Hz
	RecordEvery int     // publish every Nth tick; 0 disables publishing
}

// DefaultConfig runs at 60 Hz and records ten states per second.
func DefaultConfig() Config {
	return Config{TickRate: 60, RecordEvery: 6}
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithPublisher publishes vehicle states to p.
func WithPublisher(p Publisher) Option {
	return func(r *Runner) { r.pub = p }
}

// WithProjector adds latitude and longitude to published states.
func WithProjector(p *geo.Projector) Option {
	return func(r *Runner) { r.geo = p }
}

// WithHost sets the environment. Without one the range channels stay as the
// last producer left them.
func WithHost(h Host) Option {
	return func(r *Runner) { r.host = h }
}

// WithClock replaces time.Now for state timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Runner owns the vehicle and is the only goroutine that mutates it.
type Runner struct {
	cfg     Config
	vehicle *vehicle.Vehicle
	ctrl    controller.Controller
	sensors *sensor.Aggregator
	out     Broadcaster

	host   Host
	pub    Publisher
	geo    *geo.Projector
	logger *slog.Logger
	now    func() time.Time

	metrics *metrics

	mu    sync.RWMutex
	ticks uint64
	last  core.VehicleState
}

// New wires a runner. out may be nil when nothing listens.
func New(cfg Config, v *vehicle.Vehicle, ctrl controller.Controller, sensors *sensor.Aggregator, out Broadcaster, opts ...Option) (*Runner, error) {
	if !(cfg.TickRate > 0) {
		return nil, fmt.Errorf("tick rate must be positive, got %v", cfg.TickRate)
	}
	if cfg.RecordEvery < 0 {
		return nil, fmt.Errorf("record interval must not be negative, got %d", cfg.RecordEvery)
	}

	m, err := newMetrics()
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:     cfg,
		vehicle: v,
		ctrl:    ctrl,
		sensors: sensors,
		out:     out,
		logger:  slog.Default(),
		now:     time.Now,
		metrics: m,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Interval is the wall time between ticks.
func (r *Runner) Interval() time.Duration {
	return time.Duration(float64(time.Second) / r.cfg.TickRate)
}

// Run ticks at the configured rate until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	interval := r.Interval()
	dt := interval.Seconds()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("Simulation running", "tickRate", r.cfg.TickRate)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Simulation stopped", "ticks", r.Ticks())
			return nil
		case <-ticker.C:
			if err := r.Step(dt); err != nil {
				r.logger.Error("Tick failed", "tick", r.Ticks(), "error", err)
			}
		}
	}
}

// Step runs one tick of dt seconds. A rejected sensor write is returned after
// the frame has still been broadcast with every channel that was accepted.
func (r *Runner) Step(dt float64) error {
	start := time.Now()
	ctx := context.Background()

	if r.ctrl != nil {
		r.ctrl.Update(r.vehicle, dt)
	}
	st := r.vehicle.Tick(dt)

	var errs []error
	if r.host != nil {
		if err := r.sensors.Apply(r.host.Sense(st)); err != nil {
			errs = append(errs, fmt.Errorf("applying observation: %w", err))
		}
	}
	if r.sensors.Layout().HasOrientation() {
		if err := r.sensors.SetOrientation(float32(r.vehicle.OrientationDegrees())); err != nil {
			errs = append(errs, fmt.Errorf("writing orientation: %w", err))
		}
	}
	if len(errs) > 0 {
		r.metrics.sensorErrors.Add(ctx, int64(len(errs)))
	}

	peers := 0
	if r.out != nil {
		r.out.Broadcast(r.sensors.Snapshot())
		peers = r.out.PeerCount()
	}

	state := r.record(st, peers)
	r.publish(state)

	r.metrics.ticks.Add(ctx, 1)
	r.metrics.tickDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000)
	return errors.Join(errs...)
}

func (r *Runner) record(st vehicle.State, peers int) core.VehicleState {
	readings := r.sensors.Readings()
	state := core.VehicleState{
		Time:           r.now(),
		Position:       core.Position3D{X: st.Position.X, Y: st.Position.Y, Z: st.Position.Z},
		Heading:        st.Heading,
		Orientation:    float32(r.vehicle.OrientationDegrees()),
		Speed:          st.Speed,
		Steering:       st.Steering,
		SpeedTarget:    st.SpeedTarget,
		SteeringTarget: st.SteeringTarget,
		Ranges: core.Ranges{
			Front: readings.Front,
			Back:  readings.Back,
			Left:  readings.Left,
			Right: readings.Right,
		},
		Peers: peers,
	}
	if r.geo != nil {
		state.Latitude, state.Longitude = r.geo.LatLon(state.Position)
	}

	r.mu.Lock()
	r.ticks++
	state.Tick = r.ticks
	r.last = state
	r.mu.Unlock()
	return state
}

func (r *Runner) publish(state core.VehicleState) {
	if r.pub == nil || r.cfg.RecordEvery == 0 || state.Tick%uint64(r.cfg.RecordEvery) != 0 {
		return
	}
	_, err := r.pub.Dispatch(dispatcher.Event{
		Type:      streaming.TypeVehicleState,
		Payload:   &state,
		Timestamp: state.Time,
	})
	if err != nil {
		r.logger.Debug("Vehicle state not recorded", "tick", state.Tick, "error", err)
	}
}

// Ticks returns how many ticks have run.
func (r *Runner) Ticks() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ticks
}

// Last returns the state recorded by the most recent tick.
func (r *Runner) Last() core.VehicleState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}
