// Package controller turns driver input into vehicle targets once per tick.
package controller

import (
	"math"
	"sync/atomic"

	"github.com/wro-sim/simlink/internal/vehicle"
)

// Controller applies its latest input to the vehicle before the vehicle ticks.
type Controller interface {
	Update(v *vehicle.Vehicle, dt float64)
}

// Targets holds the most recent control frame. Writers from any number of
// peers race freely; the last one wins. It satisfies server.ControlSink.
type Targets struct {
	bits    atomic.Uint64
	updates atomic.Uint64
}

// SetControl stores a control frame.
func (t *Targets) SetControl(value1, value2 float32) {
	t.bits.Store(uint64(math.Float32bits(value1))<<32 | uint64(math.Float32bits(value2)))
	t.updates.Add(1)
}

// Load returns the most recent control values, zero if none arrived yet.
func (t *Targets) Load() (value1, value2 float32) {
	b := t.bits.Load()
	return math.Float32frombits(uint32(b >> 32)), math.Float32frombits(uint32(b))
}

// Updates returns how many control frames were stored.
func (t *Targets) Updates() uint64 {
	return t.updates.Load()
}

// Remote drives the vehicle from control frames received over the network.
type Remote struct {
	targets *Targets
}

// NewRemote reads from targets.
func NewRemote(targets *Targets) *Remote {
	return &Remote{targets: targets}
}

// Update copies the latest control frame into the vehicle.
func (r *Remote) Update(v *vehicle.Vehicle, _ float64) {
	value1, value2 := r.targets.Load()
	v.SetTargets(float64(value1), float64(value2))
}
