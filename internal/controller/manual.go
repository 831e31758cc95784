package controller

import (
	"sync"

	"github.com/wro-sim/simlink/internal/vehicle"
)

// Action is a driver input the manual controller polls.
type Action string

const (
	ActionAccelerate Action = "accelerate"
	ActionBrake      Action = "brake"
	ActionLeft       Action = "left"
	ActionRight      Action = "right"
)

// Input reports whether an action is currently held.
type Input interface {
	Pressed(a Action) bool
}

// Manual drives the vehicle from held keys: full speed forward or backward,
// full lock left or right, and centred/stopped when nothing is held.
type Manual struct {
	input Input
}

// NewManual polls input on every update.
func NewManual(input Input) *Manual {
	return &Manual{input: input}
}

// Update sets the vehicle's targets from the keys held right now. Accelerate
// wins over brake and left wins over right.
func (m *Manual) Update(v *vehicle.Vehicle, _ float64) {
	p := v.Params()

	full := p.MaxSpeed
	if p.Mode == vehicle.ModeAcceleration {
		full = 1
	}

	throttle := 0.0
	switch {
	case m.input.Pressed(ActionAccelerate):
		throttle = full
	case m.input.Pressed(ActionBrake):
		throttle = -full
	}

	steering := 0.0
	switch {
	case m.input.Pressed(ActionLeft):
		steering = -1
	case m.input.Pressed(ActionRight):
		steering = 1
	}

	v.SetTargets(throttle, steering)
}

// KeyState is an Input fed by an external key-event source.
type KeyState struct {
	mu   sync.RWMutex
	held map[Action]bool
}

// NewKeyState returns a KeyState with nothing held.
func NewKeyState() *KeyState {
	return &KeyState{held: make(map[Action]bool)}
}

// Press marks a as held until Release.
func (k *KeyState) Press(a Action) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.held[a] = true
}

// Release marks a as no longer held. Releasing an unheld action is a no-op.
func (k *KeyState) Release(a Action) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.held, a)
}

// Pressed implements Input.
func (k *KeyState) Pressed(a Action) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.held[a]
}
