// Package vehicle integrates the single-track (bicycle) kinematic model of the
// simulated car.
//
// Coordinates follow the scene convention: Y is up and the car drives along its
// local +Z axis. Heading is the yaw about +Y in radians; a heading of zero
// faces world +Z. Positive steering turns right, which decreases heading.
package vehicle

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	up      = r3.Vec{Y: 1}
	forward = r3.Vec{Z: 1}
)

// State is the pose and actuator state of the car.
type State struct {
	Position r3.Vec
	Heading  float64

	Speed    float64 // m/s, signed
	Steering float64 // percent in [-1, 1]

	SpeedTarget    float64 // m/s, speed mode
	Power          float64 // acceleration percent, acceleration mode
	SteeringTarget float64 // percent in [-1, 1]
}

// Forward returns the unit vector the car faces.
func (s State) Forward() r3.Vec {
	return r3.Rotate(forward, s.Heading, up)
}

// Vehicle owns a State and advances it once per simulation tick. It is not
// safe for concurrent use; the simulation loop is its only writer.
type Vehicle struct {
	params       Params
	state        State
	spawnHeading float64
}

// New places a vehicle at initial. Targets in initial are clamped like
// SetTargets would clamp them.
func New(p Params, initial State) *Vehicle {
	v := &Vehicle{
		params:       p,
		state:        initial,
		spawnHeading: initial.Heading,
	}
	v.state.SpeedTarget = clamp(initial.SpeedTarget, p.MaxSpeed)
	v.state.SteeringTarget = clamp(initial.SteeringTarget, 1)
	return v
}

// Params returns the vehicle constants.
func (v *Vehicle) Params() Params {
	return v.params
}

// State returns a copy of the current state.
func (v *Vehicle) State() State {
	return v.state
}

// SetTargets applies one control frame. throttle is a speed target in speed
// mode and an acceleration percent in acceleration mode. Non-finite values are
// ignored and the previous target kept.
func (v *Vehicle) SetTargets(throttle, steering float64) {
	if isFinite(throttle) {
		switch v.params.Mode {
		case ModeAcceleration:
			v.state.Power = throttle
		default:
			v.state.SpeedTarget = clamp(throttle, v.params.MaxSpeed)
		}
	}
	if isFinite(steering) {
		v.state.SteeringTarget = clamp(steering, 1)
	}
}

// Tick advances the model by dt seconds and returns the new state.
// Non-positive or non-finite dt leaves the state unchanged.
func (v *Vehicle) Tick(dt float64) State {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return v.state
	}

	v.advanceSpeed(dt)
	v.state.Steering = approach(v.state.Steering, v.state.SteeringTarget, v.params.SteeringRate*dt)

	s := &v.state
	if math.Abs(s.Steering) < v.params.StraightEpsilon {
		v.translate(s.Speed * dt)
		return v.state
	}

	r := v.TurningRadius()
	if math.Abs(r) > v.params.MaxTurningRadius {
		v.translate(s.Speed * dt)
		return v.state
	}

	local := r3.Vec{X: -r, Z: -v.params.WheelBase / 2}
	pivot := r3.Add(s.Position, r3.Rotate(local, s.Heading, up))
	v.pivot(pivot, -(s.Speed/r)*dt)
	return v.state
}

// TurningRadius returns the signed radius for the current steering percent.
// It is infinite when driving straight.
func (v *Vehicle) TurningRadius() float64 {
	angle := v.state.Steering * v.params.MaxSteeringAngle * math.Pi / 180
	if angle == 0 {
		return math.Inf(1)
	}
	return v.params.WheelBase / math.Tan(angle)
}

// OrientationDegrees is the heading change since spawn in degrees, clockwise
// (right turns) positive, wrapped to [0, 360).
func (v *Vehicle) OrientationDegrees() float64 {
	deg := -(v.state.Heading - v.spawnHeading) * 180 / math.Pi
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}

func (v *Vehicle) advanceSpeed(dt float64) {
	p := v.params
	s := &v.state

	if p.Mode == ModeAcceleration {
		s.Speed += s.Power * p.Acceleration * dt
		if math.Abs(s.Speed) >= p.MaxSpeed {
			s.Speed = math.Copysign(p.MaxSpeed, s.Speed)
		}
		return
	}

	target := s.SpeedTarget
	switch {
	case s.Speed > 0 && target < 0, s.Speed < 0 && target > 0:
		// reversing: brake to a stop first
		s.Speed = approach(s.Speed, 0, p.StopDeceleration*dt)
	case math.Abs(target) < math.Abs(s.Speed):
		s.Speed = approach(s.Speed, target, p.StopDeceleration*dt)
	default:
		s.Speed = approach(s.Speed, target, p.Acceleration*dt)
	}
}

func (v *Vehicle) translate(distance float64) {
	v.state.Position = r3.Add(v.state.Position, r3.Scale(distance, v.state.Forward()))
}

// pivot rotates the car about a vertical axis through pivot, turning both its
// position and its heading by angle.
func (v *Vehicle) pivot(pivot r3.Vec, angle float64) {
	rel := r3.Sub(v.state.Position, pivot)
	v.state.Position = r3.Add(r3.Rotate(rel, angle, up), pivot)
	v.state.Heading = wrapAngle(v.state.Heading + angle)
}

// approach moves current toward target by at most step, snapping exactly onto
// the target instead of crossing it.
func approach(current, target, step float64) float64 {
	switch {
	case current < target:
		current += step
		if current > target {
			current = target
		}
	case current > target:
		current -= step
		if current < target {
			current = target
		}
	}
	return current
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// wrapAngle keeps a heading within (-pi, pi].
func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
