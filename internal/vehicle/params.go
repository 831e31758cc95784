package vehicle

import (
	"errors"
	"fmt"
)

// ControlMode selects how the first control value is interpreted.
type ControlMode string

const (
	// ModeSpeed treats value1 as an absolute speed target in m/s.
	ModeSpeed ControlMode = "speed"
	// ModeAcceleration treats value1 as an acceleration percent integrated
	// against the maximum speed.
	ModeAcceleration ControlMode = "acceleration"
)

// ParseControlMode validates a configured mode name.
func ParseControlMode(s string) (ControlMode, error) {
	switch ControlMode(s) {
	case ModeSpeed, ModeAcceleration:
		return ControlMode(s), nil
	default:
		return "", fmt.Errorf("unknown control mode %q", s)
	}
}

// Params are the fixed physical constants of the vehicle.
type Params struct {
	Mode ControlMode

	Acceleration     float64 // m/s^2
	StopDeceleration float64 // m/s^2, used when slowing down or reversing
	MaxSpeed         float64 // m/s
	MaxSteeringAngle float64 // degrees at steering percent 1
	WheelBase        float64 // m, front to rear axle
	TrackWidth       float64 // m, left to right wheel
	SteeringRate     float64 // steering percent per second
	StraightEpsilon  float64 // |steering| below this drives straight
	MaxTurningRadius float64 // m, larger radii drive straight
}

// DefaultParams returns the WRO future-engineers car.
func DefaultParams() Params {
	return Params{
		Mode:             ModeSpeed,
		Acceleration:     1.0,
		StopDeceleration: 20.0,
		MaxSpeed:         0.333,
		MaxSteeringAngle: 30.0,
		WheelBase:        0.122,
		TrackWidth:       0.094,
		SteeringRate:     5.0,
		StraightEpsilon:  1e-4,
		MaxTurningRadius: 1000,
	}
}

// Validate rejects parameter sets the integrator cannot run with.
func (p Params) Validate() error {
	var errs []error
	if _, err := ParseControlMode(string(p.Mode)); err != nil {
		errs = append(errs, err)
	}
	positive := map[string]float64{
		"acceleration":     p.Acceleration,
		"stopDeceleration": p.StopDeceleration,
		"maxSpeed":         p.MaxSpeed,
		"wheelBase":        p.WheelBase,
		"steeringRate":     p.SteeringRate,
		"straightEpsilon":  p.StraightEpsilon,
		"maxTurningRadius": p.MaxTurningRadius,
	}
	for name, v := range positive {
		if !(v > 0) {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, v))
		}
	}
	if !(p.MaxSteeringAngle > 0 && p.MaxSteeringAngle < 90) {
		errs = append(errs, fmt.Errorf("maxSteeringAngle must be in (0, 90), got %v", p.MaxSteeringAngle))
	}
	return errors.Join(errs...)
}
