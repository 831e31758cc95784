package core

import "time"

// Run is one simulator session, from serve start to shutdown.
type Run struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Tag       string    `json:"tag"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime,omitempty"`

	ControlMode    string        `json:"controlMode"`
	TickRate       float64       `json:"tickRate"`
	FrameSize      int           `json:"frameSize"`
	HasOrientation bool          `json:"hasOrientation"`
	Arena          string        `json:"arena,omitempty"` // WKT walls
	Vehicle        VehicleParams `json:"vehicle"`
	Version        string        `json:"version"`
}

// VehicleParams are the kinematic constants a run was recorded with.
type VehicleParams struct {
	Acceleration     float64 `json:"acceleration"`
	StopDeceleration float64 `json:"stopDeceleration"`
	MaxSpeed         float64 `json:"maxSpeed"`
	MaxSteeringAngle float64 `json:"maxSteeringAngle"`
	WheelBase        float64 `json:"wheelBase"`
	TrackWidth       float64 `json:"trackWidth"`
	SteeringRate     float64 `json:"steeringRate"`
}
