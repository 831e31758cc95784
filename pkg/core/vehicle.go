package core

import "time"

// VehicleState is the vehicle as seen at the end of one simulation tick.
type VehicleState struct {
	Tick     uint64     `json:"tick"`
	Time     time.Time  `json:"time"`
	Position Position3D `json:"position"`
	Heading  float64    `json:"heading"` // radians about +Y

	// Orientation is the heading change since spawn in degrees, clockwise.
	Orientation float32 `json:"orientation"`

	Speed          float64 `json:"speed"`
	Steering       float64 `json:"steering"`
	SpeedTarget    float64 `json:"speedTarget"`
	SteeringTarget float64 `json:"steeringTarget"`

	Ranges Ranges `json:"ranges"`
	Peers  int    `json:"peers"`

	Latitude  float64 `json:"lat,omitempty"`
	Longitude float64 `json:"lon,omitempty"`
}
