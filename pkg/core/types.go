// Package core holds the recording types shared by the simulator, its storage
// backends and external consumers.
package core

// Position3D is a position in arena metres. Y is up.
type Position3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Ranges are the four range sensor distances in metres.
type Ranges struct {
	Front float32 `json:"front"`
	Back  float32 `json:"back"`
	Left  float32 `json:"left"`
	Right float32 `json:"right"`
}

// UploadMetadata describes an exported recording for the dashboard.
type UploadMetadata struct {
	RunID    string  `json:"runId"`
	Name     string  `json:"name"`
	Duration float64 `json:"duration"` // seconds
	Ticks    uint64  `json:"ticks"`
	Tag      string  `json:"tag"`
}
