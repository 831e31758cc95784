package convert

import (
	"encoding/json"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/wro-sim/simlink/internal/model"
	"github.com/wro-sim/simlink/pkg/core"
)

// pointToPosition converts a ground plane geom.Point and an elevation back to a core.Position3D
func pointToPosition(p geom.Point, elevation float64) core.Position3D {
	xy, ok := p.XY()
	if !ok {
		return core.Position3D{Y: elevation}
	}
	return core.Position3D{X: xy.X, Y: elevation, Z: xy.Y}
}

// RunToCore converts a GORM Run to a core.Run.
// GORM Run.UID maps to core Run.ID.
func RunToCore(r model.Run) core.Run {
	var params core.VehicleParams
	if len(r.VehicleParams) > 0 {
		_ = json.Unmarshal(r.VehicleParams, &params)
	}

	out := core.Run{
		ID:             r.UID,
		Name:           r.Name,
		Tag:            r.Tag,
		StartTime:      r.StartTime,
		ControlMode:    r.ControlMode,
		TickRate:       r.TickRate,
		FrameSize:      r.FrameSize,
		HasOrientation: r.HasOrientation,
		Arena:          r.Arena,
		Vehicle:        params,
		Version:        r.Version,
	}
	if r.EndTime.Valid {
		out.EndTime = r.EndTime.Time
	}
	return out
}

// VehicleStateToCore converts a GORM VehicleState to a core.VehicleState.
func VehicleStateToCore(s model.VehicleState) core.VehicleState {
	return core.VehicleState{
		Tick:           s.Tick,
		Time:           s.Time,
		Position:       pointToPosition(s.Position, s.Elevation),
		Heading:        s.Heading,
		Orientation:    s.Orientation,
		Speed:          s.Speed,
		Steering:       s.Steering,
		SpeedTarget:    s.SpeedTarget,
		SteeringTarget: s.SteeringTarget,
		Ranges: core.Ranges{
			Front: s.Ranges.Front,
			Back:  s.Ranges.Back,
			Left:  s.Ranges.Left,
			Right: s.Ranges.Right,
		},
		Peers:     s.Peers,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
	}
}

// ControlEventToCore converts a GORM ControlEvent to a core.ControlEvent.
func ControlEventToCore(e model.ControlEvent) core.ControlEvent {
	return core.ControlEvent{
		PeerID: e.PeerID,
		Time:   e.Time,
		Value1: e.Value1,
		Value2: e.Value2,
	}
}
