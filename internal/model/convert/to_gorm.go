// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/wro-sim/simlink/internal/model"
	"github.com/wro-sim/simlink/pkg/core"
)

// positionToPoint converts the ground plane of a core.Position3D (X, Z) to a geom.Point
func positionToPoint(p core.Position3D) geom.Point {
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: p.X, Y: p.Z}})
}

// CoreToRun converts a core.Run to a GORM model.Run.
// core.Run.ID maps to GORM Run.UID.
func CoreToRun(r core.Run) model.Run {
	params, err := json.Marshal(r.Vehicle)
	if err != nil {
		params = []byte("{}")
	}

	out := model.Run{
		UID:            r.ID,
		Name:           r.Name,
		Tag:            r.Tag,
		StartTime:      r.StartTime,
		ControlMode:    r.ControlMode,
		TickRate:       r.TickRate,
		FrameSize:      r.FrameSize,
		HasOrientation: r.HasOrientation,
		Arena:          r.Arena,
		VehicleParams:  datatypes.JSON(params),
		Version:        r.Version,
	}
	if !r.EndTime.IsZero() {
		out.EndTime = sql.NullTime{Time: r.EndTime, Valid: true}
	}
	return out
}

// CoreToVehicleState converts a core.VehicleState to a GORM model.VehicleState.
// RunID is stamped by the writer.
func CoreToVehicleState(s core.VehicleState) model.VehicleState {
	return model.VehicleState{
		Time:           s.Time,
		Tick:           s.Tick,
		Position:       positionToPoint(s.Position),
		Elevation:      s.Position.Y,
		Heading:        s.Heading,
		Orientation:    s.Orientation,
		Speed:          s.Speed,
		Steering:       s.Steering,
		SpeedTarget:    s.SpeedTarget,
		SteeringTarget: s.SteeringTarget,
		Ranges: model.Ranges{
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

// CoreToControlEvent converts a core.ControlEvent to a GORM model.ControlEvent.
func CoreToControlEvent(e core.ControlEvent) model.ControlEvent {
	return model.ControlEvent{
		Time:   e.Time,
		PeerID: e.PeerID,
		Value1: e.Value1,
		Value2: e.Value2,
	}
}

// CoreToPeerEvent converts a core.PeerEvent to a GORM model.PeerEvent.
func CoreToPeerEvent(e core.PeerEvent) model.PeerEvent {
	return model.PeerEvent{
		Time:       e.Time,
		PeerID:     e.PeerID,
		RemoteAddr: e.RemoteAddr,
		Connected:  e.Connected,
	}
}
