// Package model holds the GORM table models of recorded runs.
package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Run{},
	&VehicleState{},
	&ControlEvent{},
	&PeerEvent{},
	&Performance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// Performance is one write cycle of the recorder
type Performance struct {
	ID                  uint              `json:"id" gorm:"primarykey;autoIncrement;"`
	Time                time.Time         `json:"time" gorm:"index:idx_performance_time"`
	RunID               uint              `json:"runId" gorm:"index:idx_performance_run_id"`
	Run                 Run               `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*Performance) TableName() string {
	return "performances"
}

// WriteQueueLengths is the backlog of each write queue before a write cycle
type WriteQueueLengths struct {
	VehicleStates uint32 `json:"vehicleStates"`
	Controls      uint32 `json:"controls"`
	PeerEvents    uint32 `json:"peerEvents"`
}

////////////////////////
// RUNS
////////////////////////

// Run is one simulator session
type Run struct {
	ID             uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	CreatedAt      time.Time      `json:"-"`
	UID            string         `json:"uid" gorm:"size:36;uniqueIndex:idx_run_uid"` // external run id
	Name           string         `json:"name" gorm:"size:200"`
	Tag            string         `json:"tag" gorm:"size:127"`
	StartTime      time.Time      `json:"startTime" gorm:"index:idx_run_start"`
	EndTime        sql.NullTime   `json:"endTime"`
	ControlMode    string         `json:"controlMode" gorm:"size:16"`
	TickRate       float64        `json:"tickRate"`
	FrameSize      int            `json:"frameSize"`
	HasOrientation bool           `json:"hasOrientation"`
	Arena          string         `json:"arena"` // WKT walls
	VehicleParams  datatypes.JSON `json:"vehicleParams" gorm:"default:'{}'"`
	Version        string         `json:"version" gorm:"size:64"`

	VehicleStates []VehicleState `json:"-"`
	ControlEvents []ControlEvent `json:"-"`
	PeerEvents    []PeerEvent    `json:"-"`
}

func (*Run) TableName() string {
	return "runs"
}

// VehicleState is the vehicle at the end of one recorded tick
type VehicleState struct {
	ID    uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time  time.Time `json:"time"`
	RunID uint      `json:"runId" gorm:"index:idx_vehiclestate_run_id"`
	Run   Run       `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	Tick  uint64    `json:"tick" gorm:"index:idx_vehiclestate_tick"`

	Position    geom.Point `json:"position"`  // arena X/Z as a 2D point
	Elevation   float64    `json:"elevation"` // arena Y
	Heading     float64    `json:"heading"`   // radians about +Y
	Orientation float32    `json:"orientation"`

	Speed          float64 `json:"speed"`
	Steering       float64 `json:"steering"`
	SpeedTarget    float64 `json:"speedTarget"`
	SteeringTarget float64 `json:"steeringTarget"`

	Ranges Ranges `json:"ranges" gorm:"embedded;embeddedPrefix:range_"`
	Peers  int    `json:"peers"`

	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

func (*VehicleState) TableName() string {
	return "vehicle_states"
}

// Ranges are the range sensor distances of a VehicleState
type Ranges struct {
	Front float32 `json:"front"`
	Back  float32 `json:"back"`
	Left  float32 `json:"left"`
	Right float32 `json:"right"`
}

////////////////////////
// EVENTS
////////////////////////

// ControlEvent is a control frame applied from a peer
type ControlEvent struct {
	ID     uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time   time.Time `json:"time" gorm:"index:idx_controlevent_time"`
	RunID  uint      `json:"runId" gorm:"index:idx_controlevent_run_id"`
	Run    Run       `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	PeerID string    `json:"peerId" gorm:"size:36;index:idx_controlevent_peer_id"`
	Value1 float32   `json:"value1"`
	Value2 float32   `json:"value2"`
}

func (*ControlEvent) TableName() string {
	return "control_events"
}

// PeerEvent is a peer connecting or disconnecting
type PeerEvent struct {
	ID         uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time       time.Time `json:"time"`
	RunID      uint      `json:"runId" gorm:"index:idx_peerevent_run_id"`
	Run        Run       `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	PeerID     string    `json:"peerId" gorm:"size:36"`
	RemoteAddr string    `json:"remoteAddr" gorm:"size:64"`
	Connected  bool      `json:"connected"`
}

func (*PeerEvent) TableName() string {
	return "peer_events"
}
