// Package storage defines the recording backends a run can be written to.
package storage

import "github.com/wro-sim/simlink/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Run management. The caller sets run.EndTime before EndRun.
	StartRun(run *core.Run) error
	EndRun() error

	// State recording
	RecordVehicleState(s *core.VehicleState) error

	// Event recording
	RecordControl(e *core.ControlEvent) error
	RecordPeerEvent(e *core.PeerEvent) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to the dashboard.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}

// Nop discards everything. It backs storage type "none".
type Nop struct{}

func (Nop) Init() error { return nil }
func (Nop) Close() error { return nil }
func (Nop) StartRun(*core.Run) error { return nil }
func (Nop) EndRun() error { return nil }
func (Nop) RecordVehicleState(*core.VehicleState) error { return nil }
func (Nop) RecordControl(*core.ControlEvent) error { return nil }
func (Nop) RecordPeerEvent(*core.PeerEvent) error { return nil }
