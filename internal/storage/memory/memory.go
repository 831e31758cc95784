// Package memory keeps a run in memory and exports it as JSON when the run ends.
package memory

import (
	"errors"
	"sync"

	"github.com/wro-sim/simlink/internal/config"
	"github.com/wro-sim/simlink/pkg/core"
)

// ErrNoRun is returned when recording before StartRun.
var ErrNoRun = errors.New("no run started")

// Backend stores run data in memory and exports to JSON
type Backend struct {
	cfg config.MemoryConfig
	run *core.Run

	states   []core.VehicleState
	controls []core.ControlEvent
	peers    []core.PeerEvent

	lastExportPath string
	lastExportMeta core.UploadMetadata
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartRun begins recording a new run and drops anything recorded before.
func (b *Backend) StartRun(run *core.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.run = run
	b.states = nil
	b.controls = nil
	b.peers = nil
	return nil
}

// EndRun finalizes and exports the run data
func (b *Backend) EndRun() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.run == nil {
		return ErrNoRun
	}
	return b.exportJSON()
}

// RecordVehicleState records one vehicle state
func (b *Backend) RecordVehicleState(s *core.VehicleState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.run == nil {
		return ErrNoRun
	}
	b.states = append(b.states, *s)
	return nil
}

// RecordControl records an applied control frame
func (b *Backend) RecordControl(e *core.ControlEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.run == nil {
		return ErrNoRun
	}
	b.controls = append(b.controls, *e)
	return nil
}

// RecordPeerEvent records a peer connecting or disconnecting
func (b *Backend) RecordPeerEvent(e *core.PeerEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.run == nil {
		return ErrNoRun
	}
	b.peers = append(b.peers, *e)
	return nil
}

// Counts returns how many states, control events and peer events are held.
func (b *Backend) Counts() (states, controls, peers int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.states), len(b.controls), len(b.peers)
}

// GetExportedFilePath returns the path of the last export, empty before one.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the last export.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportMeta
}
