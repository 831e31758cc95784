// Package worker turns dispatched simulator events into storage, influx and
// dashboard writes.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wro-sim/simlink/internal/run"
	"github.com/wro-sim/simlink/internal/storage"
	"github.com/wro-sim/simlink/pkg/core"
)

// ErrUnexpectedPayload is returned when an event carries the wrong payload type.
var ErrUnexpectedPayload = errors.New("unexpected event payload")

// TelemetryWriter mirrors vehicle states to a time-series store.
type TelemetryWriter interface {
	WriteVehicleState(run *core.Run, s *core.VehicleState) error
}

// Uploader sends an exported recording to the dashboard.
type Uploader interface {
	Upload(ctx context.Context, filePath string, meta core.UploadMetadata) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	RunContext *run.Context
	Logger     *slog.Logger
	Telemetry  TelemetryWriter // optional
	Uploader   Uploader        // optional
	Now        func() time.Time
}

// Manager records events into one storage backend.
type Manager struct {
	deps    Dependencies
	backend storage.Backend
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.RunContext == nil {
		deps.RunContext = run.NewContext()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// DBWriteDurationProvider is an optional interface that backends can implement
// to expose their last DB write duration for monitoring.
type DBWriteDurationProvider interface {
	GetLastDBWriteDuration() time.Duration
}

// GetLastDBWriteDuration returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	if p, ok := m.backend.(DBWriteDurationProvider); ok {
		return p.GetLastDBWriteDuration()
	}
	return 0
}

// EndRun stamps the end time, ends the run on the backend and uploads the
// export when the backend produced one. Call it after the dispatcher has
// drained so every queued state is recorded first.
func (m *Manager) EndRun(ctx context.Context) error {
	r := m.deps.RunContext.GetRun()
	if !m.deps.RunContext.Started() {
		return nil
	}
	if r.EndTime.IsZero() {
		r.EndTime = m.deps.Now()
	}

	if err := m.backend.EndRun(); err != nil {
		return err
	}
	m.deps.Logger.Info("Run ended", "run", r.ID, "duration", r.EndTime.Sub(r.StartTime))

	up, ok := m.backend.(storage.Uploadable)
	if !ok || m.deps.Uploader == nil {
		return nil
	}
	path := up.GetExportedFilePath()
	if path == "" {
		return nil
	}
	if err := m.deps.Uploader.Upload(ctx, path, up.GetExportMetadata()); err != nil {
		m.deps.Logger.Warn("Upload failed, export kept on disk", "path", path, "error", err)
		return err
	}
	m.deps.Logger.Info("Run uploaded", "path", path)
	return nil
}
