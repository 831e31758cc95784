// Package monitor samples server health once per interval and publishes it to
// a status file, the debug log and the performance bucket.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/wro-sim/simlink/internal/influx"
	"github.com/wro-sim/simlink/internal/model"
	"github.com/wro-sim/simlink/internal/run"
	"github.com/wro-sim/simlink/pkg/core"
)

// Sim is the part of the tick loop the monitor reads.
type Sim interface {
	Ticks() uint64
	Last() core.VehicleState
}

// Peers reports connected clients.
type Peers interface {
	PeerCount() int
}

// ControlCounter counts control frames applied by peers.
type ControlCounter interface {
	Updates() uint64
}

// QueueStats is implemented by buffered storage backends.
type QueueStats interface {
	QueueLengths() model.WriteQueueLengths
	Dropped() uint64
	GetLastDBWriteDuration() time.Duration
}

// PerformanceWriter receives one sample per interval.
type PerformanceWriter interface {
	WritePerformance(influx.PerformancePoint) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Sim        Sim
	Peers      Peers
	RunContext *run.Context
	Controls   ControlCounter    // optional
	Queues     QueueStats        // optional
	Perf       PerformanceWriter // optional
	Logger     *slog.Logger
	Interval   time.Duration
	StatusFile string // optional
	Now        func() time.Time
}

// Status is one health sample.
type Status struct {
	Time                time.Time                `json:"time"`
	RunID               string                   `json:"runId"`
	RunName             string                   `json:"runName"`
	Ticks               uint64                   `json:"ticks"`
	Peers               int                      `json:"peers"`
	ControlFrames       uint64                   `json:"controlFrames"`
	Vehicle             core.VehicleState        `json:"vehicle"`
	WriteQueues         *model.WriteQueueLengths `json:"writeQueues,omitempty"`
	DroppedWrites       uint64                   `json:"droppedWrites"`
	LastWriteDurationMs float32                  `json:"lastWriteDurationMs"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus samples the current state.
func (s *Service) GetProgramStatus() Status {
	st := Status{
		Time:    s.deps.Now(),
		Ticks:   s.deps.Sim.Ticks(),
		Peers:   s.deps.Peers.PeerCount(),
		Vehicle: s.deps.Sim.Last(),
	}
	if s.deps.RunContext != nil {
		r := s.deps.RunContext.GetRun()
		st.RunID, st.RunName = r.ID, r.Name
	}
	if s.deps.Controls != nil {
		st.ControlFrames = s.deps.Controls.Updates()
	}
	if s.deps.Queues != nil {
		q := s.deps.Queues.QueueLengths()
		st.WriteQueues = &q
		st.DroppedWrites = s.deps.Queues.Dropped()
		st.LastWriteDurationMs = float32(s.deps.Queues.GetLastDBWriteDuration().Microseconds()) / 1000
	}
	return st
}

// PerformancePoint converts a sample for the performance bucket.
func (st Status) PerformancePoint() influx.PerformancePoint {
	pp := influx.PerformancePoint{
		Time:          st.Time,
		Ticks:         st.Ticks,
		Peers:         st.Peers,
		DroppedWrites: st.DroppedWrites,
		DBWrite:       time.Duration(st.LastWriteDurationMs * float32(time.Millisecond)),
	}
	if st.WriteQueues != nil {
		pp.QueuedWrites = int(st.WriteQueues.VehicleStates + st.WriteQueues.Controls + st.WriteQueues.PeerEvents)
	}
	return pp
}

// Sample takes one status sample and publishes it.
func (s *Service) Sample(statusFile *os.File) Status {
	st := s.GetProgramStatus()
	logger := s.deps.Logger

	if statusFile != nil {
		data, err := json.MarshalIndent(st, "", "  ")
		if err == nil {
			_ = statusFile.Truncate(0)
			_, _ = statusFile.Seek(0, 0)
			_, err = statusFile.Write(append(data, '\n'))
		}
		if err != nil {
			logger.Error("Error writing status file", "error", err)
		}
	}

	logger.Debug("Status",
		"ticks", st.Ticks,
		"peers", st.Peers,
		"controlFrames", st.ControlFrames,
		"speed", st.Vehicle.Speed,
		"front", st.Vehicle.Ranges.Front,
		"droppedWrites", st.DroppedWrites)

	if s.deps.Perf != nil {
		if err := s.deps.Perf.WritePerformance(st.PerformancePoint()); err != nil {
			logger.Error("Error writing performance point", "error", err)
		}
	}
	return st
}

// Start starts the status monitor goroutine. It stops on Stop or when ctx is done.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}

	var statusFile *os.File
	if s.deps.StatusFile != "" {
		f, err := os.Create(s.deps.StatusFile)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		statusFile = f
	}

	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()
		if statusFile != nil {
			defer statusFile.Close()
		}

		s.deps.Logger.Debug("Starting status monitor", "interval", s.deps.Interval)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sample(statusFile)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	stop, done := s.stopChan, s.done
	s.stopChan = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	<-done
}
