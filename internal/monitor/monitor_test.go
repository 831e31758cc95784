package monitor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wro-sim/simlink/internal/controller"
	"github.com/wro-sim/simlink/internal/influx"
	"github.com/wro-sim/simlink/internal/model"
	"github.com/wro-sim/simlink/internal/run"
	"github.com/wro-sim/simlink/pkg/core"
)

type fakeSim struct{}

func (fakeSim) Ticks() uint64 { return 120 }
func (fakeSim) Last() core.VehicleState {
	return core.VehicleState{Tick: 120, Speed: 0.25, Ranges: core.Ranges{Front: 0.8}}
}

type fakePeers int

func (p fakePeers) PeerCount() int { return int(p) }

type fakeQueues struct{}

func (fakeQueues) QueueLengths() model.WriteQueueLengths {
	return model.WriteQueueLengths{VehicleStates: 4, Controls: 2, PeerEvents: 1}
}
func (fakeQueues) Dropped() uint64 { return 3 }
func (fakeQueues) GetLastDBWriteDuration() time.Duration { return 1500 * time.Microsecond }

type perfRecorder struct {
	mu     sync.Mutex
	points []influx.PerformancePoint
}

func (r *perfRecorder) WritePerformance(pp influx.PerformancePoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, pp)
	return nil
}

func (r *perfRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.points)
}

func fixedNow() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestGetProgramStatus(t *testing.T) {
	rc := run.NewContext()
	rc.SetRun(&core.Run{ID: "r1", Name: "lap"})

	s := NewService(Dependencies{
		Sim:        fakeSim{},
		Peers:      fakePeers(2),
		RunContext: rc,
		Queues:     fakeQueues{},
		Now:        fixedNow,
	})

	st := s.GetProgramStatus()
	assert.Equal(t, fixedNow(), st.Time)
	assert.Equal(t, "r1", st.RunID)
	assert.Equal(t, "lap", st.RunName)
	assert.Equal(t, uint64(120), st.Ticks)
	assert.Equal(t, 2, st.Peers)
	assert.Equal(t, 0.25, st.Vehicle.Speed)
	assert.Zero(t, st.ControlFrames)
	require.NotNil(t, st.WriteQueues)
	assert.Equal(t, uint32(4), st.WriteQueues.VehicleStates)
	assert.Equal(t, uint64(3), st.DroppedWrites)
	assert.InDelta(t, 1.5, st.LastWriteDurationMs, 1e-6)

	pp := st.PerformancePoint()
	assert.Equal(t, 7, pp.QueuedWrites)
	assert.Equal(t, 1500*time.Microsecond, pp.DBWrite)
}

func TestGetProgramStatus_NoQueues(t *testing.T) {
	s := NewService(Dependencies{Sim: fakeSim{}, Peers: fakePeers(0)})

	st := s.GetProgramStatus()
	assert.Nil(t, st.WriteQueues)
	assert.Empty(t, st.RunID)
	assert.Equal(t, 0, st.PerformancePoint().QueuedWrites)
}

func TestGetProgramStatus_CountsControlFrames(t *testing.T) {
	targets := &controller.Targets{}
	s := NewService(Dependencies{Sim: fakeSim{}, Peers: fakePeers(1), Controls: targets})

	assert.Zero(t, s.GetProgramStatus().ControlFrames)
	targets.SetControl(0.2, -0.5)
	targets.SetControl(0.3, 0)
	targets.SetControl(0, 0)
	assert.Equal(t, uint64(3), s.GetProgramStatus().ControlFrames)
}

func TestSample_WritesStatusFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	perf := &perfRecorder{}
	s := NewService(Dependencies{Sim: fakeSim{}, Peers: fakePeers(1), Perf: perf, Now: fixedNow})

	s.Sample(f)
	s.Sample(f)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal(data, &st), "file should hold exactly one sample")
	assert.Equal(t, uint64(120), st.Ticks)
	assert.Equal(t, float32(0.8), st.Vehicle.Ranges.Front)
	assert.Equal(t, 2, perf.len())
}

func TestStartStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	perf := &perfRecorder{}
	s := NewService(Dependencies{
		Sim:        fakeSim{},
		Peers:      fakePeers(1),
		Perf:       perf,
		Interval:   5 * time.Millisecond,
		StatusFile: path,
	})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool { return perf.len() >= 2 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	s := NewService(Dependencies{Sim: fakeSim{}, Peers: fakePeers(0), Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 5*time.Millisecond)
}

func TestStart_BadStatusFile(t *testing.T) {
	s := NewService(Dependencies{
		Sim:        fakeSim{},
		Peers:      fakePeers(0),
		StatusFile: filepath.Join(t.TempDir(), "missing", "status.json"),
	})
	require.Error(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
}
