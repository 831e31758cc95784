package influx

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wro-sim/simlink/internal/config"
	"github.com/wro-sim/simlink/pkg/core"
)

// unreachableConfig points at a server that has already shut down.
func unreachableConfig(t *testing.T) config.InfluxConfig {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	srv.Close()

	return config.InfluxConfig{
		Enabled:   true,
		Host:      u.Hostname(),
		Port:      u.Port(),
		Protocol:  "http",
		Org:       "simlink",
		Bucket:    "telemetry",
		BackupDir: t.TempDir(),
	}
}

func readBackup(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(data)
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{Bucket: "telemetry"}, zerolog.Nop())
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
	assert.False(t, m.IsValid)
}

func TestConnect_FallsBackToBackup(t *testing.T) {
	cfg := unreachableConfig(t)
	m := NewManager(cfg, zerolog.Nop())

	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid)
	require.NotNil(t, m.BackupWriter)

	run := &core.Run{ID: "r1", Tag: "practice"}
	state := &core.VehicleState{
		Tick:   6,
		Time:   time.Unix(1700000000, 0),
		Ranges: core.Ranges{Front: 1.5},
		Peers:  2,
	}
	require.NoError(t, m.WriteVehicleState(run, state))
	require.NoError(t, m.WritePerformance(PerformancePoint{Time: time.Unix(1700000000, 0), Ticks: 60}))
	require.NoError(t, m.Close())

	out := readBackup(t, m.BackupPath)
	assert.Contains(t, out, "vehicle_state,run=r1,tag=practice ")
	assert.Contains(t, out, "range_front=1.5")
	assert.Contains(t, out, "tick=6u")
	assert.Contains(t, out, "peers=2i")
	assert.Contains(t, out, " 1700000000000000000")
	assert.Contains(t, out, "server_performance ")
	assert.Contains(t, out, "ticks=60u")
}

func TestWritePoint_NoBackend(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop())
	err := m.WritePoint("telemetry", influxdb2_write.NewPointWithMeasurement("x").AddField("v", 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup writer not available")
}

func TestClose_Idempotent(t *testing.T) {
	m := NewManager(unreachableConfig(t), zerolog.Nop())
	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestVehicleStatePoint_GeoFields(t *testing.T) {
	s := &core.VehicleState{Latitude: 48.2, Longitude: 16.37, Time: time.Unix(1, 0)}
	line := influxdb2_write.PointToLineProtocol(VehicleStatePoint(nil, s), time.Second)

	assert.Contains(t, line, "vehicle_state ")
	assert.Contains(t, line, "lat=48.2")
	assert.Contains(t, line, "lon=16.37")

	line = influxdb2_write.PointToLineProtocol(VehicleStatePoint(nil, &core.VehicleState{}), time.Second)
	assert.NotContains(t, line, "lat=")
}
