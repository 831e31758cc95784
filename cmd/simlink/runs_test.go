package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wro-sim/simlink/internal/database"
	gormstorage "github.com/wro-sim/simlink/internal/storage/gorm"
	"github.com/wro-sim/simlink/pkg/core"
)

func seedRuns(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	db, err := database.OpenSqlite(path)
	require.NoError(t, err)

	b := gormstorage.New(gormstorage.Dependencies{DB: db, FlushInterval: time.Hour})
	require.NoError(t, b.Init())

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := &core.Run{ID: "r-1", Name: "lap", Tag: "practice", StartTime: start, ControlMode: "speed"}
	require.NoError(t, b.StartRun(r))
	for tick := uint64(6); tick <= 12; tick += 6 {
		require.NoError(t, b.RecordVehicleState(&core.VehicleState{Tick: tick, Time: start, Speed: 0.1}))
	}
	r.EndTime = start.Add(90 * time.Second)
	require.NoError(t, b.EndRun())
	require.NoError(t, b.Close())
	return path
}

func TestRunRuns_List(t *testing.T) {
	path := seedRuns(t)

	var out bytes.Buffer
	require.NoError(t, runRuns([]string{"-sqlite", path}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "ID")
	assert.Contains(t, lines[1], "r-1")
	assert.Contains(t, lines[1], "practice")
	assert.Contains(t, lines[1], "1m30s")
}

func TestRunRuns_States(t *testing.T) {
	path := seedRuns(t)

	var out bytes.Buffer
	require.NoError(t, runRuns([]string{"-sqlite", path, "-run", "r-1"}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	var s core.VehicleState
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &s))
	assert.Equal(t, uint64(12), s.Tick)
	assert.Equal(t, 0.1, s.Speed)
}

func TestListRuns_UnknownRun(t *testing.T) {
	db, err := database.OpenSqlite(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	err = listRuns(context.Background(), gormstorage.New(gormstorage.Dependencies{DB: db}), "nope", &bytes.Buffer{})
	require.Error(t, err)
}
