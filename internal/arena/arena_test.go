package arena

import (
	"math"
	"testing"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/wro-sim/simlink/internal/frame"
	"github.com/wro-sim/simlink/internal/sensor"
	"github.com/wro-sim/simlink/internal/vehicle"
)

func newTestArena(t *testing.T, cfg Config) *Arena {
	t.Helper()
	a, err := New(cfg, frame.DefaultLayout())
	require.NoError(t, err)
	return a
}

func TestSense_CorridorDistances(t *testing.T) {
	a := newTestArena(t, DefaultConfig())

	// in the corridor south of the island, facing +Z
	obs := a.Sense(vehicle.State{Position: r3.Vec{Z: -1}})

	for _, d := range sensor.Directions {
		assert.True(t, obs.Ranges[d].Hit, "%s should hit a wall", d)
	}
	assert.InDelta(t, 0.4075, obs.Ranges[sensor.Front].Distance, 1e-6)
	assert.InDelta(t, 0.4075, obs.Ranges[sensor.Back].Distance, 1e-6)
	assert.InDelta(t, 1.44, obs.Ranges[sensor.Left].Distance, 1e-6)
	assert.InDelta(t, 1.44, obs.Ranges[sensor.Right].Distance, 1e-6)
	assert.Nil(t, obs.Image)
}

func TestSense_FollowsHeading(t *testing.T) {
	a := newTestArena(t, DefaultConfig())

	obs := a.Sense(vehicle.State{Position: r3.Vec{X: -1}, Heading: math.Pi / 2})

	assert.InDelta(t, 0.4075, obs.Ranges[sensor.Front].Distance, 1e-6)
	assert.InDelta(t, 0.4075, obs.Ranges[sensor.Back].Distance, 1e-6)
}

func TestSense_BeyondMaxRangeIsMiss(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRange = 1.0
	a := newTestArena(t, cfg)

	obs := a.Sense(vehicle.State{Position: r3.Vec{Z: -1}})

	assert.True(t, obs.Ranges[sensor.Front].Hit)
	assert.False(t, obs.Ranges[sensor.Left].Hit)
	assert.False(t, obs.Ranges[sensor.Right].Hit)
}

func TestSense_WithoutIsland(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InnerSize = 0
	a := newTestArena(t, cfg)

	obs := a.Sense(vehicle.State{})

	assert.InDelta(t, 1.5-0.0925, obs.Ranges[sensor.Front].Distance, 1e-6)
	assert.InDelta(t, 1.5-0.06, obs.Ranges[sensor.Left].Distance, 1e-6)
}

func TestSense_FillImage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FillImage = true
	cfg.Color = [3]byte{10, 20, 30}
	a := newTestArena(t, cfg)

	img := a.Sense(vehicle.State{Position: r3.Vec{Z: -1}}).Image
	require.Len(t, img, frame.ImageBytes)
	assert.Equal(t, []byte{10, 20, 30}, img[:3])
	assert.Equal(t, []byte{10, 20, 30}, img[len(img)-3:])
}

func TestNew_RejectsBadConfig(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"outer":  func(c *Config) { c.OuterSize = 0 },
		"inner":  func(c *Config) { c.InnerSize = 5 },
		"range":  func(c *Config) { c.MaxRange = -1 },
		"island": func(c *Config) { c.InnerSize = -0.5 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := New(cfg, frame.DefaultLayout())
			assert.Error(t, err)
		})
	}
}

func TestWKT(t *testing.T) {
	a := newTestArena(t, DefaultConfig())
	wkt := a.WKT()
	assert.Contains(t, wkt, "MULTILINESTRING")
	assert.Contains(t, wkt, "1.5")
}

func vec(x, y float64) r2.Vec {
	return r2.Vec{X: x, Y: y}
}

func TestSegmentHit(t *testing.T) {
	_, ok := segment{p: vec(0, 1), q: vec(5, 1)}.hit(vec(0, 0), vec(1, 0))
	assert.False(t, ok, "parallel ray")

	wall := segment{p: vec(-1, 2), q: vec(1, 2)}
	d, ok := wall.hit(vec(0, 0), vec(0, 1))
	require.True(t, ok)
	assert.Equal(t, 2.0, d)

	_, ok = wall.hit(vec(0, 0), vec(0, -1))
	assert.False(t, ok, "wall behind the sensor")

	_, ok = wall.hit(vec(3, 0), vec(0, 1))
	assert.False(t, ok, "ray passes beside the segment")
}

func TestNew_SplitsWallsIntoSegments(t *testing.T) {
	a := newTestArena(t, DefaultConfig())
	assert.Len(t, a.segments, 8, "outer and inner squares")

	cfg := DefaultConfig()
	cfg.InnerSize = 0
	cfg.Obstacles = []geom.LineString{
		geom.NewLineString(geom.NewSequence([]float64{0, 0, 0.2, 0, 0.2, 0.2}, geom.DimXY)),
	}
	a = newTestArena(t, cfg)
	assert.Len(t, a.segments, 6)
}

func TestSense_Obstacle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InnerSize = 0
	cfg.Obstacles = []geom.LineString{
		geom.NewLineString(geom.NewSequence([]float64{-0.5, 0.5, 0.5, 0.5}, geom.DimXY)),
	}
	a := newTestArena(t, cfg)

	obs := a.Sense(vehicle.State{})

	assert.InDelta(t, 0.5-0.0925, obs.Ranges[sensor.Front].Distance, 1e-6)
	assert.InDelta(t, 1.5-0.0925, obs.Ranges[sensor.Back].Distance, 1e-6)
	assert.Contains(t, a.WKT(), "-0.5 0.5")
}

func TestNew_RejectsEmptyObstacle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Obstacles = []geom.LineString{{}}

	_, err := New(cfg, frame.DefaultLayout())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "obstacle 0")
}
