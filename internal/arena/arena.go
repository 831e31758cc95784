// Package arena is the headless environment the simulator runs in when no
// rendering host is attached: a WRO-style square field with an optional
// inner island, sensed by four ray-cast range sensors.
//
// The field lies in the vehicle's X/Z plane; in 2D, X maps to X and Z to Y.
package arena

import (
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/wro-sim/simlink/internal/frame"
	"github.com/wro-sim/simlink/internal/sensor"
	"github.com/wro-sim/simlink/internal/vehicle"
)

// Config describes the field and the sensor mounting.
type Config struct {
	OuterSize float64 // m, side of the outer wall square
	InnerSize float64 // m, side of the inner island; 0 disables it
	MaxRange  float64 // m, range sensor reach

	// Sensor offsets from the car centre along its forward and lateral axes.
	FrontOffset float64
	SideOffset  float64

	// FillImage makes every observation carry a solid image of Color.
	FillImage bool
	Color     [frame.ImageChannels]byte

	// Obstacles are extra walls, in field coordinates.
	Obstacles []geom.LineString
}

// DefaultConfig is the standard 3 m field with a 1 m island.
func DefaultConfig() Config {
	return Config{
		OuterSize:   3.0,
		InnerSize:   1.0,
		MaxRange:    3.0,
		FrontOffset: 0.185 / 2,
		SideOffset:  0.120 / 2,
	}
}

// Arena implements the simulation host over a fixed set of walls.
type Arena struct {
	cfg      Config
	walls    []geom.LineString
	segments []segment
	image    []byte
}

// segment is one straight piece of a wall.
type segment struct {
	p, q r2.Vec
}

// New builds the walls described by cfg.
func New(cfg Config, layout frame.Layout) (*Arena, error) {
	if !(cfg.OuterSize > 0) {
		return nil, fmt.Errorf("outer wall size must be positive, got %v", cfg.OuterSize)
	}
	if cfg.InnerSize < 0 || cfg.InnerSize >= cfg.OuterSize {
		return nil, fmt.Errorf("inner wall size must be in [0, %v), got %v", cfg.OuterSize, cfg.InnerSize)
	}
	if !(cfg.MaxRange > 0) {
		return nil, fmt.Errorf("max range must be positive, got %v", cfg.MaxRange)
	}

	a := &Arena{cfg: cfg}
	a.walls = append(a.walls, square(cfg.OuterSize))
	if cfg.InnerSize > 0 {
		a.walls = append(a.walls, square(cfg.InnerSize))
	}
	for i, o := range cfg.Obstacles {
		if o.Coordinates().Length() < 2 {
			return nil, fmt.Errorf("obstacle %d needs at least 2 points", i)
		}
		a.walls = append(a.walls, o)
	}
	for _, w := range a.walls {
		seq := w.Coordinates()
		for i := 0; i+1 < seq.Length(); i++ {
			a.segments = append(a.segments, segment{p: toVec(seq.GetXY(i)), q: toVec(seq.GetXY(i + 1))})
		}
	}

	if cfg.FillImage {
		a.image = make([]byte, layout.ImageBytes())
		for i := 0; i < len(a.image); i += frame.ImageChannels {
			copy(a.image[i:], cfg.Color[:])
		}
	}
	return a, nil
}

// square is a closed ring of the given side centred on the origin.
func square(side float64) geom.LineString {
	h := side / 2
	seq := geom.NewSequence([]float64{
		-h, -h,
		h, -h,
		h, h,
		-h, h,
		-h, -h,
	}, geom.DimXY)
	return geom.NewLineString(seq)
}

// WKT returns the walls as a WKT MULTILINESTRING, for recordings.
func (a *Arena) WKT() string {
	return geom.NewMultiLineString(a.walls).AsText()
}

// Sense casts the four range rays from the car at s and returns the nearest
// wall hit of each. Rays that reach nothing within MaxRange report no hit.
func (a *Arena) Sense(s vehicle.State) sensor.Observation {
	var obs sensor.Observation

	centre := r2.Vec{X: s.Position.X, Y: s.Position.Z}
	fwd := r2.Vec{X: math.Sin(s.Heading), Y: math.Cos(s.Heading)}
	left := r2.Vec{X: math.Cos(s.Heading), Y: -math.Sin(s.Heading)}

	rays := [...]struct {
		dir    sensor.Direction
		axis   r2.Vec
		offset float64
	}{
		{sensor.Front, fwd, a.cfg.FrontOffset},
		{sensor.Back, r2.Scale(-1, fwd), a.cfg.FrontOffset},
		{sensor.Left, left, a.cfg.SideOffset},
		{sensor.Right, r2.Scale(-1, left), a.cfg.SideOffset},
	}
	for _, r := range rays {
		origin := r2.Add(centre, r2.Scale(r.offset, r.axis))
		if d, ok := a.cast(origin, r.axis); ok {
			obs.Ranges[r.dir] = sensor.Reading{Hit: true, Distance: float32(d)}
		}
	}

	obs.Image = a.image
	return obs
}

// cast returns the distance along the unit vector dir from origin to the
// nearest wall segment.
func (a *Arena) cast(origin, dir r2.Vec) (float64, bool) {
	best := math.Inf(1)
	for _, seg := range a.segments {
		if t, ok := seg.hit(origin, dir); ok && t < best {
			best = t
		}
	}
	if best > a.cfg.MaxRange {
		return 0, false
	}
	return best, true
}

// hit solves origin + t*dir = p + u*(q-p) for t >= 0 and u in [0, 1].
// Rays parallel to the segment never hit it.
func (s segment) hit(origin, dir r2.Vec) (float64, bool) {
	e := r2.Sub(s.q, s.p)
	denom := r2.Cross(dir, e)
	if math.Abs(denom) < 1e-12 {
		return 0, false
	}
	w := r2.Sub(s.p, origin)
	t := r2.Cross(w, e) / denom
	u := r2.Cross(w, dir) / denom
	if t < 0 || u < 0 || u > 1 {
		return 0, false
	}
	return t, true
}

func toVec(xy geom.XY) r2.Vec { return r2.Vec{X: xy.X, Y: xy.Y} }
