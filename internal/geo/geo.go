// Package geo places the arena on the globe so recorded runs can be shown on
// a map. Positions are projected through Web Mercator (EPSG:3857) around a
// configured WGS84 origin.
package geo

import (
	"errors"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/wro-sim/simlink/pkg/core"
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// maxLatitude is the Web Mercator latitude limit.
const maxLatitude = 85.05112878

// Coords3857From4326 creates a Web Mercator point from a longitude and latitude
func Coords3857From4326(
	longitude float64,
	latitude float64,
) (
	point geom.Point,
	err error,
) {
	if !validLonLat(longitude, latitude) {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	var x, y float64
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ = f(longitude, latitude, 0)
	point = geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: x, Y: y},
		},
	)
	return point, nil
}

// Projector converts arena positions to WGS84. Arena +Z points north and
// arena +X points west, matching a car spawned facing north whose right-hand
// side is east.
type Projector struct {
	origin  geom.XY
	scale   float64
	toWGS84 func(a, b, c float64) (float64, float64, float64)
}

// NewProjector anchors the arena origin at lat/lon.
func NewProjector(lat, lon float64) (*Projector, error) {
	origin, err := Coords3857From4326(lon, lat)
	if err != nil {
		return nil, err
	}
	xy, _ := origin.XY()
	return &Projector{
		origin:  xy,
		scale:   1 / math.Cos(lat*math.Pi/180),
		toWGS84: wgs84.EPSG().Transform(3857, 4326),
	}, nil
}

// Point returns pos as a Web Mercator point.
func (p *Projector) Point(pos core.Position3D) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY: geom.XY{
			X: p.origin.X - pos.X*p.scale,
			Y: p.origin.Y + pos.Z*p.scale,
		},
	})
}

// LatLon returns the WGS84 latitude and longitude of pos.
func (p *Projector) LatLon(pos core.Position3D) (lat, lon float64) {
	xy, _ := p.Point(pos).XY()
	lon, lat, _ = p.toWGS84(xy.X, xy.Y, 0)
	return lat, lon
}

func validLonLat(lon, lat float64) bool {
	return lon >= -180 && lon <= 180 && math.Abs(lat) <= maxLatitude
}
