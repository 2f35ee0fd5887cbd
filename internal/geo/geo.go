package geo

import (
	"errors"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/skyblocks/flightdeck/pkg/core"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Flight coordinates are local metres with the launch point at the origin,
// X forward (north) and Y left (west). Stored geometries are WGS84 lon/lat
// so that runs can be drawn on a map. The projection goes through web
// mercator (3857), scaled by the latitude of the origin, which is accurate
// to well under a centimetre over a flight grid.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Projector places local flight coordinates on the globe around an origin.
type Projector struct {
	lat, lon float64
	// web mercator origin and metres-per-ground-metre at its latitude
	mx, my float64
	scale  float64
	toWGS  wgs84.Func
}

// NewProjector returns a projector for the launch point at lat/lon.
func NewProjector(lat, lon float64) (*Projector, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.Abs(lat) > 85 || math.Abs(lon) > 180 {
		return nil, ErrInvalidCoordinates
	}
	epsg := wgs84.EPSG()
	mx, my, _ := epsg.Transform(4326, 3857)(lon, lat, 0)
	return &Projector{
		lat:   lat,
		lon:   lon,
		mx:    mx,
		my:    my,
		scale: 1 / math.Cos(lat*math.Pi/180),
		toWGS: epsg.Transform(3857, 4326),
	}, nil
}

// LonLat converts a local position to longitude and latitude.
func (p *Projector) LonLat(x, y float64) (lon, lat float64) {
	east, north := -y, x
	lon, lat, _ = p.toWGS(p.mx+east*p.scale, p.my+north*p.scale, 0)
	return lon, lat
}

// Point returns the local position as a lon/lat point with the altitude as Z.
func (p *Projector) Point(x, y, z float64) geom.Point {
	lon, lat := p.LonLat(x, y)
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: lon, Y: lat},
			Z:    z,
			Type: geom.DimXYZ,
		},
	)
}

// Origin is the launch point.
func (p *Projector) Origin() geom.Point {
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: p.lon, Y: p.lat}})
}

// PosePoint is Point for a drone pose.
func (p *Projector) PosePoint(pose core.Pose) geom.Point {
	return p.Point(pose.X, pose.Y, pose.Z)
}

// Coords3857From4326 creates a web mercator point from a longitude and latitude
func Coords3857From4326(
	longitude float64,
	latitude float64,
) (
	point geom.Point,
	err error,
) {
	if math.Abs(latitude) > 90 || math.Abs(longitude) > 180 {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	point = geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: x, Y: y},
		},
	)
	return point, nil
}
