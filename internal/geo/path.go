package geo

import (
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/skyblocks/flightdeck/pkg/core"
)

// LocalLineString converts a path history into a LineString in local metres.
// Paths with fewer than two points give an empty LineString.
func LocalLineString(path []core.PathPoint) geom.LineString {
	if len(path) < 2 {
		return geom.LineString{}
	}
	coords := make([]float64, 0, len(path)*2)
	for _, pt := range path {
		coords = append(coords, pt.X, pt.Y)
	}
	return geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
}

// LineString converts a path history into a lon/lat LineString.
func (p *Projector) LineString(path []core.PathPoint) geom.LineString {
	if len(path) < 2 {
		return geom.LineString{}
	}
	coords := make([]float64, 0, len(path)*2)
	for _, pt := range path {
		lon, lat := p.LonLat(pt.X, pt.Y)
		coords = append(coords, lon, lat)
	}
	return geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
}

// PathGeoJSON encodes a path history as a GeoJSON LineString geometry.
func (p *Projector) PathGeoJSON(path []core.PathPoint) ([]byte, error) {
	data, err := p.LineString(path).AsGeometry().MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode path: %w", err)
	}
	return data, nil
}

// PathLength is the planar length of a path history in metres.
func PathLength(path []core.PathPoint) float64 {
	return LocalLineString(path).Length()
}
