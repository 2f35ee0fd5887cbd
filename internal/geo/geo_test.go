package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/skyblocks/flightdeck/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// degrees per metre on the mercator sphere
const degPerMetre = 360 / (2 * math.Pi * 6378137)

func TestNewProjector_Invalid(t *testing.T) {
	for _, tc := range []struct{ lat, lon float64 }{
		{90, 0},
		{0, 181},
		{math.NaN(), 0},
	} {
		_, err := NewProjector(tc.lat, tc.lon)
		assert.True(t, errors.Is(err, ErrInvalidCoordinates), "%v", tc)
	}
}

func TestProjector_OriginMapsToItself(t *testing.T) {
	p, err := NewProjector(52.5163, 13.3777)
	require.NoError(t, err)

	lon, lat := p.LonLat(0, 0)
	assert.InDelta(t, 13.3777, lon, 1e-9)
	assert.InDelta(t, 52.5163, lat, 1e-9)

	c, ok := p.Origin().Coordinates()
	require.True(t, ok)
	assert.Equal(t, 13.3777, c.X)
	assert.Equal(t, 52.5163, c.Y)
}

func TestProjector_Axes(t *testing.T) {
	p, err := NewProjector(0, 0)
	require.NoError(t, err)

	// forward is north
	lon, lat := p.LonLat(1, 0)
	assert.InDelta(t, 0, lon, 1e-12)
	assert.InDelta(t, degPerMetre, lat, 1e-9)

	// left is west
	lon, lat = p.LonLat(0, 1)
	assert.InDelta(t, -degPerMetre, lon, 1e-9)
	assert.InDelta(t, 0, lat, 1e-12)
}

func TestProjector_ScalesWithLatitude(t *testing.T) {
	p, err := NewProjector(60, 10)
	require.NoError(t, err)

	// a metre east spans twice the longitude at 60 degrees
	lon, _ := p.LonLat(0, -1)
	assert.InDelta(t, 10+2*degPerMetre, lon, 1e-9)

	_, lat := p.LonLat(1, 0)
	assert.InDelta(t, 60+degPerMetre, lat, 1e-8)
}

func TestProjector_PointCarriesAltitude(t *testing.T) {
	p, err := NewProjector(52.5163, 13.3777)
	require.NoError(t, err)

	pt := p.PosePoint(core.Pose{X: 2, Y: -1, Z: 1.5})
	c, ok := pt.Coordinates()
	require.True(t, ok)
	assert.InDelta(t, 1.5, c.Z, 1e-12)
	assert.Greater(t, c.X, 13.3777)
	assert.Greater(t, c.Y, 52.5163)
}

func TestCoords3857From4326_ValidCoordinates(t *testing.T) {
	point, err := Coords3857From4326(0, 0)
	require.NoError(t, err)

	coords, ok := point.Coordinates()
	require.True(t, ok)
	assert.InDelta(t, 0, coords.X, 1e-6)
	assert.InDelta(t, 0, coords.Y, 1e-6)
}

func TestCoords3857From4326_NonZeroCoordinates(t *testing.T) {
	point, err := Coords3857From4326(10, 10)
	require.NoError(t, err)

	coords, ok := point.Coordinates()
	require.True(t, ok)
	assert.InDelta(t, 1113194.9, coords.X, 1)
	assert.InDelta(t, 1118889.9, coords.Y, 1)
}

func TestCoords3857From4326_Invalid(t *testing.T) {
	_, err := Coords3857From4326(200, 0)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
}
