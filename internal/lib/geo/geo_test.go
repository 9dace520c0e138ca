package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance_KnownRoute(t *testing.T) {
	// Kyoto station to Osaka station, roughly 43km apart
	kyoto := Point{Latitude: 35.0116, Longitude: 135.7681}
	osaka := Point{Latitude: 34.6937, Longitude: 135.5023}

	distance := Distance(kyoto, osaka)
	assert.InDelta(t, 42870, distance, 700, "Kyoto-Osaka should be approximately 43km")
}

func TestDistance_Symmetry(t *testing.T) {
	a := Point{Latitude: 35.0116, Longitude: 135.7681}
	b := Point{Latitude: 34.6937, Longitude: 135.5023}

	dab := Distance(a, b)
	dba := Distance(b, a)
	assert.InEpsilon(t, dab, dba, 1e-6, "Distance must be symmetric")
}

func TestDistance_SamePoint(t *testing.T) {
	p := Point{Latitude: 35.0, Longitude: 135.0}
	assert.Equal(t, 0.0, Distance(p, p), "Distance from point to itself should be 0")
}

func TestDistance_ShortDisplacement(t *testing.T) {
	// One ten-thousandth of a degree of latitude is about 11.1m, the
	// same scale as the visited-location grid cell.
	a := Point{Latitude: 35.0000, Longitude: 135.0000}
	b := Point{Latitude: 35.0001, Longitude: 135.0000}

	assert.InDelta(t, 11.1, Distance(a, b), 0.2)
}

func TestBearing_CardinalDirections(t *testing.T) {
	origin := Point{Latitude: 0, Longitude: 0}

	assert.InDelta(t, 0.0, Bearing(origin, Point{Latitude: 1, Longitude: 0}), 0.01, "due north")
	assert.InDelta(t, 90.0, Bearing(origin, Point{Latitude: 0, Longitude: 1}), 0.01, "due east")
	assert.InDelta(t, 180.0, Bearing(origin, Point{Latitude: -1, Longitude: 0}), 0.01, "due south")
	assert.InDelta(t, 270.0, Bearing(origin, Point{Latitude: 0, Longitude: -1}), 0.01, "due west")
}

func TestBearing_Range(t *testing.T) {
	points := []Point{
		{Latitude: 35.0116, Longitude: 135.7681},
		{Latitude: 34.6937, Longitude: 135.5023},
		{Latitude: -33.8688, Longitude: 151.2093},
		{Latitude: 51.5074, Longitude: -0.1278},
		{Latitude: 35.0117, Longitude: 135.7681},
	}

	for _, from := range points {
		for _, to := range points {
			if from == to {
				continue
			}
			b := Bearing(from, to)
			assert.GreaterOrEqual(t, b, 0.0)
			assert.Less(t, b, 360.0)
		}
	}
}

func TestDecodePolyline(t *testing.T) {
	points, err := DecodePolyline("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.InDelta(t, 38.5, points[0].Latitude, 0.001)
	assert.InDelta(t, -120.2, points[0].Longitude, 0.001)

	for _, point := range points {
		assert.GreaterOrEqual(t, point.Latitude, -90.0)
		assert.LessOrEqual(t, point.Latitude, 90.0)
		assert.GreaterOrEqual(t, point.Longitude, -180.0)
		assert.LessOrEqual(t, point.Longitude, 180.0)
	}
}

func TestDecodePolyline_Empty(t *testing.T) {
	_, err := DecodePolyline("")
	assert.Error(t, err, "Should return error for empty polyline")
}
