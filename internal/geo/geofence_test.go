package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDistanceIdenticalPoints(t *testing.T) {
	for _, p := range []Point{{0, 0}, {12.9716, 77.5946}, {-33.8688, 151.2093}} {
		require.Zero(t, Distance(p.Latitude, p.Longitude, p.Latitude, p.Longitude))
	}
}

func TestDistanceSymmetric(t *testing.T) {
	d1 := Distance(12.9716, 77.5946, 13.0827, 80.2707)
	d2 := Distance(13.0827, 80.2707, 12.9716, 77.5946)
	require.InDelta(t, d1, d2, 1e-6)
}

func TestDistanceOneDegreeLongitudeAtEquator(t *testing.T) {
	// One degree of longitude at the equator is ~111.32 km.
	d := Distance(0, 0, 0, 1)
	require.InEpsilon(t, 111320.0, d, 0.01)
}

func TestValidCoordinates(t *testing.T) {
	require.True(t, ValidCoordinates(0, 0))
	require.True(t, ValidCoordinates(-90, 180))
	require.True(t, ValidCoordinates(90, -180))
	require.False(t, ValidCoordinates(90.01, 0))
	require.False(t, ValidCoordinates(-91, 0))
	require.False(t, ValidCoordinates(0, 180.5))
	require.False(t, ValidCoordinates(0, -181))
}

func TestVerifyNotConfigured(t *testing.T) {
	v := Verify(nil, &Point{12.97, 77.59})
	require.True(t, v.Verified)
	require.Nil(t, v.DistanceMeters)

	v = Verify(&SessionLocation{Latitude: 12.97, Longitude: 77.59, GeofencingEnabled: false}, nil)
	require.True(t, v.Verified)
}

func TestVerifyLocationMissing(t *testing.T) {
	session := &SessionLocation{Latitude: 12.97, Longitude: 77.59, RadiusMeters: 100, GeofencingEnabled: true}
	v := Verify(session, nil)
	require.False(t, v.Verified)
	require.Nil(t, v.DistanceMeters)
	require.Equal(t, "student location not provided", v.Reason)
}

func TestVerifyInsideAndOutside(t *testing.T) {
	session := &SessionLocation{Latitude: 12.9716, Longitude: 77.5946, RadiusMeters: 100, GeofencingEnabled: true}

	inside := Verify(session, &Point{12.9716, 77.5946})
	require.True(t, inside.Verified)
	require.Equal(t, float64(0), *inside.DistanceMeters)

	// ~150m north: one degree of latitude is ~111.32 km.
	outside := Verify(session, &Point{12.9716 + 150.0/111320.0, 77.5946})
	require.False(t, outside.Verified)
	require.InDelta(t, 150, *outside.DistanceMeters, 2)
	require.Equal(t, float64(100), *outside.RadiusMeters)
	require.Contains(t, outside.Reason, "outside geofence boundary")
}

func TestVerifyDefaultRadius(t *testing.T) {
	session := &SessionLocation{Latitude: 0, Longitude: 0, GeofencingEnabled: true}
	v := Verify(session, &Point{0, 0})
	require.True(t, v.Verified)
	require.Equal(t, float64(DefaultRadiusMeters), *v.RadiusMeters)
}

func TestAccuracyLabel(t *testing.T) {
	require.Equal(t, "UNKNOWN", AccuracyLabel(0))
	require.Equal(t, "HIGH", AccuracyLabel(5))
	require.Equal(t, "MEDIUM", AccuracyLabel(35))
	require.Equal(t, "LOW", AccuracyLabel(80))
}

func TestDistanceRoundedInVerdict(t *testing.T) {
	session := &SessionLocation{Latitude: 0, Longitude: 0, RadiusMeters: 100, GeofencingEnabled: true}
	v := Verify(session, &Point{0.0005, 0})
	require.NotNil(t, v.DistanceMeters)
	require.Equal(t, math.Trunc(*v.DistanceMeters), *v.DistanceMeters)
}
