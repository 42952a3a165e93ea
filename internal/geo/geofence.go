package geo

import (
	"fmt"
	"math"
)

// earthRadiusMeters is the spherical Earth model radius.
const earthRadiusMeters = 6371000

// DefaultRadiusMeters applies when a session enables geofencing without
// specifying a radius.
const DefaultRadiusMeters = 100

// SessionLocation is the geofence configured on a session at creation time.
type SessionLocation struct {
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	RadiusMeters      float64 `json:"radius_meters"`
	GeofencingEnabled bool    `json:"geofencing_enabled"`
	Room              string  `json:"room,omitempty"`
	Building          string  `json:"building,omitempty"`
}

// Point is a client-reported coordinate pair.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Verification is the geofence verdict attached to attendance records.
type Verification struct {
	Verified       bool     `json:"verified"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
	RadiusMeters   *float64 `json:"radius_meters,omitempty"`
	Reason         string   `json:"reason"`
}

// Distance returns the great-circle distance in meters between two
// coordinates, using the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// ValidCoordinates reports whether a latitude/longitude pair is in range.
func ValidCoordinates(latitude, longitude float64) bool {
	return latitude >= -90 && latitude <= 90 && longitude >= -180 && longitude <= 180
}

// Verify decides whether a reported location falls inside a session's
// geofence. A session without geofencing always verifies; a geofenced session
// with no reported location never does.
func Verify(session *SessionLocation, reported *Point) Verification {
	if session == nil || !session.GeofencingEnabled {
		return Verification{Verified: true, Reason: "geofencing not configured for this session"}
	}
	if reported == nil {
		return Verification{Verified: false, Reason: "student location not provided"}
	}

	distance := Distance(session.Latitude, session.Longitude, reported.Latitude, reported.Longitude)
	radius := session.RadiusMeters
	if radius <= 0 {
		radius = DefaultRadiusMeters
	}

	rounded := math.Round(distance)
	v := Verification{
		Verified:       distance <= radius,
		DistanceMeters: &rounded,
		RadiusMeters:   &radius,
	}
	if v.Verified {
		v.Reason = "location verified successfully"
	} else {
		v.Reason = fmt.Sprintf("outside geofence boundary (%.0fm away, allowed: %.0fm)", rounded, radius)
	}
	return v
}

// AccuracyLabel buckets a GPS accuracy reading for audit display.
func AccuracyLabel(accuracyMeters float64) string {
	switch {
	case accuracyMeters <= 0:
		return "UNKNOWN"
	case accuracyMeters <= 10:
		return "HIGH"
	case accuracyMeters <= 50:
		return "MEDIUM"
	default:
		return "LOW"
	}
}
