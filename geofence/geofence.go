// Package geofence decides whether a reported device position counts as
// arrival at a waypoint.
package geofence

import (
	"fmt"
	"math"
	"time"
)

const (
	// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
	EarthRadiusMeters = 6371000.0
	// MaxAccuracyMeters is the worst fix accuracy that is still evaluated.
	MaxAccuracyMeters = 50.0
)

type Outcome string

const (
	OutcomeVerified    Outcome = "verified"
	OutcomeTooFar      Outcome = "too_far"
	OutcomeLowAccuracy Outcome = "low_accuracy"
)

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Fix is a position reported by the device sensor. Accuracy is the 1σ radius
// in meters. At is when the sensor took the reading, zero if unknown.
type Fix struct {
	Point
	Accuracy float64   `json:"accuracy"`
	At       time.Time `json:"at,omitzero"`
}

// Target is the circular acceptance region of a waypoint.
type Target struct {
	Point
	RadiusMeters float64 `json:"radius_meters"`
}

type Result struct {
	Outcome        Outcome `json:"outcome"`
	DistanceMeters float64 `json:"distance_m,omitempty"`
	AccuracyMeters float64 `json:"accuracy_m,omitempty"`
}

func (r Result) Verified() bool {
	return r.Outcome == OutcomeVerified
}

// Message is the player-facing text for the outcome.
func (r Result) Message() string {
	switch r.Outcome {
	case OutcomeVerified:
		return "Location verified"
	case OutcomeTooFar:
		return fmt.Sprintf("Too far! Move closer to the target (dist: %.0fm)", r.DistanceMeters)
	case OutcomeLowAccuracy:
		return fmt.Sprintf("Location accuracy too low (%.0fm). Try moving to a clearer area.", r.AccuracyMeters)
	default:
		return ""
	}
}

// Distance returns the great-circle distance between a and b in meters on a
// spherical Earth.
func Distance(a, b Point) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Check evaluates an observed fix against a target. A fix worse than
// MaxAccuracyMeters is never evaluated, whatever its distance.
func Check(observed Fix, target Target) Result {
	if observed.Accuracy > MaxAccuracyMeters || math.IsNaN(observed.Accuracy) {
		return Result{Outcome: OutcomeLowAccuracy, AccuracyMeters: math.Round(observed.Accuracy)}
	}

	dist := Distance(observed.Point, target.Point)
	if dist <= target.RadiusMeters {
		return Result{Outcome: OutcomeVerified}
	}
	return Result{Outcome: OutcomeTooFar, DistanceMeters: math.Round(dist)}
}

// ValidPoint reports whether p is inside the WGS84 coordinate ranges.
func ValidPoint(p Point) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180 &&
		!math.IsNaN(p.Lat) && !math.IsNaN(p.Lng)
}
