// Package geo provides great-circle distance computation and human-readable
// distance formatting for the flock presence and discovery components.
//
// All distances are in meters. The package is pure: no I/O, no state.
package geo

import (
	"fmt"
	"math"
)

// earthRadiusM is the mean Earth radius in meters, used by the haversine formula.
const earthRadiusM = 6371000.0

// MaxDistance is the sentinel distance used when no viewer location is known.
// Consumers sort and format against this value instead of handling a null case.
const MaxDistance = math.MaxFloat64

// Coordinates is a WGS84 latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Valid reports whether the coordinates are within the WGS84 range.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Distance returns the great-circle distance between a and b in meters,
// computed with the haversine formula. The result is symmetric and returns
// 0 for identical coordinates.
func Distance(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// FormatDistance renders a distance in meters as a short human-readable string.
//
// Values under 1000m render as whole meters with round-half-up (999.9 renders
// as "1000 m"). Values at or above 1000m render as kilometers with one decimal
// place ("1.0 km", "15.8 km").
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", int64(math.Round(meters)))
	}
	// Round to one decimal before formatting so 15750 renders as "15.8 km"
	// regardless of binary float representation.
	km := math.Round(meters/100) / 10
	return fmt.Sprintf("%.1f km", km)
}
