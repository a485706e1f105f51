package geo

import (
	"math"

	"github.com/homepin/mapsession/pkg/core"
	"github.com/umahmood/haversine"
)

// DistanceEngine computes the great-circle distance between two coordinates.
// Implementations must be pure and safe to call from any goroutine.
type DistanceEngine interface {
	SphericalDistanceMeters(a, b core.Coordinate) float64
}

// Haversine is the default DistanceEngine.
type Haversine struct{}

// SphericalDistanceMeters returns the haversine distance between a and b in metres.
func (Haversine) SphericalDistanceMeters(a, b core.Coordinate) float64 {
	_, km := haversine.Distance(
		haversine.Coord{Lat: a.Lat, Lon: a.Lng},
		haversine.Coord{Lat: b.Lat, Lon: b.Lng},
	)
	return km * 1000
}

// DistanceFunc adapts a plain function to DistanceEngine.
type DistanceFunc func(a, b core.Coordinate) float64

// SphericalDistanceMeters calls f.
func (f DistanceFunc) SphericalDistanceMeters(a, b core.Coordinate) float64 {
	return f(a, b)
}

// CeilKilometers converts metres to whole kilometres, rounding up.
// Negative and NaN inputs report 0.
func CeilKilometers(meters float64) int {
	if math.IsNaN(meters) || meters <= 0 {
		return 0
	}
	return int(math.Ceil(meters / 1000))
}
