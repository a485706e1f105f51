package geo

import (
	"math"
	"testing"

	"github.com/homepin/mapsession/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestCeilKilometers(t *testing.T) {
	tests := []struct {
		meters float64
		want   int
	}{
		{0, 0},
		{999, 1},
		{1000, 1},
		{1000.0001, 2},
		{1500, 2},
		{1500.1, 2},
		{10292, 11},
		{-5, 0},
		{math.NaN(), 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CeilKilometers(tt.meters), "meters=%v", tt.meters)
	}
}

func TestHaversine_SamePoint(t *testing.T) {
	d := Haversine{}.SphericalDistanceMeters(core.DefaultHome, core.DefaultHome)

	assert.InDelta(t, 0, d, 1e-9)
}

func TestHaversine_HomeToScenarioTarget(t *testing.T) {
	target := core.Coordinate{Lat: 35.30, Lng: -80.90}

	d := Haversine{}.SphericalDistanceMeters(core.DefaultHome, target)

	assert.InDelta(t, 10292, d, 50)
	assert.Equal(t, 11, CeilKilometers(d))
}

func TestHaversine_Symmetric(t *testing.T) {
	a := core.Coordinate{Lat: 51.5, Lng: -0.12}
	b := core.Coordinate{Lat: 48.85, Lng: 2.35}

	assert.InDelta(t, Haversine{}.SphericalDistanceMeters(a, b), Haversine{}.SphericalDistanceMeters(b, a), 1e-6)
}

func TestDistanceFunc(t *testing.T) {
	var engine DistanceEngine = DistanceFunc(func(a, b core.Coordinate) float64 { return 1500 })

	assert.Equal(t, 1500.0, engine.SphericalDistanceMeters(core.Coordinate{}, core.Coordinate{}))
}
