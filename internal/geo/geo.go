package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/homepin/mapsession/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Coordinates arrive from the host as "lat,lng" strings and from the provider as core.Coordinate.
// Renderers that draw on a flat tile grid want EPSG:3857, so projection lives here too.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Validate checks that c is a finite WGS84 coordinate.
func Validate(c core.Coordinate) error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return ErrInvalidCoordinates
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// ParseCoordinate parses "lat,lng" or separate lat and lng arguments.
func ParseCoordinate(parts ...string) (core.Coordinate, error) {
	if len(parts) == 1 {
		parts = strings.Split(parts[0], ",")
	}
	if len(parts) != 2 {
		return core.Coordinate{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.Coordinate{}, ErrInvalidCoordinates
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.Coordinate{}, ErrInvalidCoordinates
	}
	c := core.Coordinate{Lat: lat, Lng: lng}
	if err := Validate(c); err != nil {
		return core.Coordinate{}, err
	}
	return c, nil
}

// CellKey rounds c to precision decimals and returns a stable cache key.
// Precision 5 is roughly one metre at the equator.
func CellKey(c core.Coordinate, precision int) string {
	if precision < 0 {
		precision = 0
	}
	return fmt.Sprintf("%.*f,%.*f", precision, c.Lat, precision, c.Lng)
}

// Point converts c into a simplefeatures point with X=lng, Y=lat.
func Point(c core.Coordinate) (geom.Point, error) {
	if err := Validate(c); err != nil {
		return geom.Point{}, err
	}
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: c.Lng, Y: c.Lat},
			Type: geom.DimXY,
		},
	)
}

// ToWebMercator projects c from EPSG:4326 to EPSG:3857 metres.
func ToWebMercator(c core.Coordinate) (x, y float64) {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ = f(c.Lng, c.Lat, 0)
	return x, y
}
