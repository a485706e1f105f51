// pkg/core/coordinate.go
package core

import "fmt"

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String formats the coordinate as "lat,lng".
func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// AddressMarker is a geocoded map click waiting to be placed on the map
type AddressMarker struct {
	Address    string     `json:"address"`
	Coordinate Coordinate `json:"coordinate"`
}
