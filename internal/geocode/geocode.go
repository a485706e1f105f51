// Package geocode turns clicked coordinates into street addresses.
package geocode

import (
	"context"
	"errors"

	"github.com/homepin/mapsession/pkg/core"
)

// Status is the geocoder's outcome code.
type Status string

const (
	StatusOK             Status = "OK"
	StatusZeroResults    Status = "ZERO_RESULTS"
	StatusOverQueryLimit Status = "OVER_QUERY_LIMIT"
	StatusRequestDenied  Status = "REQUEST_DENIED"
	StatusInvalidRequest Status = "INVALID_REQUEST"
	StatusUnknownError   Status = "UNKNOWN_ERROR"
	StatusError          Status = "ERROR"
)

// ErrNoAPIKey is returned when the Google geocoder is configured without a key.
var ErrNoAPIKey = errors.New("geocode: no API key configured")

// Result is one candidate address for a coordinate.
type Result struct {
	FormattedAddress string   `json:"formatted_address"`
	PlaceID          string   `json:"place_id,omitempty"`
	Types            []string `json:"types,omitempty"`
}

// Response is the full reverse-geocode answer.
type Response struct {
	Status  Status   `json:"status"`
	Results []Result `json:"results"`
}

// OK reports whether the response carries a usable first result.
func (r Response) OK() bool {
	return r.Status == StatusOK && len(r.Results) > 0
}

// Address returns the first formatted address, or "" if there is none.
func (r Response) Address() string {
	if len(r.Results) == 0 {
		return ""
	}
	return r.Results[0].FormattedAddress
}

// Resolver reverse-geocodes a coordinate. A transport failure is returned as an error;
// a geocoder that answered with a non-OK status returns that status with a nil error.
type Resolver interface {
	ReverseGeocode(ctx context.Context, at core.Coordinate) (Response, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, at core.Coordinate) (Response, error)

func (f ResolverFunc) ReverseGeocode(ctx context.Context, at core.Coordinate) (Response, error) {
	return f(ctx, at)
}
