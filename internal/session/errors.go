package session

import (
	"errors"
	"fmt"

	"github.com/homepin/mapsession/internal/geocode"
	"github.com/homepin/mapsession/pkg/core"
)

var (
	// ErrProviderUnavailable means initialization was attempted before the provider
	// signalled ready or before the host container was mounted. It is retried later.
	ErrProviderUnavailable = errors.New("map provider unavailable")

	// ErrGeocodeFailure is wrapped by every GeocodeFailure.
	ErrGeocodeFailure = errors.New("geocode failed")

	// ErrMissingCoordinate means the home or target marker had no position when a
	// distance was requested.
	ErrMissingCoordinate = errors.New("marker position unavailable")

	// ErrUnmounted is returned by operations on a controller whose widget was unmounted.
	ErrUnmounted = errors.New("session unmounted")
)

// GeocodeFailure describes a click that did not become a marker. It is reported to
// the diagnostics hook and never surfaced to the user.
type GeocodeFailure struct {
	Token  uint64
	At     core.Coordinate
	Status geocode.Status // empty when Err is set
	Err    error
}

func (f GeocodeFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("geocode %s: %v", f.At, f.Err)
	}
	return fmt.Sprintf("geocode %s: status %s", f.At, f.Status)
}

func (f GeocodeFailure) Unwrap() []error {
	if f.Err != nil {
		return []error{ErrGeocodeFailure, f.Err}
	}
	return []error{ErrGeocodeFailure}
}
