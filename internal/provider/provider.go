// Package provider defines the map rendering capability the session controller drives.
// The controller never touches a rendering SDK directly; it is handed a Provider at construction.
package provider

import (
	"errors"

	"github.com/homepin/mapsession/pkg/core"
)

var (
	// ErrUnknownHandle is returned when a call references a handle the provider never issued.
	ErrUnknownHandle = errors.New("unknown provider handle")

	// ErrNoContainer is returned by CreateMap when the host container is not mounted yet.
	ErrNoContainer = errors.New("map container not mounted")
)

// ClickFunc is invoked with the clicked coordinate.
type ClickFunc func(at core.Coordinate)

// Provider is the map rendering widget as seen by the session controller.
type Provider interface {
	CreateMap(container core.Container, opts core.MapOptions) (core.Handle, error)
	CreateMarker(opts core.MarkerOptions) (core.Handle, error)
	CreateLine(opts core.LineOptions) (core.Handle, error)

	// RemoveFromMap detaches a marker or line. Unknown or already removed handles are ignored.
	RemoveFromMap(h core.Handle)

	AddClickListener(target core.Handle, fn ClickFunc) (core.ListenerHandle, error)

	// RemoveListener detaches a listener. Unknown handles are ignored.
	RemoveListener(l core.ListenerHandle)

	PanTo(m core.Handle, c core.Coordinate)
	SetZoom(m core.Handle, level int)

	// MarkerPosition reports where a marker currently sits. ok is false once it is off the map.
	MarkerPosition(h core.Handle) (c core.Coordinate, ok bool)
}
