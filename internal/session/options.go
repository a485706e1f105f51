package session

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/homepin/mapsession/internal/geo"
	"github.com/homepin/mapsession/internal/geocode"
	"github.com/homepin/mapsession/internal/provider"
	"github.com/homepin/mapsession/pkg/core"
)

// RebindStrategy selects what happens to marker listeners when the connector line changes.
type RebindStrategy string

const (
	// RebindAll detaches every marker listener and registers a fresh one each time the
	// active line changes.
	RebindAll RebindStrategy = "all"

	// RebindReference keeps listeners as they are. Listeners look the session up through
	// the controller on every click, so they never hold stale state.
	RebindReference RebindStrategy = "reference"
)

// ParseRebindStrategy parses a config value. Empty means RebindAll.
func ParseRebindStrategy(s string) (RebindStrategy, error) {
	switch RebindStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RebindAll:
		return RebindAll, nil
	case RebindReference:
		return RebindReference, nil
	default:
		return "", fmt.Errorf("unknown rebind strategy %q", s)
	}
}

// Scheduler runs fn on the event loop that owns the controller.
type Scheduler interface {
	Schedule(fn func()) error
}

// Telemetry receives session events. All methods are called on the event loop.
type Telemetry interface {
	MarkerPlaced(sessionID string, at core.Coordinate, address string)
	DistanceComputed(sessionID string, target core.Coordinate, meters float64, km int)
	GeocodeFailed(sessionID string, failure GeocodeFailure)
}

// Options configure the map a controller creates.
type Options struct {
	Home           core.Coordinate
	Zoom           int
	MapType        core.MapTypeID
	Controls       core.ControlsConfig
	AssetBase      string
	PinColor       string
	Rebind         RebindStrategy
	GeocodeTimeout time.Duration
}

// DefaultOptions returns the stock widget configuration.
func DefaultOptions() Options {
	return Options{
		Home:           core.DefaultHome,
		Zoom:           core.DefaultZoom,
		MapType:        core.MapTypeRoadmap,
		Controls:       core.DefaultControls(),
		Rebind:         RebindAll,
		GeocodeTimeout: 5 * time.Second,
	}
}

// Dependencies are the collaborators injected into a controller.
type Dependencies struct {
	Provider  provider.Provider
	Geocoder  geocode.Resolver
	Distance  geo.DistanceEngine // nil means geo.Haversine
	Scheduler Scheduler
	Logger    *slog.Logger

	// OnDistance is the host callback invoked every time a distance is (re)computed.
	OnDistance func(km int)

	// OnGeocodeFailure is the diagnostics hook for clicks that did not become markers.
	OnGeocodeFailure func(GeocodeFailure)

	Telemetry Telemetry
}
