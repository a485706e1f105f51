package session

import (
	"github.com/homepin/mapsession/pkg/core"
)

// Phase is the controller's lifecycle state.
type Phase int32

const (
	PhaseUninitialized Phase = iota
	PhaseReady
	PhaseUnmounted
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseReady:
		return "ready"
	case PhaseUnmounted:
		return "unmounted"
	default:
		return "unknown"
	}
}

// DistanceUnset is the distanceKm value before any marker has been measured.
const DistanceUnset = -1

// PlacedMarker is a marker drawn on the map by the controller.
type PlacedMarker struct {
	Handle   core.Handle     `json:"handle"`
	Position core.Coordinate `json:"position"`
	Address  string          `json:"address,omitempty"`
}

// ConnectorLine is the single line between home and the last clicked marker.
type ConnectorLine struct {
	Handle core.Handle     `json:"handle"`
	Target core.Handle     `json:"target"`
	From   core.Coordinate `json:"from"`
	To     core.Coordinate `json:"to"`
}

// State is a point-in-time copy of the session.
type State struct {
	SessionID  string         `json:"sessionId"`
	Phase      string         `json:"phase"`
	Map        core.Handle    `json:"map,omitempty"`
	Home       *PlacedMarker  `json:"home,omitempty"`
	Markers    []PlacedMarker `json:"markers"`
	ActiveLine *ConnectorLine `json:"activeLine,omitempty"`
	DistanceKm int            `json:"distanceKm"`
	Pending    int            `json:"pendingGeocodes"`
	Listeners  RegistryStats  `json:"listeners"`
}
