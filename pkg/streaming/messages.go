package streaming

import (
	"encoding/json"

	"github.com/homepin/mapsession/pkg/core"
)

// Message type constants matching the renderer protocol.
const (
	// controller -> renderer
	TypeSessionStart = "session_start"
	TypeSessionEnd   = "session_end"
	TypeCreateMap    = "create_map"
	TypeCreateMarker = "create_marker"
	TypeCreateLine   = "create_line"
	TypeRemove       = "remove"
	TypePanTo        = "pan_to"
	TypeSetZoom      = "set_zoom"

	// renderer -> controller
	TypeAck   = "ack"
	TypeClick = "click"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the renderer's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// SessionStartPayload announces a new controller session.
type SessionStartPayload struct {
	SessionID string          `json:"sessionId"`
	Home      core.Coordinate `json:"home"`
	Zoom      int             `json:"zoom"`
}

// Mercator is a projected EPSG:3857 position in metres.
type Mercator struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CreateMapPayload asks the renderer to mount a map.
type CreateMapPayload struct {
	Handle    core.Handle     `json:"handle"`
	Container core.Container  `json:"container"`
	Options   core.MapOptions `json:"options"`
	Center    Mercator        `json:"centerMercator"`
}

// CreateMarkerPayload asks the renderer to draw a marker.
type CreateMarkerPayload struct {
	Handle   core.Handle        `json:"handle"`
	Options  core.MarkerOptions `json:"options"`
	Position Mercator           `json:"positionMercator"`
}

// CreateLinePayload asks the renderer to draw a connector line.
type CreateLinePayload struct {
	Handle  core.Handle      `json:"handle"`
	Options core.LineOptions `json:"options"`
}

// RemovePayload removes a marker or line.
type RemovePayload struct {
	Handle core.Handle `json:"handle"`
}

// PanToPayload recentres a map.
type PanToPayload struct {
	Map    core.Handle     `json:"map"`
	Center core.Coordinate `json:"center"`
}

// SetZoomPayload changes a map's zoom level.
type SetZoomPayload struct {
	Map  core.Handle `json:"map"`
	Zoom int         `json:"zoom"`
}

// ClickPayload reports a user click on a map or marker.
type ClickPayload struct {
	Target core.Handle `json:"target"`
	Lat    float64     `json:"lat"`
	Lng    float64     `json:"lng"`
}
