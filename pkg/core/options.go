// pkg/core/options.go
package core

// MapTypeID selects the base map style
type MapTypeID string

const (
	MapTypeRoadmap   MapTypeID = "roadmap"
	MapTypeSatellite MapTypeID = "satellite"
	MapTypeHybrid    MapTypeID = "hybrid"
	MapTypeTerrain   MapTypeID = "terrain"
)

// ControlsConfig toggles the built-in map controls
type ControlsConfig struct {
	MapTypeControl    bool `json:"mapTypeControl"`
	StreetViewControl bool `json:"streetViewControl"`
	ZoomControl       bool `json:"zoomControl"`
}

// MapOptions are passed to Provider.CreateMap
type MapOptions struct {
	Zoom      int            `json:"zoom"`
	Center    Coordinate     `json:"center"`
	MapTypeID MapTypeID      `json:"mapTypeId"`
	Controls  ControlsConfig `json:"controls"`
}

// Point is a pixel offset used for icon anchors
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Icon describes how a marker is drawn. Either URL (image asset) or Path (vector glyph) is set.
type Icon struct {
	URL          string  `json:"url,omitempty"`
	Path         string  `json:"path,omitempty"`
	FillColor    string  `json:"fillColor,omitempty"`
	FillOpacity  float64 `json:"fillOpacity,omitempty"`
	StrokeColor  string  `json:"strokeColor,omitempty"`
	StrokeWeight float64 `json:"strokeWeight,omitempty"`
	Anchor       Point   `json:"anchor"`
}

// SymbolPath names a built-in line symbol
type SymbolPath string

const (
	SymbolForwardOpenArrow   SymbolPath = "FORWARD_OPEN_ARROW"
	SymbolForwardClosedArrow SymbolPath = "FORWARD_CLOSED_ARROW"
)

// MarkerOptions are passed to Provider.CreateMarker
type MarkerOptions struct {
	Position Coordinate `json:"position"`
	Map      Handle     `json:"map"`
	Icon     Icon       `json:"icon"`
}

// LineOptions are passed to Provider.CreateLine
type LineOptions struct {
	Path      [2]Coordinate `json:"path"`
	ArrowIcon SymbolPath    `json:"arrowIcon"`
	Map       Handle        `json:"map"`
}
