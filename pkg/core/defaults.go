// pkg/core/defaults.go
package core

import "strings"

// DefaultHome is the fixed reference point distances are measured from.
var DefaultHome = Coordinate{Lat: 35.22, Lng: -80.843}

// DefaultZoom is the initial zoom level and the level restored by clicking home.
const DefaultZoom = 10

// HomeIconAsset is the image drawn for the home marker, relative to the asset base URL.
const HomeIconAsset = "/assets/images/homeAddressMarker.png"

const pinPath = "M11.0639 15.3003L26.3642 2.47559e-05L41.6646 15.3003L26.3638 51.3639L11.0639 15.3003 M22,17.5a4.5,4.5 0 1,0 9,0a4.5,4.5 0 1,0 -9,0Z"

// DefaultControls matches the stock widget: map type switcher and zoom, no street view.
func DefaultControls() ControlsConfig {
	return ControlsConfig{
		MapTypeControl:    true,
		StreetViewControl: false,
		ZoomControl:       true,
	}
}

// PinIcon returns the glyph used for dropped (non-home) markers.
func PinIcon(color string) Icon {
	if color == "" {
		color = "#000000"
	}
	return Icon{
		Path:         pinPath,
		FillColor:    color,
		FillOpacity:  0.8,
		StrokeColor:  "pink",
		StrokeWeight: 2,
		Anchor:       Point{X: 27, Y: 52},
	}
}

// HomeIcon returns the image icon for the home marker served from assetBase.
func HomeIcon(assetBase string) Icon {
	return Icon{
		URL:    strings.TrimRight(assetBase, "/") + HomeIconAsset,
		Anchor: Point{X: 25, Y: 25},
	}
}
