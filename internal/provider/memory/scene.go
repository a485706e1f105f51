package memory

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/homepin/mapsession/pkg/core"
)

// Scene exports the overlays of map m as a GeoJSON feature collection.
// Markers drawn with homeIconURL are tagged kind=home, all others kind=pin.
func (p *Provider) Scene(m core.Handle, homeIconURL string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, mk := range p.Markers(m) {
		f := geojson.NewFeature(orb.Point{mk.Position.Lng, mk.Position.Lat})
		f.ID = uint64(mk.Handle)
		f.Properties["handle"] = uint64(mk.Handle)
		if homeIconURL != "" && mk.Icon.URL == homeIconURL {
			f.Properties["kind"] = "home"
		} else {
			f.Properties["kind"] = "pin"
			f.Properties["fill"] = mk.Icon.FillColor
		}
		fc.Append(f)
	}

	for _, ln := range p.Lines(m) {
		f := geojson.NewFeature(orb.LineString{
			{ln.Path[0].Lng, ln.Path[0].Lat},
			{ln.Path[1].Lng, ln.Path[1].Lat},
		})
		f.ID = uint64(ln.Handle)
		f.Properties["handle"] = uint64(ln.Handle)
		f.Properties["kind"] = "connector"
		f.Properties["arrow"] = string(ln.Arrow)
		fc.Append(f)
	}

	return fc
}
