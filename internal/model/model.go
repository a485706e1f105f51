package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&GeocodeEntry{},
}

////////////////////////
// GEOCODE CACHE
////////////////////////

// GeocodeEntry is a cached reverse-geocode answer for one rounded coordinate
type GeocodeEntry struct {
	ID               uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	CellKey          string         `json:"cellKey" gorm:"size:64;uniqueIndex:idx_geocode_cell_key"` // "lat,lng" rounded to the cache precision
	Lat              float64        `json:"lat"`
	Lng              float64        `json:"lng"`
	Position         geom.Point     `json:"position"` // WKB, X=lng Y=lat
	Status           string         `json:"status" gorm:"size:32"`
	FormattedAddress string         `json:"formattedAddress" gorm:"size:512"` // first result, denormalised for lookups
	Results          datatypes.JSON `json:"results"`                          // full ordered result list
	Hits             uint           `json:"hits" gorm:"default:0"`
}

func (*GeocodeEntry) TableName() string {
	return "geocode_entries"
}
