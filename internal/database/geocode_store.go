package database

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/homepin/mapsession/internal/geo"
	"github.com/homepin/mapsession/internal/geocode"
	"github.com/homepin/mapsession/internal/model"
)

// GeocodeStore persists reverse-geocode answers. It implements geocode.Cache.
type GeocodeStore struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewGeocodeStore returns a store on a migrated database.
func NewGeocodeStore(db *gorm.DB, log zerolog.Logger) *GeocodeStore {
	return &GeocodeStore{db: db, logger: log}
}

var _ geocode.Cache = (*GeocodeStore)(nil)

// Get returns the cached response for key and bumps its hit counter.
func (s *GeocodeStore) Get(key string) (geocode.Response, bool) {
	var entry model.GeocodeEntry
	err := s.db.Where("cell_key = ?", key).First(&entry).Error
	if err != nil {
		return geocode.Response{}, false
	}

	var results []geocode.Result
	if err := json.Unmarshal(entry.Results, &results); err != nil || len(results) == 0 {
		return geocode.Response{}, false
	}

	if err := s.db.Model(&entry).UpdateColumn("hits", gorm.Expr("hits + ?", 1)).Error; err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to count geocode cache hit")
	}

	return geocode.Response{
		Status:  geocode.Status(entry.Status),
		Results: results,
	}, true
}

// Put inserts or replaces the entry for key.
func (s *GeocodeStore) Put(key string, resp geocode.Response) error {
	raw, err := json.Marshal(resp.Results)
	if err != nil {
		return fmt.Errorf("marshal geocode results: %w", err)
	}

	entry := model.GeocodeEntry{
		CellKey:          key,
		Status:           string(resp.Status),
		FormattedAddress: resp.Address(),
		Results:          raw,
	}
	c, err := geo.ParseCoordinate(key)
	if err != nil {
		return fmt.Errorf("geocode entry %q: %w", key, err)
	}
	pt, err := geo.Point(c)
	if err != nil {
		return fmt.Errorf("geocode entry %q position: %w", key, err)
	}
	entry.Lat, entry.Lng, entry.Position = c.Lat, c.Lng, pt

	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cell_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "formatted_address", "results", "position", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("store geocode entry %q: %w", key, err)
	}
	return nil
}

// Count returns the number of cached entries.
func (s *GeocodeStore) Count() (int64, error) {
	var n int64
	err := s.db.Model(&model.GeocodeEntry{}).Count(&n).Error
	return n, err
}

// Purge removes every cached entry.
func (s *GeocodeStore) Purge() error {
	err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.GeocodeEntry{}).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("purge geocode cache: %w", err)
	}
	return nil
}
