package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/homepin/mapsession/internal/database"
	"github.com/homepin/mapsession/internal/geocode"
	"github.com/homepin/mapsession/internal/influx"
	"github.com/homepin/mapsession/internal/provider/websocket"
	"github.com/homepin/mapsession/pkg/core"
)

// FileName is the config file looked up in the config directory.
const FileName = "mapsession.cfg.json"

// ErrNotFound is returned by Load when the config file does not exist.
// Defaults remain in effect.
var ErrNotFound = errors.New("config file not found")

// MapConfig holds the initial view and marker styling.
type MapConfig struct {
	Home         core.Coordinate
	Zoom         int
	MapTypeID    core.MapTypeID
	Controls     core.ControlsConfig
	AssetBaseURL string
	PinColor     string
}

// SessionConfig holds controller and event loop settings.
type SessionConfig struct {
	Rebind         string
	GeocodeTimeout time.Duration
	QueueSize      int
}

// GeocodeConfig selects and configures the reverse geocoder.
type GeocodeConfig struct {
	Provider     string // "google" or "static"
	Google       geocode.GoogleConfig
	StaticStatus geocode.Status
}

// CacheConfig selects the geocode cache backend.
type CacheConfig struct {
	Type       string // "memory", "sqlite", "postgres" or "none"
	Precision  int
	Limit      int
	SQLitePath string
}

// RendererConfig selects the map provider.
type RendererConfig struct {
	Type      string // "memory" or "websocket"
	Websocket websocket.Config
}

// GraylogConfig holds the GELF sink settings.
type GraylogConfig struct {
	Enabled bool
	Address string
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return fmt.Errorf("%w in %s", ErrNotFound, configDir)
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("map.homeLat", core.DefaultHome.Lat)
	viper.SetDefault("map.homeLng", core.DefaultHome.Lng)
	viper.SetDefault("map.zoom", core.DefaultZoom)
	viper.SetDefault("map.mapTypeId", string(core.MapTypeRoadmap))
	viper.SetDefault("map.mapTypeControl", true)
	viper.SetDefault("map.streetViewControl", false)
	viper.SetDefault("map.zoomControl", true)
	viper.SetDefault("map.assetBaseUrl", "")
	viper.SetDefault("map.pinColor", "#000000")

	viper.SetDefault("session.rebind", "all")
	viper.SetDefault("session.geocodeTimeout", "5s")
	viper.SetDefault("session.queueSize", 256)

	viper.SetDefault("geocode.provider", "static")
	viper.SetDefault("geocode.apiKey", "")
	viper.SetDefault("geocode.url", "")
	viper.SetDefault("geocode.language", "en")
	viper.SetDefault("geocode.region", "us")
	viper.SetDefault("geocode.staticStatus", string(geocode.StatusOK))

	viper.SetDefault("cache.type", "memory")
	viper.SetDefault("cache.precision", 5)
	viper.SetDefault("cache.limit", 1024)
	viper.SetDefault("cache.sqlite.path", "./geocode_cache.db")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "mapsession")

	viper.SetDefault("renderer.type", "memory")
	viper.SetDefault("renderer.url", "ws://localhost:5000/renderer")
	viper.SetDefault("renderer.secret", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "homepin")
	viper.SetDefault("influx.retentionDays", 90)
	viper.SetDefault("influx.backupPath", "./map_sessions.lp.gz")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "mapsession")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetMapConfig returns the map section.
func GetMapConfig() MapConfig {
	return MapConfig{
		Home: core.Coordinate{
			Lat: viper.GetFloat64("map.homeLat"),
			Lng: viper.GetFloat64("map.homeLng"),
		},
		Zoom:      viper.GetInt("map.zoom"),
		MapTypeID: core.MapTypeID(viper.GetString("map.mapTypeId")),
		Controls: core.ControlsConfig{
			MapTypeControl:    viper.GetBool("map.mapTypeControl"),
			StreetViewControl: viper.GetBool("map.streetViewControl"),
			ZoomControl:       viper.GetBool("map.zoomControl"),
		},
		AssetBaseURL: viper.GetString("map.assetBaseUrl"),
		PinColor:     viper.GetString("map.pinColor"),
	}
}

// GetSessionConfig returns the session section.
func GetSessionConfig() SessionConfig {
	return SessionConfig{
		Rebind:         viper.GetString("session.rebind"),
		GeocodeTimeout: viper.GetDuration("session.geocodeTimeout"),
		QueueSize:      viper.GetInt("session.queueSize"),
	}
}

// GetGeocodeConfig returns the geocode section.
func GetGeocodeConfig() GeocodeConfig {
	return GeocodeConfig{
		Provider: viper.GetString("geocode.provider"),
		Google: geocode.GoogleConfig{
			APIKey:   viper.GetString("geocode.apiKey"),
			URL:      viper.GetString("geocode.url"),
			Language: viper.GetString("geocode.language"),
			Region:   viper.GetString("geocode.region"),
		},
		StaticStatus: geocode.Status(viper.GetString("geocode.staticStatus")),
	}
}

// GetCacheConfig returns the cache section.
func GetCacheConfig() CacheConfig {
	return CacheConfig{
		Type:       viper.GetString("cache.type"),
		Precision:  viper.GetInt("cache.precision"),
		Limit:      viper.GetInt("cache.limit"),
		SQLitePath: viper.GetString("cache.sqlite.path"),
	}
}

// GetDatabaseConfig returns the Postgres settings plus the SQLite cache path.
func GetDatabaseConfig() database.Config {
	return database.Config{
		Host:       viper.GetString("db.host"),
		Port:       viper.GetString("db.port"),
		Username:   viper.GetString("db.username"),
		Password:   viper.GetString("db.password"),
		Database:   viper.GetString("db.database"),
		SqlitePath: viper.GetString("cache.sqlite.path"),
	}
}

// GetRendererConfig returns the renderer section.
func GetRendererConfig() RendererConfig {
	return RendererConfig{
		Type: viper.GetString("renderer.type"),
		Websocket: websocket.Config{
			URL:    viper.GetString("renderer.url"),
			Secret: viper.GetString("renderer.secret"),
		},
	}
}

// GetInfluxConfig returns the influx section and the backup file path.
func GetInfluxConfig() (influx.Config, string) {
	return influx.Config{
		Enabled:       viper.GetBool("influx.enabled"),
		Protocol:      viper.GetString("influx.protocol"),
		Host:          viper.GetString("influx.host"),
		Port:          viper.GetString("influx.port"),
		Token:         viper.GetString("influx.token"),
		Org:           viper.GetString("influx.org"),
		RetentionDays: viper.GetInt("influx.retentionDays"),
	}, viper.GetString("influx.backupPath")
}

// GetGraylogConfig returns the graylog section.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns the otel section.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
