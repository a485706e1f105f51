package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/homepin/mapsession/internal/cache"
	"github.com/homepin/mapsession/internal/config"
	"github.com/homepin/mapsession/internal/database"
	"github.com/homepin/mapsession/internal/dispatcher"
	"github.com/homepin/mapsession/internal/geocode"
	"github.com/homepin/mapsession/internal/influx"
	"github.com/homepin/mapsession/internal/provider"
	"github.com/homepin/mapsession/internal/provider/memory"
	"github.com/homepin/mapsession/internal/provider/websocket"
	"github.com/homepin/mapsession/internal/session"
	"github.com/homepin/mapsession/pkg/core"
)

// renderer is a provider the host can also click on and export.
type renderer interface {
	provider.Provider
	Click(target core.Handle, at core.Coordinate) int
	ClickMarker(h core.Handle) int
	Scene(m core.Handle, homeIconURL string) *geojson.FeatureCollection
}

// cacheStore is a geocode cache the host can report on and clear.
type cacheStore interface {
	geocode.Cache
	Count() (int64, error)
	Purge() error
}

// syncWriter serializes output from the command loop and the session loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// app is the host widget: one map session and the services around it.
type app struct {
	logger     *slog.Logger
	infraLog   zerolog.Logger
	out        io.Writer
	dispatcher *dispatcher.Dispatcher
	controller *session.Controller
	renderer   renderer
	cache      cacheStore
	cacheType  string
	mapCfg     config.MapConfig

	closers []func() error
}

func (a *app) addCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases services in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Error during shutdown", "error", err)
		}
	}
	a.closers = nil
}

// logAttrs returns the attributes added to every log record: the session ID
// followed by its phase and marker count.
func (a *app) logAttrs() []slog.Attr {
	return append([]slog.Attr{slog.String("session", a.controller.ID())}, a.controller.LogAttrs()...)
}

// newApp wires a session from the loaded configuration. The renderer is not
// connected yet; call start for that.
func newApp(logger *slog.Logger, infraLog zerolog.Logger, out io.Writer) (*app, error) {
	a := &app{
		logger:   logger,
		infraLog: infraLog,
		out:      &syncWriter{w: out},
		mapCfg:   config.GetMapConfig(),
	}

	sessCfg := config.GetSessionConfig()
	rebind, err := session.ParseRebindStrategy(sessCfg.Rebind)
	if err != nil {
		return nil, err
	}

	a.dispatcher, err = dispatcher.New(logger, sessCfg.QueueSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	a.addCloser(func() error {
		a.dispatcher.Close()
		return nil
	})

	resolver, err := a.buildResolver()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.renderer, err = a.buildRenderer()
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := session.DefaultOptions()
	opts.Home = a.mapCfg.Home
	opts.Zoom = a.mapCfg.Zoom
	opts.MapType = a.mapCfg.MapTypeID
	opts.Controls = a.mapCfg.Controls
	opts.AssetBase = a.mapCfg.AssetBaseURL
	opts.PinColor = a.mapCfg.PinColor
	opts.Rebind = rebind
	opts.GeocodeTimeout = sessCfg.GeocodeTimeout

	deps := session.Dependencies{
		Provider:  a.renderer,
		Geocoder:  resolver,
		Scheduler: a.dispatcher,
		Logger:    logger,
		OnDistance: func(km int) {
			fmt.Fprintf(a.out, "distance %d km\n", km)
		},
		OnGeocodeFailure: func(f session.GeocodeFailure) {
			fmt.Fprintf(a.out, "no marker: %v\n", f)
		},
	}
	if rec := a.buildTelemetry(); rec != nil {
		deps.Telemetry = rec
	}

	a.controller, err = session.New(opts, deps)
	if err != nil {
		a.Close()
		return nil, err
	}

	registerCommands(a)
	return a, nil
}

func (a *app) buildResolver() (geocode.Resolver, error) {
	gc := config.GetGeocodeConfig()

	var inner geocode.Resolver
	switch gc.Provider {
	case "google":
		g, err := geocode.NewGoogle(gc.Google)
		if err != nil {
			return nil, err
		}
		a.logger.Info("Using Google geocoder", "script", geocode.ScriptURL(gc.Google.APIKey))
		inner = g
	case "static", "":
		a.logger.Info("Using static geocoder", "status", gc.StaticStatus)
		inner = geocode.NewStatic(gc.StaticStatus)
	default:
		return nil, fmt.Errorf("unknown geocode provider %q", gc.Provider)
	}

	cc := config.GetCacheConfig()
	store, err := a.buildCache(cc)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return inner, nil
	}
	a.cache, a.cacheType = store, cc.Type

	cached := geocode.NewCached(inner, store, cc.Precision)
	cached.OnStoreError(func(err error) {
		a.logger.Warn("Failed to cache geocode result", "error", err)
	})
	return cached, nil
}

func (a *app) buildCache(cc config.CacheConfig) (cacheStore, error) {
	switch cc.Type {
	case "none", "":
		return nil, nil
	case "memory":
		c := cache.NewAddressCache(cc.Limit)
		a.addCloser(func() error {
			hits, misses := c.Stats()
			a.logger.Info("Geocode cache stats", "entries", c.Len(), "hits", hits, "misses", misses)
			return nil
		})
		return c, nil
	case "sqlite", "postgres":
		m := database.NewManager(a.infraLog, config.GetDatabaseConfig())
		var err error
		if cc.Type == "postgres" {
			err = m.Connect()
		} else {
			err = m.ConnectSqlite()
		}
		if err != nil {
			return nil, fmt.Errorf("geocode cache: %w", err)
		}
		if err := m.Setup(); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("geocode cache: %w", err)
		}
		a.addCloser(m.Close)
		a.logger.Info("Using database geocode cache", "dialect", m.DB.Dialector.Name())
		return database.NewGeocodeStore(m.DB, a.infraLog), nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", cc.Type)
	}
}

func (a *app) buildRenderer() (renderer, error) {
	rc := config.GetRendererConfig()
	switch rc.Type {
	case "memory", "":
		return memory.New(), nil
	case "websocket":
		p := websocket.New(rc.Websocket, a.dispatcher, a.logger)
		a.addCloser(p.Close)
		return p, nil
	default:
		return nil, fmt.Errorf("unknown renderer type %q", rc.Type)
	}
}

func (a *app) buildTelemetry() session.Telemetry {
	ic, backupPath := config.GetInfluxConfig()
	m := influx.NewManager(a.infraLog, ic, backupPath)
	if err := m.Connect(context.Background()); err != nil {
		a.logger.Debug("Session telemetry not recorded", "reason", err)
		return nil
	}
	a.addCloser(m.Close)
	return influx.NewRecorder(m, a.infraLog)
}

// start brings the renderer up, mounts the map container and signals provider ready.
func (a *app) start() error {
	if ws, ok := a.renderer.(*websocket.Provider); ok {
		if err := ws.Connect(a.mapCfg.Home, a.mapCfg.Zoom); err != nil {
			return fmt.Errorf("renderer: %w", err)
		}
		a.logger.Info("Renderer connected", "renderer", ws.SessionID())
	}

	container := core.Container{ID: "map-" + uuid.NewString()}
	return a.dispatcher.Schedule(func() {
		a.controller.Mount(container)
		a.controller.ProviderReady()
	})
}
