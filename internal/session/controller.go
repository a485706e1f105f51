// Package session implements the map session controller: map initialization, the
// click to geocode to marker pipeline, distance reporting, the single connector line
// and the lifecycle of every click listener the session registers.
//
// A Controller is owned by one event loop. Every exported method except LogAttrs must be
// called from that loop; geocode completions are posted back to it through the Scheduler.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/homepin/mapsession/internal/geo"
	"github.com/homepin/mapsession/internal/geocode"
	"github.com/homepin/mapsession/internal/provider"
	"github.com/homepin/mapsession/pkg/core"
)

type placed struct {
	PlacedMarker
	listener core.ListenerHandle
}

// Controller is the map session controller.
type Controller struct {
	id     string
	opts   Options
	deps   Dependencies
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	phase         Phase
	container     core.Container
	providerReady bool

	mapHandle      core.Handle
	mapListener    core.ListenerHandle
	mapListenerFor core.Handle

	home         *placed
	homeListener core.ListenerHandle
	markers      []*placed
	activeLine   *ConnectorLine
	distanceKm   int
	registry     *ListenerRegistry

	nextToken uint64
	pending   map[uint64]core.Coordinate

	// mirrors for LogAttrs, which may run on any goroutine
	logPhase   atomic.Int32
	logMarkers atomic.Int64
}

// New creates a controller in the Uninitialized phase.
func New(opts Options, deps Dependencies) (*Controller, error) {
	if deps.Provider == nil {
		return nil, errors.New("session: provider is required")
	}
	if deps.Geocoder == nil {
		return nil, errors.New("session: geocoder is required")
	}
	if deps.Scheduler == nil {
		return nil, errors.New("session: scheduler is required")
	}
	if deps.Distance == nil {
		deps.Distance = geo.Haversine{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.Zoom == 0 {
		opts.Zoom = core.DefaultZoom
	}
	if opts.MapType == "" {
		opts.MapType = core.MapTypeRoadmap
	}
	if opts.Rebind == "" {
		opts.Rebind = RebindAll
	}
	if opts.GeocodeTimeout <= 0 {
		opts.GeocodeTimeout = DefaultOptions().GeocodeTimeout
	}
	if err := geo.Validate(opts.Home); err != nil {
		return nil, fmt.Errorf("session: home: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:         uuid.NewString(),
		opts:       opts,
		deps:       deps,
		ctx:        ctx,
		cancel:     cancel,
		distanceKm: DistanceUnset,
		registry:   NewListenerRegistry(deps.Provider),
		pending:    make(map[uint64]core.Coordinate),
	}
	c.logger = deps.Logger.With("session", c.id)
	return c, nil
}

// ID identifies the session in logs and telemetry.
func (c *Controller) ID() string {
	return c.id
}

// LogAttrs returns the session's dynamic log attributes. Safe from any goroutine.
func (c *Controller) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("phase", Phase(c.logPhase.Load()).String()),
		slog.Int64("markers", c.logMarkers.Load()),
	}
}

func (c *Controller) setPhase(p Phase) {
	c.phase = p
	c.logPhase.Store(int32(p))
}

func (c *Controller) syncMarkerCount() {
	c.logMarkers.Store(int64(len(c.markers)))
}

// Mount records the host container and attempts initialization.
func (c *Controller) Mount(container core.Container) {
	if c.phase == PhaseUnmounted {
		c.logger.Debug("Mount ignored after unmount")
		return
	}
	c.container = container
	c.tryInitialize()
}

// ProviderReady is the host's "provider script loaded" signal. It attempts initialization.
func (c *Controller) ProviderReady() {
	if c.phase == PhaseUnmounted {
		return
	}
	c.providerReady = true
	c.tryInitialize()
}

func (c *Controller) tryInitialize() {
	err := c.Initialize()
	switch {
	case err == nil:
	case errors.Is(err, ErrProviderUnavailable):
		c.logger.Debug("Initialization deferred", "error", err)
	default:
		c.logger.Error("Initialization failed", "error", err)
	}
}

// Initialize moves the session to Ready: it creates the map if there is none yet,
// makes sure exactly one map click listener is attached, and (re)places the home marker.
// Calling it again with a live map only replaces the home marker.
func (c *Controller) Initialize() error {
	if c.phase == PhaseUnmounted {
		return ErrUnmounted
	}
	if !c.providerReady {
		return fmt.Errorf("%w: provider not ready", ErrProviderUnavailable)
	}
	if c.container.ID == "" {
		return fmt.Errorf("%w: container not mounted", ErrProviderUnavailable)
	}

	if c.mapHandle == 0 {
		h, err := c.deps.Provider.CreateMap(c.container, core.MapOptions{
			Zoom:      c.opts.Zoom,
			Center:    c.opts.Home,
			MapTypeID: c.opts.MapType,
			Controls:  c.opts.Controls,
		})
		if errors.Is(err, provider.ErrNoContainer) {
			return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		if err != nil {
			return fmt.Errorf("create map: %w", err)
		}
		c.mapHandle = h
		c.logger.Info("Map created", "map", h, "center", c.opts.Home.String(), "zoom", c.opts.Zoom)
	}

	if err := c.syncMapListener(); err != nil {
		return err
	}
	if err := c.placeHome(); err != nil {
		return err
	}

	if c.phase != PhaseReady {
		c.setPhase(PhaseReady)
		c.logger.Info("Session ready")
	}
	return nil
}

// syncMapListener keeps exactly one click listener on the current map handle.
func (c *Controller) syncMapListener() error {
	if c.mapListener != 0 && c.mapListenerFor == c.mapHandle {
		return nil
	}
	if c.mapListener != 0 {
		c.deps.Provider.RemoveListener(c.mapListener)
		c.mapListener, c.mapListenerFor = 0, 0
	}

	l, err := c.deps.Provider.AddClickListener(c.mapHandle, func(at core.Coordinate) {
		c.HandleMapClick(at)
	})
	if err != nil {
		return fmt.Errorf("attach map click listener: %w", err)
	}
	c.mapListener, c.mapListenerFor = l, c.mapHandle
	return nil
}

// placeHome removes any existing home marker before creating the new one.
func (c *Controller) placeHome() error {
	if c.home != nil {
		c.deps.Provider.RemoveListener(c.homeListener)
		c.deps.Provider.RemoveFromMap(c.home.Handle)
		c.home, c.homeListener = nil, 0
	}

	h, err := c.deps.Provider.CreateMarker(core.MarkerOptions{
		Position: c.opts.Home,
		Map:      c.mapHandle,
		Icon:     core.HomeIcon(c.opts.AssetBase),
	})
	if err != nil {
		return fmt.Errorf("create home marker: %w", err)
	}

	l, err := c.deps.Provider.AddClickListener(h, func(core.Coordinate) {
		c.handleHomeClick()
	})
	if err != nil {
		c.deps.Provider.RemoveFromMap(h)
		return fmt.Errorf("attach home click listener: %w", err)
	}

	c.home = &placed{PlacedMarker: PlacedMarker{Handle: h, Position: c.opts.Home}}
	c.homeListener = l
	return nil
}

func (c *Controller) handleHomeClick() {
	if c.phase != PhaseReady {
		return
	}
	c.deps.Provider.PanTo(c.mapHandle, c.opts.Home)
	c.deps.Provider.SetZoom(c.mapHandle, c.opts.Zoom)
	c.logger.Debug("Home clicked, view reset", "zoom", c.opts.Zoom)
}

// HandleMapClick starts an asynchronous reverse geocode of at. The completion is
// posted back to the event loop and applied only if the session is still live.
// It returns the completion token, or 0 if the click was ignored.
func (c *Controller) HandleMapClick(at core.Coordinate) uint64 {
	if c.phase != PhaseReady {
		c.logger.Debug("Map click ignored", "phase", c.phase.String())
		return 0
	}
	if err := geo.Validate(at); err != nil {
		c.logger.Debug("Map click ignored", "at", at.String(), "error", err)
		return 0
	}

	c.nextToken++
	token := c.nextToken
	c.pending[token] = at

	ctx, timeout, resolver, sched := c.ctx, c.opts.GeocodeTimeout, c.deps.Geocoder, c.deps.Scheduler
	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := resolver.ReverseGeocode(reqCtx, at)
		cancel()

		if serr := sched.Schedule(func() {
			c.completeGeocode(token, at, resp, err)
		}); serr != nil {
			c.logger.Debug("Geocode completion dropped", "token", token, "error", serr)
		}
	}()
	return token
}

func (c *Controller) completeGeocode(token uint64, at core.Coordinate, resp geocode.Response, err error) {
	if _, live := c.pending[token]; !live {
		c.logger.Debug("Stale geocode completion ignored", "token", token)
		return
	}
	delete(c.pending, token)
	if c.phase != PhaseReady {
		return
	}

	if err != nil || !resp.OK() {
		c.geocodeFailed(GeocodeFailure{Token: token, At: at, Status: resp.Status, Err: err})
		return
	}

	c.placeMarker(core.AddressMarker{Address: resp.Address(), Coordinate: at})
}

func (c *Controller) geocodeFailed(f GeocodeFailure) {
	if f.Err != nil {
		f.Status = ""
	}
	c.logger.Warn("Geocode failed, click dropped", "token", f.Token, "at", f.At.String(), "status", string(f.Status), "error", f.Err)
	if c.deps.OnGeocodeFailure != nil {
		c.deps.OnGeocodeFailure(f)
	}
	if c.deps.Telemetry != nil {
		c.deps.Telemetry.GeocodeFailed(c.id, f)
	}
}

// placeMarker turns a geocoded click into a marker with its own click listener.
func (c *Controller) placeMarker(am core.AddressMarker) {
	h, err := c.deps.Provider.CreateMarker(core.MarkerOptions{
		Position: am.Coordinate,
		Map:      c.mapHandle,
		Icon:     core.PinIcon(c.opts.PinColor),
	})
	if err != nil {
		c.logger.Error("Failed to create marker", "at", am.Coordinate.String(), "error", err)
		return
	}

	m := &placed{PlacedMarker: PlacedMarker{Handle: h, Position: am.Coordinate, Address: am.Address}}
	if err := c.bindMarker(m); err != nil {
		c.deps.Provider.RemoveFromMap(h)
		c.logger.Error("Failed to attach marker listener", "marker", h, "error", err)
		return
	}

	c.markers = append(c.markers, m)
	c.syncMarkerCount()
	c.logger.Info("Marker placed", "marker", h, "address", am.Address, "at", am.Coordinate.String())

	if c.deps.Telemetry != nil {
		c.deps.Telemetry.MarkerPlaced(c.id, am.Coordinate, am.Address)
	}
}

func (c *Controller) bindMarker(m *placed) error {
	h := m.Handle
	l, err := c.deps.Provider.AddClickListener(h, func(core.Coordinate) {
		c.handleMarkerClick(h)
	})
	if err != nil {
		return err
	}
	m.listener = l
	c.registry.Add(h, l)
	return nil
}

// handleMarkerClick reports the distance from home to the marker and moves the
// connector line to it.
func (c *Controller) handleMarkerClick(h core.Handle) {
	if c.phase != PhaseReady {
		return
	}
	if c.home == nil {
		c.logger.Debug("Marker click ignored", "marker", h, "error", ErrMissingCoordinate)
		return
	}
	homePos, ok := c.deps.Provider.MarkerPosition(c.home.Handle)
	if !ok {
		c.logger.Debug("Marker click ignored", "marker", h, "error", fmt.Errorf("home: %w", ErrMissingCoordinate))
		return
	}
	targetPos, ok := c.deps.Provider.MarkerPosition(h)
	if !ok {
		c.logger.Debug("Marker click ignored", "marker", h, "error", fmt.Errorf("target: %w", ErrMissingCoordinate))
		return
	}

	meters := c.deps.Distance.SphericalDistanceMeters(homePos, targetPos)
	km := geo.CeilKilometers(meters)
	c.distanceKm = km
	c.logger.Debug("Distance computed", "marker", h, "meters", meters, "km", km)

	if c.deps.OnDistance != nil {
		c.deps.OnDistance(km)
	}
	if c.deps.Telemetry != nil {
		c.deps.Telemetry.DistanceComputed(c.id, targetPos, meters, km)
	}

	if c.replaceLine(h, homePos, targetPos) && c.opts.Rebind == RebindAll {
		c.rebind()
	}
}

// replaceLine removes the active line, then draws home to target. It reports whether
// the active line changed.
func (c *Controller) replaceLine(target core.Handle, from, to core.Coordinate) bool {
	changed := false
	if c.activeLine != nil {
		c.deps.Provider.RemoveFromMap(c.activeLine.Handle)
		c.activeLine = nil
		changed = true
	}

	h, err := c.deps.Provider.CreateLine(core.LineOptions{
		Path:      [2]core.Coordinate{from, to},
		ArrowIcon: core.SymbolForwardOpenArrow,
		Map:       c.mapHandle,
	})
	if err != nil {
		c.logger.Error("Failed to draw connector line", "marker", target, "error", err)
		return changed
	}

	c.activeLine = &ConnectorLine{Handle: h, Target: target, From: from, To: to}
	return true
}

// rebind detaches every marker listener and registers a fresh one per marker at its
// current provider position. Markers are never moved or duplicated.
func (c *Controller) rebind() {
	detached := c.registry.DetachAll()

	kept := c.markers[:0]
	for _, m := range c.markers {
		m.listener = 0
		pos, ok := c.deps.Provider.MarkerPosition(m.Handle)
		if !ok {
			c.logger.Debug("Dropping marker no longer on map", "marker", m.Handle)
			continue
		}
		m.Position = pos
		if err := c.bindMarker(m); err != nil {
			c.deps.Provider.RemoveFromMap(m.Handle)
			c.logger.Error("Failed to rebind marker listener", "marker", m.Handle, "error", err)
			continue
		}
		kept = append(kept, m)
	}
	for i := len(kept); i < len(c.markers); i++ {
		c.markers[i] = nil
	}
	c.markers = kept
	c.syncMarkerCount()

	c.logger.Debug("Marker listeners rebound", "detached", detached, "active", c.registry.Len())
}

// Unmount tears the session down: in-flight geocodes are cancelled and their
// completions ignored, every listener is detached and every overlay removed.
func (c *Controller) Unmount() {
	if c.phase == PhaseUnmounted {
		return
	}
	c.cancel()
	clear(c.pending)

	p := c.deps.Provider
	if c.mapListener != 0 {
		p.RemoveListener(c.mapListener)
	}
	if c.homeListener != 0 {
		p.RemoveListener(c.homeListener)
	}
	c.registry.DetachAll()

	if c.activeLine != nil {
		p.RemoveFromMap(c.activeLine.Handle)
	}
	for _, m := range c.markers {
		p.RemoveFromMap(m.Handle)
	}
	if c.home != nil {
		p.RemoveFromMap(c.home.Handle)
	}

	c.mapHandle, c.mapListener, c.mapListenerFor = 0, 0, 0
	c.home, c.homeListener = nil, 0
	c.markers = nil
	c.activeLine = nil
	c.distanceKm = DistanceUnset
	c.setPhase(PhaseUnmounted)
	c.syncMarkerCount()
	c.logger.Info("Session unmounted")
}

// Phase returns the lifecycle phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

// DistanceKm returns the last reported distance, or DistanceUnset.
func (c *Controller) DistanceKm() int {
	return c.distanceKm
}

// MapHandle returns the provider map, or 0 before initialization.
func (c *Controller) MapHandle() core.Handle {
	return c.mapHandle
}

// HomeMarker returns the home marker handle, or 0 if it is not placed.
func (c *Controller) HomeMarker() core.Handle {
	if c.home == nil {
		return 0
	}
	return c.home.Handle
}

// Markers returns the non-home markers in placement order.
func (c *Controller) Markers() []PlacedMarker {
	out := make([]PlacedMarker, 0, len(c.markers))
	for _, m := range c.markers {
		out = append(out, m.PlacedMarker)
	}
	return out
}

// ListenerStats returns the marker listener registry counters.
func (c *Controller) ListenerStats() RegistryStats {
	return c.registry.Stats()
}

// State returns a snapshot of the session.
func (c *Controller) State() State {
	s := State{
		SessionID:  c.id,
		Phase:      c.phase.String(),
		Map:        c.mapHandle,
		Markers:    c.Markers(),
		DistanceKm: c.distanceKm,
		Pending:    len(c.pending),
		Listeners:  c.registry.Stats(),
	}
	if c.home != nil {
		home := c.home.PlacedMarker
		s.Home = &home
	}
	if c.activeLine != nil {
		line := *c.activeLine
		s.ActiveLine = &line
	}
	return s
}
