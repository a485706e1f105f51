// Package websocket is a map provider that keeps the scene in memory and mirrors every
// change to a remote renderer over WebSocket. Clicks made in the renderer come back as
// click envelopes and are delivered to listeners on the controller's event loop.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/homepin/mapsession/internal/geo"
	"github.com/homepin/mapsession/internal/provider"
	"github.com/homepin/mapsession/internal/provider/memory"
	"github.com/homepin/mapsession/pkg/core"
	"github.com/homepin/mapsession/pkg/streaming"
)

// Config holds renderer connection settings.
type Config struct {
	URL    string
	Secret string
}

// Scheduler runs fn on the controller's event loop.
type Scheduler interface {
	Schedule(fn func()) error
}

// Provider implements provider.Provider against a remote renderer.
type Provider struct {
	*memory.Provider

	cfg       Config
	conn      *connection
	scheduler Scheduler
	logger    *slog.Logger
	sessionID string
	home      core.Coordinate
	zoom      int

	mu   sync.Mutex
	maps []core.Handle
}

var _ provider.Provider = (*Provider)(nil)

// New creates a renderer-backed provider. Inbound clicks are handed to scheduler.
func New(cfg Config, scheduler Scheduler, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{
		Provider:  memory.New(),
		cfg:       cfg,
		scheduler: scheduler,
		logger:    logger,
		sessionID: uuid.NewString(),
	}
	p.conn = newConnection(logger, p.handleMessage)
	p.conn.replay = p.snapshot
	return p
}

// SessionID identifies this controller to the renderer.
func (p *Provider) SessionID() string {
	return p.sessionID
}

// Connect dials the renderer and waits for it to acknowledge the session.
func (p *Provider) Connect(home core.Coordinate, zoom int) error {
	p.home, p.zoom = home, zoom
	if err := p.conn.dial(p.cfg.URL, p.cfg.Secret); err != nil {
		return err
	}
	data, err := p.sessionStart()
	if err != nil {
		return err
	}
	return p.conn.sendAndWait(data, streaming.TypeSessionStart, ackTimeout)
}

// Close ends the session and disconnects.
func (p *Provider) Close() error {
	data, err := marshalEnvelope(streaming.TypeSessionEnd, nil)
	if err != nil {
		return p.conn.close()
	}
	return p.conn.close(data)
}

func (p *Provider) sessionStart() ([]byte, error) {
	return marshalEnvelope(streaming.TypeSessionStart, streaming.SessionStartPayload{
		SessionID: p.sessionID,
		Home:      p.home,
		Zoom:      p.zoom,
	})
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// mirror pushes an envelope to the renderer. Dropped frames are logged and the
// whole scene is resent on reconnect.
func (p *Provider) mirror(msgType string, payload any) {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		p.logger.Error("Failed to encode renderer message", "type", msgType, "error", err)
		return
	}
	p.conn.send(data)
}

func mercator(c core.Coordinate) streaming.Mercator {
	x, y := geo.ToWebMercator(c)
	return streaming.Mercator{X: x, Y: y}
}

// CreateMap creates the map locally and on the renderer.
func (p *Provider) CreateMap(container core.Container, opts core.MapOptions) (core.Handle, error) {
	h, err := p.Provider.CreateMap(container, opts)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.maps = append(p.maps, h)
	p.mu.Unlock()

	p.mirror(streaming.TypeCreateMap, createMapPayload(h, container, opts))
	return h, nil
}

func createMapPayload(h core.Handle, container core.Container, opts core.MapOptions) streaming.CreateMapPayload {
	return streaming.CreateMapPayload{
		Handle:    h,
		Container: container,
		Options:   opts,
		Center:    mercator(opts.Center),
	}
}

// CreateMarker places the marker locally and on the renderer.
func (p *Provider) CreateMarker(opts core.MarkerOptions) (core.Handle, error) {
	h, err := p.Provider.CreateMarker(opts)
	if err != nil {
		return 0, err
	}
	p.mirror(streaming.TypeCreateMarker, streaming.CreateMarkerPayload{
		Handle:   h,
		Options:  opts,
		Position: mercator(opts.Position),
	})
	return h, nil
}

// CreateLine draws the line locally and on the renderer.
func (p *Provider) CreateLine(opts core.LineOptions) (core.Handle, error) {
	h, err := p.Provider.CreateLine(opts)
	if err != nil {
		return 0, err
	}
	p.mirror(streaming.TypeCreateLine, streaming.CreateLinePayload{Handle: h, Options: opts})
	return h, nil
}

// RemoveFromMap removes the overlay locally and on the renderer.
func (p *Provider) RemoveFromMap(h core.Handle) {
	p.Provider.RemoveFromMap(h)
	p.mirror(streaming.TypeRemove, streaming.RemovePayload{Handle: h})
}

// PanTo recentres the map locally and on the renderer.
func (p *Provider) PanTo(m core.Handle, c core.Coordinate) {
	p.Provider.PanTo(m, c)
	p.mirror(streaming.TypePanTo, streaming.PanToPayload{Map: m, Center: c})
}

// SetZoom changes zoom locally and on the renderer.
func (p *Provider) SetZoom(m core.Handle, level int) {
	p.Provider.SetZoom(m, level)
	p.mirror(streaming.TypeSetZoom, streaming.SetZoomPayload{Map: m, Zoom: level})
}

// handleMessage runs on the read goroutine.
func (p *Provider) handleMessage(env streaming.Envelope) {
	switch env.Type {
	case streaming.TypeClick:
		var click streaming.ClickPayload
		if err := json.Unmarshal(env.Payload, &click); err != nil {
			p.logger.Warn("Malformed click from renderer", "error", err)
			return
		}
		at := core.Coordinate{Lat: click.Lat, Lng: click.Lng}
		if err := geo.Validate(at); err != nil {
			p.logger.Warn("Click outside valid range", "target", click.Target, "at", at.String())
			return
		}
		err := p.scheduler.Schedule(func() {
			p.Provider.Click(click.Target, at)
		})
		if err != nil {
			p.logger.Warn("Dropped renderer click", "target", click.Target, "error", err)
		}
	default:
		p.logger.Debug("Ignoring renderer message", "type", env.Type)
	}
}

// snapshot encodes the current scene, session first, for replay after a reconnect.
func (p *Provider) snapshot() [][]byte {
	var out [][]byte
	add := func(msgType string, payload any) {
		data, err := marshalEnvelope(msgType, payload)
		if err != nil {
			p.logger.Error("Failed to encode replay message", "type", msgType, "error", err)
			return
		}
		out = append(out, data)
	}

	if data, err := p.sessionStart(); err == nil {
		out = append(out, data)
	}

	p.mu.Lock()
	maps := append([]core.Handle(nil), p.maps...)
	p.mu.Unlock()

	for _, m := range maps {
		view, ok := p.Provider.Map(m)
		if !ok {
			continue
		}
		opts := view.Options
		opts.Center = view.Center
		opts.Zoom = view.Zoom
		add(streaming.TypeCreateMap, createMapPayload(m, view.Container, opts))

		for _, mk := range p.Provider.Markers(m) {
			add(streaming.TypeCreateMarker, streaming.CreateMarkerPayload{
				Handle:   mk.Handle,
				Options:  core.MarkerOptions{Position: mk.Position, Map: m, Icon: mk.Icon},
				Position: mercator(mk.Position),
			})
		}
		for _, ln := range p.Provider.Lines(m) {
			add(streaming.TypeCreateLine, streaming.CreateLinePayload{
				Handle:  ln.Handle,
				Options: core.LineOptions{Path: ln.Path, ArrowIcon: ln.Arrow, Map: m},
			})
		}
	}
	return out
}
