// internal/provider/memory/memory.go
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/homepin/mapsession/internal/provider"
	"github.com/homepin/mapsession/internal/queue"
	"github.com/homepin/mapsession/pkg/core"
)

const traceLimit = 4096

// Operation kinds recorded in the trace
const (
	OpCreateMap      = "createMap"
	OpCreateMarker   = "createMarker"
	OpCreateLine     = "createLine"
	OpRemoveFromMap  = "removeFromMap"
	OpAddListener    = "addClickListener"
	OpRemoveListener = "removeListener"
	OpPanTo          = "panTo"
	OpSetZoom        = "setZoom"
)

// Op is one provider call, in call order
type Op struct {
	Kind     string
	Target   core.Handle
	Listener core.ListenerHandle
}

// MapView is the current viewport of a map
type MapView struct {
	Handle    core.Handle
	Container core.Container
	Options   core.MapOptions
	Center    core.Coordinate
	Zoom      int
}

// MarkerView is a marker currently on a map
type MarkerView struct {
	Handle   core.Handle
	Map      core.Handle
	Position core.Coordinate
	Icon     core.Icon
}

// LineView is a line currently on a map
type LineView struct {
	Handle core.Handle
	Map    core.Handle
	Path   [2]core.Coordinate
	Arrow  core.SymbolPath
}

// ListenerStats counts listener registrations over the provider's life
type ListenerStats struct {
	Active  int
	Added   int
	Removed int
}

type mapEntry struct {
	container core.Container
	opts      core.MapOptions
	center    core.Coordinate
	zoom      int
}

type markerEntry struct {
	opts     core.MarkerOptions
	attached bool
}

type lineEntry struct {
	opts     core.LineOptions
	attached bool
}

type listenerEntry struct {
	id     core.ListenerHandle
	target core.Handle
	fn     provider.ClickFunc
}

// Provider is a headless, in-process map. It keeps the full scene so hosts without a
// renderer (and tests) can drive clicks and inspect what would be drawn.
type Provider struct {
	mu        sync.Mutex
	nextID    uint64
	maps      map[core.Handle]*mapEntry
	markers   map[core.Handle]*markerEntry
	lines     map[core.Handle]*lineEntry
	listeners []*listenerEntry // registration order
	added     int
	removed   int
	failures  map[string]error
	trace     *queue.Queue[Op]
}

// New creates an empty provider
func New() *Provider {
	return &Provider{
		maps:     make(map[core.Handle]*mapEntry),
		markers:  make(map[core.Handle]*markerEntry),
		lines:    make(map[core.Handle]*lineEntry),
		failures: make(map[string]error),
		trace:    queue.NewBounded[Op](traceLimit),
	}
}

var _ provider.Provider = (*Provider)(nil)

func (p *Provider) issue() core.Handle {
	p.nextID++
	return core.Handle(p.nextID)
}

// FailNext makes the next call of the given kind return err.
func (p *Provider) FailNext(kind string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[kind] = err
}

func (p *Provider) takeFailure(kind string) error {
	err, ok := p.failures[kind]
	if !ok {
		return nil
	}
	delete(p.failures, kind)
	return err
}

func (p *Provider) record(op Op) {
	p.trace.Push(op)
}

// CreateMap creates a new map in container
func (p *Provider) CreateMap(container core.Container, opts core.MapOptions) (core.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure(OpCreateMap); err != nil {
		return 0, err
	}
	if container.ID == "" {
		return 0, provider.ErrNoContainer
	}

	h := p.issue()
	p.maps[h] = &mapEntry{
		container: container,
		opts:      opts,
		center:    opts.Center,
		zoom:      opts.Zoom,
	}
	p.record(Op{Kind: OpCreateMap, Target: h})
	return h, nil
}

// CreateMarker places a marker on an existing map
func (p *Provider) CreateMarker(opts core.MarkerOptions) (core.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure(OpCreateMarker); err != nil {
		return 0, err
	}
	if _, ok := p.maps[opts.Map]; !ok {
		return 0, fmt.Errorf("create marker on map %d: %w", opts.Map, provider.ErrUnknownHandle)
	}

	h := p.issue()
	p.markers[h] = &markerEntry{opts: opts, attached: true}
	p.record(Op{Kind: OpCreateMarker, Target: h})
	return h, nil
}

// CreateLine draws a line on an existing map
func (p *Provider) CreateLine(opts core.LineOptions) (core.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure(OpCreateLine); err != nil {
		return 0, err
	}
	if _, ok := p.maps[opts.Map]; !ok {
		return 0, fmt.Errorf("create line on map %d: %w", opts.Map, provider.ErrUnknownHandle)
	}

	h := p.issue()
	p.lines[h] = &lineEntry{opts: opts, attached: true}
	p.record(Op{Kind: OpCreateLine, Target: h})
	return h, nil
}

// RemoveFromMap detaches a marker or line
func (p *Provider) RemoveFromMap(h core.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if m, ok := p.markers[h]; ok && m.attached {
		m.attached = false
		p.record(Op{Kind: OpRemoveFromMap, Target: h})
		return
	}
	if l, ok := p.lines[h]; ok && l.attached {
		l.attached = false
		p.record(Op{Kind: OpRemoveFromMap, Target: h})
	}
}

// AddClickListener registers fn for clicks on a map, marker or line
func (p *Provider) AddClickListener(target core.Handle, fn provider.ClickFunc) (core.ListenerHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure(OpAddListener); err != nil {
		return 0, err
	}
	if !p.known(target) {
		return 0, fmt.Errorf("add listener to %d: %w", target, provider.ErrUnknownHandle)
	}

	id := core.ListenerHandle(p.issue())
	p.listeners = append(p.listeners, &listenerEntry{id: id, target: target, fn: fn})
	p.added++
	p.record(Op{Kind: OpAddListener, Target: target, Listener: id})
	return id, nil
}

// RemoveListener detaches a listener
func (p *Provider) RemoveListener(l core.ListenerHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, entry := range p.listeners {
		if entry.id == l {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			p.removed++
			p.record(Op{Kind: OpRemoveListener, Target: entry.target, Listener: l})
			return
		}
	}
}

// PanTo recentres the map
func (p *Provider) PanTo(m core.Handle, c core.Coordinate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.maps[m]; ok {
		entry.center = c
		p.record(Op{Kind: OpPanTo, Target: m})
	}
}

// SetZoom changes the zoom level
func (p *Provider) SetZoom(m core.Handle, level int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.maps[m]; ok {
		entry.zoom = level
		p.record(Op{Kind: OpSetZoom, Target: m})
	}
}

// MarkerPosition returns the position of a marker that is still on the map
func (p *Provider) MarkerPosition(h core.Handle) (core.Coordinate, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.markers[h]
	if !ok || !m.attached {
		return core.Coordinate{}, false
	}
	return m.opts.Position, true
}

func (p *Provider) known(h core.Handle) bool {
	if _, ok := p.maps[h]; ok {
		return true
	}
	if _, ok := p.markers[h]; ok {
		return true
	}
	_, ok := p.lines[h]
	return ok
}

// Click fires every listener registered on target, in registration order, and returns how
// many ran. Listeners run without the provider lock held so they may call back into it.
func (p *Provider) Click(target core.Handle, at core.Coordinate) int {
	p.mu.Lock()
	var fns []provider.ClickFunc
	for _, entry := range p.listeners {
		if entry.target == target {
			fns = append(fns, entry.fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(at)
	}
	return len(fns)
}

// ClickMarker clicks a marker at its own position. It returns 0 if the marker is off the map.
func (p *Provider) ClickMarker(h core.Handle) int {
	pos, ok := p.MarkerPosition(h)
	if !ok {
		return 0
	}
	return p.Click(h, pos)
}

// Map returns the viewport of map m
func (p *Provider) Map(m core.Handle) (MapView, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.maps[m]
	if !ok {
		return MapView{}, false
	}
	return MapView{
		Handle:    m,
		Container: entry.container,
		Options:   entry.opts,
		Center:    entry.center,
		Zoom:      entry.zoom,
	}, true
}

// MapCount returns how many maps were ever created
func (p *Provider) MapCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.maps)
}

// Markers returns the markers currently attached to map m, oldest first
func (p *Provider) Markers(m core.Handle) []MarkerView {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []MarkerView
	for h, entry := range p.markers {
		if entry.attached && entry.opts.Map == m {
			out = append(out, MarkerView{
				Handle:   h,
				Map:      m,
				Position: entry.opts.Position,
				Icon:     entry.opts.Icon,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// Lines returns the lines currently attached to map m, oldest first
func (p *Provider) Lines(m core.Handle) []LineView {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []LineView
	for h, entry := range p.lines {
		if entry.attached && entry.opts.Map == m {
			out = append(out, LineView{
				Handle: h,
				Map:    m,
				Path:   entry.opts.Path,
				Arrow:  entry.opts.ArrowIcon,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// ListenersOn returns how many listeners are registered on target
func (p *Provider) ListenersOn(target core.Handle) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, entry := range p.listeners {
		if entry.target == target {
			n++
		}
	}
	return n
}

// ListenerStats returns listener registration counters
func (p *Provider) ListenerStats() ListenerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ListenerStats{
		Active:  len(p.listeners),
		Added:   p.added,
		Removed: p.removed,
	}
}

// Trace drains the recorded operations
func (p *Provider) Trace() []Op {
	return p.trace.GetAndEmpty()
}
