package memory

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homepin/mapsession/internal/provider"
	"github.com/homepin/mapsession/pkg/core"
)

func newMap(t *testing.T, p *Provider) core.Handle {
	t.Helper()
	m, err := p.CreateMap(core.Container{ID: "map"}, core.MapOptions{
		Zoom:      core.DefaultZoom,
		Center:    core.DefaultHome,
		MapTypeID: core.MapTypeRoadmap,
		Controls:  core.DefaultControls(),
	})
	require.NoError(t, err)
	return m
}

func TestCreateMap_RequiresContainer(t *testing.T) {
	p := New()
	_, err := p.CreateMap(core.Container{}, core.MapOptions{})
	assert.ErrorIs(t, err, provider.ErrNoContainer)
	assert.Equal(t, 0, p.MapCount())
}

func TestCreateMap_InitialView(t *testing.T) {
	p := New()
	m := newMap(t, p)

	view, ok := p.Map(m)
	require.True(t, ok)
	assert.Equal(t, core.DefaultHome, view.Center)
	assert.Equal(t, core.DefaultZoom, view.Zoom)
	assert.Equal(t, "map", view.Container.ID)
	assert.True(t, view.Options.Controls.MapTypeControl)
	assert.False(t, view.Options.Controls.StreetViewControl)
}

func TestCreateMarker_UnknownMap(t *testing.T) {
	p := New()
	_, err := p.CreateMarker(core.MarkerOptions{Map: 42})
	assert.ErrorIs(t, err, provider.ErrUnknownHandle)

	_, err = p.CreateLine(core.LineOptions{Map: 42})
	assert.ErrorIs(t, err, provider.ErrUnknownHandle)
}

func TestMarkersAndLines(t *testing.T) {
	p := New()
	m := newMap(t, p)

	pos := core.Coordinate{Lat: 35.3, Lng: -80.9}
	mk, err := p.CreateMarker(core.MarkerOptions{Position: pos, Map: m, Icon: core.PinIcon("")})
	require.NoError(t, err)

	got, ok := p.MarkerPosition(mk)
	require.True(t, ok)
	assert.Equal(t, pos, got)

	ln, err := p.CreateLine(core.LineOptions{
		Path:      [2]core.Coordinate{core.DefaultHome, pos},
		ArrowIcon: core.SymbolForwardOpenArrow,
		Map:       m,
	})
	require.NoError(t, err)

	require.Len(t, p.Markers(m), 1)
	require.Len(t, p.Lines(m), 1)
	assert.Equal(t, core.SymbolForwardOpenArrow, p.Lines(m)[0].Arrow)

	p.RemoveFromMap(ln)
	p.RemoveFromMap(mk)
	assert.Empty(t, p.Lines(m))
	assert.Empty(t, p.Markers(m))

	_, ok = p.MarkerPosition(mk)
	assert.False(t, ok)
}

func TestRemoveFromMap_Idempotent(t *testing.T) {
	p := New()
	m := newMap(t, p)
	mk, err := p.CreateMarker(core.MarkerOptions{Map: m})
	require.NoError(t, err)
	p.Trace()

	p.RemoveFromMap(mk)
	p.RemoveFromMap(mk)
	p.RemoveFromMap(999)

	assert.Len(t, p.Trace(), 1)
}

func TestClick_RegistrationOrder(t *testing.T) {
	p := New()
	m := newMap(t, p)

	var order []int
	_, err := p.AddClickListener(m, func(core.Coordinate) { order = append(order, 1) })
	require.NoError(t, err)
	_, err = p.AddClickListener(m, func(core.Coordinate) { order = append(order, 2) })
	require.NoError(t, err)

	n := p.Click(m, core.Coordinate{Lat: 1, Lng: 2})
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{1, 2}, order)
}

func TestClick_ListenerMayCallBack(t *testing.T) {
	p := New()
	m := newMap(t, p)

	var created core.Handle
	_, err := p.AddClickListener(m, func(at core.Coordinate) {
		h, err := p.CreateMarker(core.MarkerOptions{Position: at, Map: m})
		require.NoError(t, err)
		created = h
	})
	require.NoError(t, err)

	p.Click(m, core.Coordinate{Lat: 10, Lng: 20})
	pos, ok := p.MarkerPosition(created)
	require.True(t, ok)
	assert.Equal(t, core.Coordinate{Lat: 10, Lng: 20}, pos)
}

func TestRemoveListener(t *testing.T) {
	p := New()
	m := newMap(t, p)

	calls := 0
	l, err := p.AddClickListener(m, func(core.Coordinate) { calls++ })
	require.NoError(t, err)

	p.RemoveListener(l)
	p.RemoveListener(l)

	assert.Equal(t, 0, p.Click(m, core.Coordinate{}))
	assert.Equal(t, 0, calls)
	assert.Equal(t, ListenerStats{Active: 0, Added: 1, Removed: 1}, p.ListenerStats())
}

func TestAddClickListener_UnknownTarget(t *testing.T) {
	p := New()
	_, err := p.AddClickListener(7, func(core.Coordinate) {})
	assert.ErrorIs(t, err, provider.ErrUnknownHandle)
}

func TestClickMarker_Detached(t *testing.T) {
	p := New()
	m := newMap(t, p)
	mk, err := p.CreateMarker(core.MarkerOptions{Map: m})
	require.NoError(t, err)

	calls := 0
	_, err = p.AddClickListener(mk, func(core.Coordinate) { calls++ })
	require.NoError(t, err)

	assert.Equal(t, 1, p.ClickMarker(mk))
	p.RemoveFromMap(mk)
	assert.Equal(t, 0, p.ClickMarker(mk))
	assert.Equal(t, 1, calls)
}

func TestPanToAndZoom(t *testing.T) {
	p := New()
	m := newMap(t, p)

	p.PanTo(m, core.Coordinate{Lat: 1, Lng: 1})
	p.SetZoom(m, 3)

	view, _ := p.Map(m)
	assert.Equal(t, core.Coordinate{Lat: 1, Lng: 1}, view.Center)
	assert.Equal(t, 3, view.Zoom)
}

func TestFailNext(t *testing.T) {
	p := New()
	m := newMap(t, p)

	boom := errors.New("boom")
	p.FailNext(OpCreateMarker, boom)

	_, err := p.CreateMarker(core.MarkerOptions{Map: m})
	assert.ErrorIs(t, err, boom)

	_, err = p.CreateMarker(core.MarkerOptions{Map: m})
	assert.NoError(t, err)
}

func TestTrace(t *testing.T) {
	p := New()
	m := newMap(t, p)
	l, err := p.AddClickListener(m, func(core.Coordinate) {})
	require.NoError(t, err)
	p.RemoveListener(l)

	ops := p.Trace()
	require.Len(t, ops, 3)
	assert.Equal(t, OpCreateMap, ops[0].Kind)
	assert.Equal(t, OpAddListener, ops[1].Kind)
	assert.Equal(t, l, ops[2].Listener)
	assert.Empty(t, p.Trace())
}

func TestScene(t *testing.T) {
	p := New()
	m := newMap(t, p)
	homeIcon := core.HomeIcon("")

	_, err := p.CreateMarker(core.MarkerOptions{Position: core.DefaultHome, Map: m, Icon: homeIcon})
	require.NoError(t, err)
	target := core.Coordinate{Lat: 35.3, Lng: -80.9}
	_, err = p.CreateMarker(core.MarkerOptions{Position: target, Map: m, Icon: core.PinIcon("")})
	require.NoError(t, err)
	_, err = p.CreateLine(core.LineOptions{
		Path:      [2]core.Coordinate{core.DefaultHome, target},
		ArrowIcon: core.SymbolForwardOpenArrow,
		Map:       m,
	})
	require.NoError(t, err)

	fc := p.Scene(m, homeIcon.URL)
	require.Len(t, fc.Features, 3)
	assert.Equal(t, "home", fc.Features[0].Properties["kind"])
	assert.Equal(t, "pin", fc.Features[1].Properties["kind"])
	assert.Equal(t, "connector", fc.Features[2].Properties["kind"])

	raw, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"FeatureCollection"`)
	assert.Contains(t, string(raw), `-80.843`)
}
