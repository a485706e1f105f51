package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homepin/mapsession/internal/config"
	"github.com/homepin/mapsession/internal/dispatcher"
	"github.com/homepin/mapsession/internal/logging"
	"github.com/homepin/mapsession/internal/session"
)

type buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestApp(t *testing.T, overrides map[string]any) (*app, *buffer) {
	t.Helper()
	t.Cleanup(viper.Reset)

	require.ErrorIs(t, config.Load(t.TempDir()), config.ErrNotFound)
	viper.Set("renderer.type", "memory")
	viper.Set("geocode.provider", "static")
	viper.Set("cache.type", "memory")
	for k, v := range overrides {
		viper.Set(k, v)
	}

	out := &buffer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(logger, zerolog.Nop(), out)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.dispatcher.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		a.Close()
	})

	require.NoError(t, a.start())
	return a, out
}

func dispatch(t *testing.T, a *app, line string) (any, error) {
	t.Helper()
	e, ok := parseCommand(line)
	require.True(t, ok, line)
	return a.dispatcher.Dispatch(e)
}

func status(t *testing.T, a *app) session.State {
	t.Helper()
	res, err := dispatch(t, a, "status")
	require.NoError(t, err)
	var st session.State
	require.NoError(t, json.Unmarshal([]byte(res.(string)), &st))
	return st
}

func waitMarkers(t *testing.T, a *app, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(status(t, a).Markers) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestParseCommand(t *testing.T) {
	e, ok := parseCommand("  CLICK 35.3   -80.9 ")
	require.True(t, ok)
	assert.Equal(t, "click", e.Command)
	assert.Equal(t, []string{"35.3", "-80.9"}, e.Args)

	e, ok = parseCommand(`scene "out dir/scene.json"`)
	require.True(t, ok)
	assert.Equal(t, []string{"out dir/scene.json"}, e.Args)

	_, ok = parseCommand("   ")
	assert.False(t, ok)
	_, ok = parseCommand("# comment")
	assert.False(t, ok)
}

func TestApp_StartsReady(t *testing.T) {
	a, _ := newTestApp(t, nil)

	st := status(t, a)
	assert.Equal(t, "ready", st.Phase)
	require.NotNil(t, st.Home)
	assert.Equal(t, 35.22, st.Home.Position.Lat)
	assert.Equal(t, session.DistanceUnset, st.DistanceKm)
}

func TestApp_ClickMarkerHome(t *testing.T) {
	a, out := newTestApp(t, nil)

	res, err := dispatch(t, a, "click 35.30 -80.90")
	require.NoError(t, err)
	assert.Contains(t, res, "1 listeners")
	waitMarkers(t, a, 1)

	res, err = dispatch(t, a, "marker 1")
	require.NoError(t, err)
	assert.Equal(t, "marker 1: Dropped pin 35.30000,-80.90000", res)
	assert.Contains(t, out.String(), "distance 11 km")

	st := status(t, a)
	assert.Equal(t, 11, st.DistanceKm)
	require.NotNil(t, st.ActiveLine)

	_, err = dispatch(t, a, "home")
	require.NoError(t, err)
}

func TestApp_CommandErrors(t *testing.T) {
	a, _ := newTestApp(t, nil)

	_, err := dispatch(t, a, "click 100 0")
	assert.Error(t, err)
	_, err = dispatch(t, a, "click")
	assert.ErrorIs(t, err, errUsage)
	_, err = dispatch(t, a, "marker 1")
	assert.ErrorContains(t, err, "no marker 1")
	_, err = dispatch(t, a, "marker x")
	assert.ErrorIs(t, err, errUsage)
	_, err = dispatch(t, a, "teleport")
	assert.ErrorIs(t, err, dispatcher.ErrUnknownCommand)
}

func TestApp_GeocodeFailureReported(t *testing.T) {
	a, out := newTestApp(t, map[string]any{"geocode.staticStatus": "ZERO_RESULTS"})

	_, err := dispatch(t, a, "click 35.30 -80.90")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "no marker:")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, status(t, a).Markers)
}

func TestApp_UnmountThenInit(t *testing.T) {
	a, _ := newTestApp(t, nil)

	res, err := dispatch(t, a, "unmount")
	require.NoError(t, err)
	assert.Equal(t, "unmounted", res)
	assert.Equal(t, "unmounted", status(t, a).Phase)

	_, err = dispatch(t, a, "init")
	assert.ErrorIs(t, err, session.ErrUnmounted)

	_, err = dispatch(t, a, "click 35.3 -80.9")
	assert.ErrorContains(t, err, "map not initialized")
}

func TestApp_Scene(t *testing.T) {
	a, out := newTestApp(t, nil)

	_, err := dispatch(t, a, "click 35.30 -80.90")
	require.NoError(t, err)
	waitMarkers(t, a, 1)
	_, err = dispatch(t, a, "marker 1")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "scene.geojson")
	res, err := dispatch(t, a, "scene "+path)
	require.NoError(t, err)
	assert.Equal(t, "queued", res)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "scene written")
	}, 2*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	kinds := map[string]int{}
	for _, f := range fc.Features {
		kinds[f.Properties["kind"].(string)]++
	}
	assert.Equal(t, map[string]int{"home": 1, "pin": 1, "connector": 1}, kinds)
}

func TestApp_CacheStatsAndPurge(t *testing.T) {
	for _, tc := range []struct {
		name      string
		overrides map[string]any
	}{
		{"memory", nil},
		{"sqlite", map[string]any{
			"cache.type":        "sqlite",
			"cache.sqlite.path": filepath.Join(t.TempDir(), "geocode.db"),
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a, _ := newTestApp(t, tc.overrides)

			res, err := dispatch(t, a, "cache")
			require.NoError(t, err)
			assert.Equal(t, "cache "+tc.name+": 0 entries", res)

			_, err = dispatch(t, a, "click 35.30 -80.90")
			require.NoError(t, err)
			waitMarkers(t, a, 1)

			res, err = dispatch(t, a, "cache stats")
			require.NoError(t, err)
			assert.Equal(t, "cache "+tc.name+": 1 entries", res)

			res, err = dispatch(t, a, "cache PURGE")
			require.NoError(t, err)
			assert.Equal(t, "cache "+tc.name+": purged 1 entries", res)

			res, err = dispatch(t, a, "cache stats")
			require.NoError(t, err)
			assert.Equal(t, "cache "+tc.name+": 0 entries", res)

			_, err = dispatch(t, a, "cache flush")
			assert.ErrorIs(t, err, errUsage)
		})
	}
}

func TestApp_CacheDisabled(t *testing.T) {
	a, _ := newTestApp(t, map[string]any{"cache.type": "none"})

	_, err := dispatch(t, a, "cache stats")
	assert.EqualError(t, err, "geocode cache disabled")
}

func TestApp_LogAttrsFollowSession(t *testing.T) {
	a, _ := newTestApp(t, nil)

	var logs buffer
	m := logging.NewSlogManager()
	m.Setup(&logs, "info", nil)
	m.SetContext(a.logAttrs)

	require.Equal(t, "ready", status(t, a).Phase)
	m.Logger().Info("before click")
	_, err := dispatch(t, a, "click 35.30 -80.90")
	require.NoError(t, err)
	waitMarkers(t, a, 1)
	m.Logger().Info("after click")
	_, err = dispatch(t, a, "unmount")
	require.NoError(t, err)
	m.Logger().Info("after unmount")

	session := "session=" + a.controller.ID()
	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], session+" phase=ready markers=0")
	assert.Contains(t, lines[2], session+" phase=ready markers=1")
	assert.Contains(t, lines[3], session+" phase=unmounted markers=0")
}

func TestApp_ReadCommands(t *testing.T) {
	a, out := newTestApp(t, nil)

	in := strings.NewReader("# script\nstatus\nteleport\nquit\nunmount\n")
	require.NoError(t, a.readCommands(context.Background(), in))

	assert.Contains(t, out.String(), `"phase": "ready"`)
	assert.Contains(t, out.String(), "error: unknown command: teleport")
	assert.NotContains(t, out.String(), "unmounted")
}

func TestNewApp_BadConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.ErrorIs(t, config.Load(t.TempDir()), config.ErrNotFound)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for key, val := range map[string]string{
		"renderer.type":    "canvas",
		"geocode.provider": "bing",
		"cache.type":       "redis",
		"session.rebind":   "sometimes",
	} {
		t.Run(key, func(t *testing.T) {
			viper.Set("renderer.type", "memory")
			viper.Set("geocode.provider", "static")
			viper.Set("cache.type", "memory")
			viper.Set("session.rebind", "all")
			viper.Set(key, val)

			_, err := newApp(logger, zerolog.Nop(), io.Discard)
			assert.Error(t, err)
		})
	}
}
