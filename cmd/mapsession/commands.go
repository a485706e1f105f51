package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/homepin/mapsession/internal/dispatcher"
	"github.com/homepin/mapsession/internal/geo"
	"github.com/homepin/mapsession/internal/util"
	"github.com/homepin/mapsession/pkg/core"
)

// errQuit is returned by the quit command to stop the command loop.
var errQuit = errors.New("quit")

var errUsage = errors.New("usage")

func registerCommands(a *app) {
	d := a.dispatcher

	// Everything that reads or changes the session runs on the loop.
	d.Register("click", func(e dispatcher.Event) (any, error) {
		if len(e.Args) != 2 && len(e.Args) != 1 {
			return nil, fmt.Errorf("%w: click <lat> <lng>", errUsage)
		}
		at, err := geo.ParseCoordinate(e.Args...)
		if err != nil {
			return nil, err
		}
		m := a.controller.MapHandle()
		if m == 0 {
			return nil, fmt.Errorf("map not initialized (phase %s)", a.controller.Phase())
		}
		n := a.renderer.Click(m, at)
		return fmt.Sprintf("clicked %s (%d listeners)", at, n), nil
	}, dispatcher.OnLoop(), dispatcher.Logged())

	d.Register("marker", func(e dispatcher.Event) (any, error) {
		if len(e.Args) != 1 {
			return nil, fmt.Errorf("%w: marker <n>", errUsage)
		}
		n, err := strconv.Atoi(e.Args[0])
		if err != nil {
			return nil, fmt.Errorf("%w: marker <n>", errUsage)
		}
		markers := a.controller.Markers()
		if n < 1 || n > len(markers) {
			return nil, fmt.Errorf("no marker %d (have %d)", n, len(markers))
		}
		pm := markers[n-1]
		a.renderer.ClickMarker(pm.Handle)
		return fmt.Sprintf("marker %d: %s", n, pm.Address), nil
	}, dispatcher.OnLoop(), dispatcher.Logged())

	d.Register("home", func(e dispatcher.Event) (any, error) {
		h := a.controller.HomeMarker()
		if h == 0 || a.renderer.ClickMarker(h) == 0 {
			return nil, errors.New("home marker not placed")
		}
		return fmt.Sprintf("home %s zoom %d", a.mapCfg.Home, a.mapCfg.Zoom), nil
	}, dispatcher.OnLoop(), dispatcher.Logged())

	d.Register("status", func(e dispatcher.Event) (any, error) {
		b, err := json.MarshalIndent(a.controller.State(), "", "  ")
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}, dispatcher.OnLoop())

	d.Register("init", func(e dispatcher.Event) (any, error) {
		if err := a.controller.Initialize(); err != nil {
			return nil, err
		}
		return "ready", nil
	}, dispatcher.OnLoop(), dispatcher.Logged())

	d.Register("unmount", func(e dispatcher.Event) (any, error) {
		a.controller.Unmount()
		return "unmounted", nil
	}, dispatcher.OnLoop(), dispatcher.Logged())

	// The map handle is read on the loop; the file is written off it.
	d.Register("scene", func(e dispatcher.Event) (any, error) {
		if len(e.Args) != 1 {
			return nil, fmt.Errorf("%w: scene <file>", errUsage)
		}
		return nil, a.writeScene(e.Args[0])
	}, dispatcher.Buffered(4), dispatcher.Blocking(), dispatcher.Logged())

	// Cache backends are safe for concurrent use, so this stays off the loop.
	d.Register("cache", func(e dispatcher.Event) (any, error) {
		if a.cache == nil {
			return nil, errors.New("geocode cache disabled")
		}
		action := "stats"
		if len(e.Args) > 0 {
			action = strings.ToLower(e.Args[0])
		}
		n, err := a.cache.Count()
		if err != nil {
			return nil, fmt.Errorf("cache %s: %w", action, err)
		}
		switch action {
		case "stats":
			return fmt.Sprintf("cache %s: %d entries", a.cacheType, n), nil
		case "purge":
			if err := a.cache.Purge(); err != nil {
				return nil, fmt.Errorf("cache purge: %w", err)
			}
			return fmt.Sprintf("cache %s: purged %d entries", a.cacheType, n), nil
		default:
			return nil, fmt.Errorf("%w: cache [stats|purge]", errUsage)
		}
	}, dispatcher.Logged())

	d.Register("quit", func(e dispatcher.Event) (any, error) {
		return nil, errQuit
	})
}

func (a *app) writeScene(path string) error {
	var m core.Handle
	done := make(chan struct{})
	if err := a.dispatcher.Schedule(func() {
		m = a.controller.MapHandle()
		close(done)
	}); err != nil {
		return err
	}
	select {
	case <-done:
	case <-a.dispatcher.Done():
		return dispatcher.ErrClosed
	}
	if m == 0 {
		return errors.New("map not initialized")
	}

	fc := a.renderer.Scene(m, core.HomeIcon(a.mapCfg.AssetBaseURL).URL)
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("scene: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("scene: %w", err)
	}
	fmt.Fprintf(a.out, "scene written to %s (%d features)\n", path, len(fc.Features))
	return nil
}

// parseCommand splits a host command line into an event.
func parseCommand(line string) (dispatcher.Event, bool) {
	if strings.HasPrefix(strings.TrimSpace(line), "#") {
		return dispatcher.Event{}, false
	}
	fields := util.SplitArgs(line)
	if len(fields) == 0 {
		return dispatcher.Event{}, false
	}
	return dispatcher.Event{Command: strings.ToLower(fields[0]), Args: fields[1:]}, true
}

// readCommands dispatches one command per input line until EOF, quit or ctx is done.
func (a *app) readCommands(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e, ok := parseCommand(sc.Text())
		if !ok {
			continue
		}
		result, err := a.dispatcher.Dispatch(e)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			fmt.Fprintf(a.out, "error: %v\n", err)
		case result != nil:
			fmt.Fprintln(a.out, result)
		}
	}
	return sc.Err()
}
