package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.log("DEBUG", msg, keysAndValues)
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.log("INFO", msg, keysAndValues)
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.log("ERROR", msg, keysAndValues)
}

func (l *testLogger) log(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

func (l *testLogger) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	t.Helper()
	logger := &testLogger{}

	d, err := New(logger, 16)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	return d, logger
}

func runLoop(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register("status", func(e Event) (any, error) {
		got = e
		return "result", nil
	})

	result, err := d.Dispatch(Event{Command: "status", Args: []string{"arg1"}})
	require.NoError(t, err)
	assert.Equal(t, "result", result)
	assert.Equal(t, []string{"arg1"}, got.Args)
	assert.False(t, got.Timestamp.IsZero())
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Event{Command: "teleport"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.ErrorContains(t, err, "teleport")
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	d.Register("scene", func(e Event) (any, error) {
		processed.Add(1)
		wg.Done()
		return nil, nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(Event{Command: "scene"})
		require.NoError(t, err)
		assert.Equal(t, "queued", result)
	}

	wg.Wait()
	assert.Equal(t, int32(3), processed.Load())
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register("scene", func(e Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(2))
	defer close(block)

	_, err := d.Dispatch(Event{Command: "scene"})
	require.NoError(t, err)
	<-started

	_, err = d.Dispatch(Event{Command: "scene"})
	require.NoError(t, err)
	_, err = d.Dispatch(Event{Command: "scene"})
	require.NoError(t, err)

	_, err = d.Dispatch(Event{Command: "scene"})
	assert.ErrorContains(t, err, "queue full")
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register("scene", func(e Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(1), Blocking())

	_, _ = d.Dispatch(Event{Command: "scene"})
	<-started
	_, _ = d.Dispatch(Event{Command: "scene"})

	done := make(chan struct{})
	go func() {
		_, _ = d.Dispatch(Event{Command: "scene"})
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-done
}

func TestDispatcher_BufferedErrorIsLogged(t *testing.T) {
	d, logger := newTestDispatcher(t)

	var wg sync.WaitGroup
	wg.Add(1)
	d.Register("scene", func(e Event) (any, error) {
		defer wg.Done()
		return nil, errors.New("disk full")
	}, Buffered(1))

	_, err := d.Dispatch(Event{Command: "scene"})
	require.NoError(t, err)
	wg.Wait()

	assert.Eventually(t, func() bool {
		for _, m := range logger.snapshot() {
			if strings.HasPrefix(m, "ERROR: queued event failed") {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("home", func(e Event) (any, error) {
		return "ok", nil
	}, Logged())

	_, err := d.Dispatch(Event{Command: "home", Args: []string{"a", "b"}})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(logger.snapshot()), 2)
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("marker", func(e Event) (any, error) {
		return nil, fmt.Errorf("test error")
	}, Logged())

	_, err := d.Dispatch(Event{Command: "marker"})
	require.Error(t, err)

	hasError := false
	for _, msg := range logger.snapshot() {
		if strings.HasPrefix(msg, "ERROR") {
			hasError = true
			break
		}
	}
	assert.True(t, hasError, "expected error log message")
}

func TestDispatcher_CombinedOptions(t *testing.T) {
	d, logger := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)

	d.Register("scene", func(e Event) (any, error) {
		processed.Add(1)
		wg.Done()
		return "done", nil
	}, Buffered(100), Logged())

	result, err := d.Dispatch(Event{Command: "scene"})
	require.NoError(t, err)
	assert.Equal(t, "queued", result)

	wg.Wait()
	assert.Equal(t, int32(1), processed.Load())
	assert.GreaterOrEqual(t, len(logger.snapshot()), 2)
}

func TestSchedule_RunsInOrderOnOneGoroutine(t *testing.T) {
	d, _ := newTestDispatcher(t)
	runLoop(t, d)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	wg.Add(10)
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, d.Schedule(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}))
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestSchedule_AfterClose(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Close()
	d.Close()

	assert.ErrorIs(t, d.Schedule(func() {}), ErrClosed)
	select {
	case <-d.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestRun_StopsOnClose(t *testing.T) {
	d, _ := newTestDispatcher(t)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(context.Background()) }()

	d.Close()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestRun_StopsOnContext(t *testing.T) {
	d, _ := newTestDispatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Run(ctx), context.Canceled)
}

func TestOnLoop_ReturnsHandlerResult(t *testing.T) {
	d, _ := newTestDispatcher(t)
	runLoop(t, d)

	state := 0
	d.Register("click", func(e Event) (any, error) {
		state++
		return state, nil
	}, OnLoop(), Logged())

	for i := 1; i <= 3; i++ {
		result, err := d.Dispatch(Event{Command: "click"})
		require.NoError(t, err)
		assert.Equal(t, i, result)
	}
}

func TestOnLoop_ClosedDispatcher(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register("init", func(e Event) (any, error) { return nil, nil }, OnLoop())
	d.Close()

	_, err := d.Dispatch(Event{Command: "init"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOnLoop_CloseWhileWaiting(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register("status", func(e Event) (any, error) { return "never", nil }, OnLoop())

	errCh := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(Event{Command: "status"})
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	d.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("dispatch did not return after Close")
	}
}
