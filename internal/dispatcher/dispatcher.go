package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrClosed is returned by Schedule and loop handlers once the dispatcher is closed.
var ErrClosed = errors.New("dispatcher closed")

// ErrUnknownCommand is returned by Dispatch when no handler is registered.
var ErrUnknownCommand = errors.New("unknown command")

const loopQueue = "loop"

// Event represents a host command such as a click or a status request.
type Event struct {
	Command   string
	Args      []string
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
	onLoop     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// OnLoop runs the handler on the serial loop and waits for its result.
// Handlers that touch the session controller must use it.
func OnLoop() Option {
	return func(c *config) {
		c.onLoop = true
	}
}

// Dispatcher routes events to registered handlers and owns the serial loop
// on which all session state is mutated.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger

	loop      chan func()
	done      chan struct{}
	closeOnce sync.Once

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter

	// Queue lengths for gauge callback
	mu      sync.RWMutex
	lengths map[string]func() int
}

// New creates a new Dispatcher whose loop holds up to queueSize pending functions.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger, queueSize int) (*Dispatcher, error) {
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		lengths:  make(map[string]func() int),
		logger:   logger,
		loop:     make(chan func(), queueSize),
		done:     make(chan struct{}),
	}
	d.lengths[loopQueue] = func() int { return len(d.loop) }

	// Get meter from global OTel provider (returns no-op if not configured)
	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for name, length := range d.lengths {
				o.ObserveInt64(d.queueSize, int64(length()),
					metric.WithAttributes(attribute.String("command", name)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given command with optional configuration.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.onLoop {
		handler = d.withLoop(handler)
	}

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(command, cfg.bufferSize, cfg.blocking, handler)
	}

	if cfg.logged {
		handler = d.withLogging(command, handler)
	}

	d.handlers[command] = handler
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	h, ok := d.handlers[e.Command]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(e)
}

// Schedule queues fn on the serial loop. It blocks while the loop queue is
// full and returns ErrClosed once the dispatcher is closed.
func (d *Dispatcher) Schedule(fn func()) error {
	select {
	case <-d.done:
		return ErrClosed
	default:
	}
	select {
	case d.loop <- fn:
		return nil
	case <-d.done:
		return ErrClosed
	}
}

// Run executes scheduled functions one at a time until ctx is cancelled or
// Close is called. Only one goroutine may call Run.
func (d *Dispatcher) Run(ctx context.Context) error {
	loopAttr := metric.WithAttributes(attribute.String("command", loopQueue))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.done:
			return nil
		case fn := <-d.loop:
			fn()
			d.processed.Add(ctx, 1, loopAttr)
		}
	}
}

// Close stops the loop. Pending functions are discarded.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
	})
}

// Done is closed when the dispatcher is closed.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) withLoop(h HandlerFunc) HandlerFunc {
	type reply struct {
		result any
		err    error
	}
	return func(e Event) (any, error) {
		ch := make(chan reply, 1)
		err := d.Schedule(func() {
			result, err := h(e)
			ch <- reply{result, err}
		})
		if err != nil {
			return nil, err
		}
		select {
		case r := <-ch:
			return r.result, r.err
		case <-d.done:
			return nil, ErrClosed
		}
	}
}

func (d *Dispatcher) withBuffer(command string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)

	d.mu.Lock()
	d.lengths[command] = func() int { return len(buffer) }
	d.mu.Unlock()

	cmdAttr := attribute.String("command", command)

	go func() {
		for e := range buffer {
			if _, err := h(e); err != nil {
				d.logger.Error("queued event failed", "command", command, "error", err)
			}
			d.processed.Add(context.Background(), 1, metric.WithAttributes(cmdAttr))
		}
	}()

	if blocking {
		return func(e Event) (any, error) {
			buffer <- e
			return "queued", nil
		}
	}

	return func(e Event) (any, error) {
		select {
		case buffer <- e:
			return "queued", nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(cmdAttr))
			return nil, fmt.Errorf("queue full: %s", command)
		}
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "args", len(e.Args))

		result, err := h(e)

		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		}

		return result, err
	}
}
