// Package dispatcher routes recording records to their handlers. A
// handler runs inline on the caller's goroutine unless it is registered
// with a queue, in which case a dedicated goroutine drains it in order.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrQueueFull      = errors.New("queue full")
	ErrClosed         = errors.New("dispatcher closed")
)

// Event carries one typed record to the handler registered for Command.
type Event struct {
	Command string
	Payload any

	queued time.Time
}

type HandlerFunc func(Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*routeConfig)

type routeConfig struct {
	queueSize int
	blocking  bool
	logged    bool
}

// Buffered gives the command its own queue of the given size.
func Buffered(size int) Option {
	return func(c *routeConfig) { c.queueSize = size }
}

// Blocking makes Dispatch wait for room in a full queue instead of
// dropping the event.
func Blocking() Option {
	return func(c *routeConfig) { c.blocking = true }
}

// Logged logs every event at debug level and every failure at error level.
func Logged() Option {
	return func(c *routeConfig) { c.logged = true }
}

type route struct {
	handle   HandlerFunc
	queue    chan Event
	blocking bool
}

type Dispatcher struct {
	logger Logger
	inst   *instruments

	mu     sync.RWMutex
	routes map[string]*route
	closed bool

	pending atomic.Int64
	drains  sync.WaitGroup
}

// New builds a dispatcher reporting to meter. A nil meter disables metrics.
func New(logger Logger, meter metric.Meter) (*Dispatcher, error) {
	d := &Dispatcher{
		logger: logger,
		routes: make(map[string]*route),
	}
	inst, err := newInstruments(meter, d.queueLengths)
	if err != nil {
		return nil, err
	}
	d.inst = inst
	return d, nil
}

// Register installs h for command, replacing any earlier handler.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var cfg routeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logged {
		h = d.logged(command, h)
	}

	r := &route{handle: h, blocking: cfg.blocking}
	if cfg.queueSize > 0 {
		r.queue = make(chan Event, cfg.queueSize)
		d.drains.Add(1)
		go d.drain(command, r)
	}

	d.mu.Lock()
	d.routes[command] = r
	d.mu.Unlock()
}

// Dispatch runs or enqueues e. Queued events report only enqueue errors;
// handler failures are logged by the drain goroutine.
func (d *Dispatcher) Dispatch(e Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	r, ok := d.routes[e.Command]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if r.queue == nil {
		err := r.handle(e)
		d.inst.processed(e.Command)
		return err
	}

	e.queued = time.Now()
	d.pending.Add(1)
	if r.blocking {
		r.queue <- e
		return nil
	}
	select {
	case r.queue <- e:
		return nil
	default:
		d.pending.Add(-1)
		d.inst.dropped(e.Command)
		return fmt.Errorf("%w: %s", ErrQueueFull, e.Command)
	}
}

func (d *Dispatcher) drain(command string, r *route) {
	defer d.drains.Done()
	for e := range r.queue {
		d.inst.waited(command, time.Since(e.queued))
		if err := r.handle(e); err != nil {
			d.logger.Error("queued handler failed", "command", command, "error", err)
		}
		d.pending.Add(-1)
		d.inst.processed(command)
	}
}

func (d *Dispatcher) logged(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "payload", fmt.Sprintf("%T", e.Payload))
		if err := h(e); err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
			return err
		}
		d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		return nil
	}
}

// Commands lists the registered commands in order.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.routes))
	for cmd := range d.routes {
		out = append(out, cmd)
	}
	slices.Sort(out)
	return out
}

func (d *Dispatcher) Handles(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.routes[command]
	return ok
}

// Pending counts queued events not yet handled.
func (d *Dispatcher) Pending() int64 {
	return d.pending.Load()
}

func (d *Dispatcher) queueLengths(observe func(command string, n int)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for cmd, r := range d.routes {
		if r.queue != nil {
			observe(cmd, len(r.queue))
		}
	}
}

// Wait blocks until every queue is drained or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for d.Pending() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close rejects further events, lets the queues drain and stops their
// goroutines.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, r := range d.routes {
		if r.queue != nil {
			close(r.queue)
		}
	}
	d.mu.Unlock()
	d.drains.Wait()
}
