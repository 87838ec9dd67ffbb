// Package hub provides the process-wide context shared by every component:
// one signal bus, one timer registry and a set of named schedulers.
//
// A Hub is created once at startup and passed down explicitly. Work that
// must run on the frame goroutine can be queued with Post and is executed
// by Drain, which the frame driver calls once per frame.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tickbus/tickbus/pkg/logger"
	"github.com/tickbus/tickbus/pkg/signal"
	"github.com/tickbus/tickbus/pkg/timer"
)

// SignalShutdown is emitted on the hub bus when Shutdown starts.
const SignalShutdown = "hub.shutdown"

var (
	// ErrHubClosed is returned by Post after Shutdown.
	ErrHubClosed = errors.New("hub is closed")
	// ErrQueueFull is returned by Post when the command queue is full.
	ErrQueueFull = errors.New("hub command queue is full")
)

// Hub owns the shared bus, the timer registry and the schedulers.
type Hub struct {
	bus      *signal.Bus
	registry *timer.Registry
	logger   logger.Logger

	busName   string
	queueSize int

	mu         sync.RWMutex
	schedulers []*timer.Scheduler
	byName     map[string]*timer.Scheduler

	queue  chan func()
	closed atomic.Bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger; the bus and schedulers inherit it.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithBusName labels the shared bus.
func WithBusName(name string) Option {
	return func(h *Hub) {
		if name != "" {
			h.busName = name
		}
	}
}

// WithQueueSize sets the capacity of the Post queue.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// New creates a hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		busName:   "global",
		queueSize: 256,
		byName:    make(map[string]*timer.Scheduler),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Global()
	}
	h.bus = signal.NewBus(signal.WithName(h.busName), signal.WithLogger(h.logger))
	h.registry = timer.NewRegistry()
	h.queue = make(chan func(), h.queueSize)
	h.logger = h.logger.With("component", "hub")
	return h
}

// Bus returns the shared bus.
func (h *Hub) Bus() *signal.Bus { return h.bus }

// Timers returns the registry of every timer created through the hub.
func (h *Hub) Timers() *timer.Registry { return h.registry }

// Scheduler returns the named scheduler, creating it on first use.
func (h *Hub) Scheduler(name string) *timer.Scheduler {
	h.mu.RLock()
	s, ok := h.byName[name]
	h.mu.RUnlock()
	if ok {
		return s
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.byName[name]; ok {
		return s
	}
	s = timer.NewScheduler(h.registry,
		timer.WithSchedulerName(name),
		timer.WithBus(h.bus),
		timer.WithLogger(h.logger),
	)
	h.byName[name] = s
	h.schedulers = append(h.schedulers, s)
	return s
}

// Schedulers returns the schedulers in creation order.
func (h *Hub) Schedulers() []*timer.Scheduler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*timer.Scheduler, len(h.schedulers))
	copy(out, h.schedulers)
	return out
}

// Broadcast emits name on the shared bus without a payload.
func (h *Hub) Broadcast(name string) {
	h.bus.Emit(name)
}

// BroadcastValue emits a typed payload on the shared bus.
func BroadcastValue[T any](h *Hub, key signal.Key[T], payload T) error {
	return signal.Emit(h.bus, key, payload)
}

// Tick advances lane by dt on every scheduler, in creation order.
func (h *Hub) Tick(lane timer.Lane, dt time.Duration) {
	for _, s := range h.Schedulers() {
		s.Tick(lane, dt)
	}
}

// ClearInstance clears t wherever it lives.
func (h *Hub) ClearInstance(t *timer.Timer) bool {
	return h.registry.ClearInstance(t)
}

// Post queues fn to run on the frame goroutine during the next Drain.
func (h *Hub) Post(fn func()) error {
	if fn == nil {
		return nil
	}
	if h.closed.Load() {
		return ErrHubClosed
	}
	select {
	case h.queue <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Call queues fn and waits until it has run on the frame goroutine.
func (h *Hub) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := h.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for hub call: %w", ctx.Err())
	}
}

// Drain runs every queued command and returns how many ran. Commands posted
// while draining run in the same call.
func (h *Hub) Drain() int {
	n := 0
	for {
		select {
		case fn := <-h.queue:
			fn()
			n++
		default:
			return n
		}
	}
}

// Shutdown emits SignalShutdown, runs pending commands, closes every
// scheduler and drains the registry. Later calls are no-ops.
func (h *Hub) Shutdown(ctx context.Context) error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	h.logger.Info("hub shutting down")
	h.bus.Emit(SignalShutdown)

	pending := h.Drain()

	cleared := 0
	for _, s := range h.Schedulers() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("hub shutdown: %w", err)
		}
		cleared += s.Close()
	}
	cleared += h.registry.Drain()

	h.logger.Info("hub stopped", "pending_commands", pending, "timers_cleared", cleared)
	return nil
}

// Closed reports whether Shutdown has been called.
func (h *Hub) Closed() bool {
	return h.closed.Load()
}
