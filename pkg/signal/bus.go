// Package signal provides a named publish/subscribe bus with synchronous,
// in-order fan-out and typed payloads.
package signal

import (
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tickbus/tickbus/pkg/logger"
)

// Subscription identifies one registered handler. The zero value is never subscribed.
type Subscription struct {
	Signal string
	id     uint64
}

// ID returns the bus-local handler id.
func (s Subscription) ID() uint64 {
	return s.id
}

// Emission describes one dispatch, as seen by observers.
type Emission struct {
	Bus        string
	Signal     string
	Payload    any
	HasPayload bool
}

// SignalInfo is a point-in-time view of a registered signal.
type SignalInfo struct {
	Name        string `json:"name"`
	PayloadType string `json:"payload_type"`
	Subscribers int    `json:"subscribers"`
}

type handler struct {
	id     uint64
	invoke func(payload any, has bool)
}

// channel handler slices are never mutated in place; writers swap in a copy,
// so a slice read under the lock is a stable snapshot.
type channel struct {
	payload  reflect.Type
	handlers []*handler
}

type observer struct {
	id uint64
	fn func(Emission)
}

// Bus is a registry of named signals. All methods are safe for concurrent
// use; handlers run synchronously on the emitting goroutine with no lock held,
// so they may subscribe, unsubscribe or emit reentrantly.
type Bus struct {
	name   string
	logger logger.Logger

	mu        sync.RWMutex
	signals   map[string]*channel
	observers []*observer

	nextID atomic.Uint64
}

// Option configures a Bus.
type Option func(*Bus)

// WithName labels the bus in logs and metrics.
func WithName(name string) Option {
	return func(b *Bus) {
		if name != "" {
			b.name = name
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l logger.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		name:    "default",
		signals: make(map[string]*channel),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logger.Global()
	}
	b.logger = b.logger.With("component", "signal_bus", "bus", b.name)
	return b
}

// Name returns the bus label.
func (b *Bus) Name() string {
	return b.name
}

// CreateSignal registers an empty handler list for name. Re-creating an
// existing signal drops its handlers and its declared payload type.
func (b *Bus) CreateSignal(name string) {
	b.mu.Lock()
	_, existed := b.signals[name]
	b.signals[name] = &channel{}
	b.mu.Unlock()

	if existed {
		b.logger.Debug("signal re-created, handlers cleared", "signal", name)
	}
	metricsRecorder().SetSignalSubscribers(b.name, name, 0)
}

// HasSignal reports whether name has a handler list, even an empty one.
func (b *Bus) HasSignal(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.signals[name]
	return ok
}

// SubscribeFunc appends a handler that takes no payload, creating the signal
// if needed. It may be attached to a signal of any payload type.
// A nil fn is ignored and yields the zero Subscription.
func (b *Bus) SubscribeFunc(name string, fn func()) Subscription {
	if fn == nil {
		return Subscription{}
	}
	return b.add(name, func(any, bool) { fn() })
}

// Unsubscribe removes the handler. It reports false when the handler was
// not registered, including when it was already removed.
func (b *Bus) Unsubscribe(sub Subscription) bool {
	if sub.id == 0 {
		return false
	}

	b.mu.Lock()
	ch, ok := b.signals[sub.Signal]
	if !ok {
		b.mu.Unlock()
		return false
	}
	idx := -1
	for i, h := range ch.handlers {
		if h.id == sub.id {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return false
	}
	next := make([]*handler, 0, len(ch.handlers)-1)
	next = append(next, ch.handlers[:idx]...)
	next = append(next, ch.handlers[idx+1:]...)
	ch.handlers = next
	count := len(next)
	b.mu.Unlock()

	metricsRecorder().SetSignalSubscribers(b.name, sub.Signal, count)
	return true
}

// IsSubscribed reports whether the handler is currently registered.
func (b *Bus) IsSubscribed(sub Subscription) bool {
	if sub.id == 0 {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	ch, ok := b.signals[sub.Signal]
	if !ok {
		return false
	}
	for _, h := range ch.handlers {
		if h.id == sub.id {
			return true
		}
	}
	return false
}

// Emit invokes every handler of name in subscription order without a payload.
// Typed handlers receive the zero value of their payload type.
// Emitting an unknown signal does nothing.
func (b *Bus) Emit(name string) {
	b.dispatch(name, nil, false)
}

// Subscribers returns the number of handlers registered for name.
func (b *Bus) Subscribers(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if ch, ok := b.signals[name]; ok {
		return len(ch.handlers)
	}
	return 0
}

// Signals lists every registered signal sorted by name.
func (b *Bus) Signals() []SignalInfo {
	b.mu.RLock()
	out := make([]SignalInfo, 0, len(b.signals))
	for name, ch := range b.signals {
		out = append(out, SignalInfo{
			Name:        name,
			PayloadType: typeName(ch.payload),
			Subscribers: len(ch.handlers),
		})
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Observe registers fn to be called after the handlers of every emission on
// an existing signal. The returned func removes the observer.
func (b *Bus) Observe(fn func(Emission)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	id := b.nextID.Add(1)

	b.mu.Lock()
	next := make([]*observer, 0, len(b.observers)+1)
	next = append(next, b.observers...)
	b.observers = append(next, &observer{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			kept := make([]*observer, 0, len(b.observers))
			for _, o := range b.observers {
				if o.id != id {
					kept = append(kept, o)
				}
			}
			b.observers = kept
		})
	}
}

// Define declares the payload type of key's signal, creating the signal if
// needed. Existing handlers are kept.
func Define[T any](b *Bus, key Key[T]) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.declareLocked(key.name, reflect.TypeFor[T](), true)
	return err
}

// Subscribe appends a typed handler to key's signal, creating and declaring
// the signal if needed.
func Subscribe[T any](b *Bus, key Key[T], fn func(T)) (Subscription, error) {
	if fn == nil {
		return Subscription{}, ErrNilHandler
	}

	b.mu.Lock()
	if _, err := b.declareLocked(key.name, reflect.TypeFor[T](), true); err != nil {
		b.mu.Unlock()
		b.logger.Debug("typed subscribe rejected", "signal", key.name, "error", err)
		return Subscription{}, err
	}
	b.mu.Unlock()

	return b.add(key.name, func(payload any, has bool) {
		v, ok := payload.(T)
		if !has || !ok {
			var zero T
			v = zero
		}
		fn(v)
	}), nil
}

// Emit invokes every handler of key's signal with payload. Emitting an
// unknown signal is a no-op returning nil; emitting with a type other than
// the declared one returns a *PayloadMismatchError and calls no handler.
func Emit[T any](b *Bus, key Key[T], payload T) error {
	typ := reflect.TypeFor[T]()

	b.mu.RLock()
	ch, ok := b.signals[key.name]
	declared := ok && ch.payload == typ
	b.mu.RUnlock()

	if !ok {
		metricsRecorder().RecordSignalDropped(b.name, key.name, DropUnknownSignal)
		return nil
	}
	if !declared {
		b.mu.Lock()
		_, err := b.declareLocked(key.name, typ, false)
		b.mu.Unlock()
		if err != nil {
			metricsRecorder().RecordSignalDropped(b.name, key.name, DropPayloadMismatch)
			return err
		}
	}
	b.dispatch(key.name, payload, true)
	return nil
}

// declareLocked fixes the payload type of name on first typed use.
// With create false an unknown name yields a nil channel.
func (b *Bus) declareLocked(name string, typ reflect.Type, create bool) (*channel, error) {
	ch, ok := b.signals[name]
	if !ok {
		if !create {
			return nil, nil
		}
		ch = &channel{}
		b.signals[name] = ch
	}
	if ch.payload == nil {
		ch.payload = typ
		return ch, nil
	}
	if ch.payload != typ {
		return nil, &PayloadMismatchError{Signal: name, Declared: ch.payload, Got: typ}
	}
	return ch, nil
}

func (b *Bus) add(name string, invoke func(any, bool)) Subscription {
	h := &handler{id: b.nextID.Add(1), invoke: invoke}

	b.mu.Lock()
	ch, ok := b.signals[name]
	if !ok {
		ch = &channel{}
		b.signals[name] = ch
	}
	next := make([]*handler, 0, len(ch.handlers)+1)
	next = append(next, ch.handlers...)
	ch.handlers = append(next, h)
	count := len(ch.handlers)
	b.mu.Unlock()

	metricsRecorder().SetSignalSubscribers(b.name, name, count)
	return Subscription{Signal: name, id: h.id}
}

func (b *Bus) dispatch(name string, payload any, has bool) {
	b.mu.RLock()
	ch, ok := b.signals[name]
	if !ok {
		b.mu.RUnlock()
		metricsRecorder().RecordSignalDropped(b.name, name, DropUnknownSignal)
		return
	}
	handlers := ch.handlers
	observers := b.observers
	b.mu.RUnlock()

	for _, h := range handlers {
		h.invoke(payload, has)
	}
	metricsRecorder().RecordSignalEmitted(b.name, name, len(handlers))

	if len(observers) == 0 {
		return
	}
	em := Emission{Bus: b.name, Signal: name, Payload: payload, HasPayload: has}
	for _, o := range observers {
		o.fn(em)
	}
}
