// Package relay bridges selected bus signals between processes over Redis
// Pub/Sub. Outbound emissions are published from a worker pool; inbound
// envelopes are buffered and re-emitted on the frame goroutine by Drain.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tickbus/tickbus/pkg/logger"
	"github.com/tickbus/tickbus/pkg/signal"
)

const (
	defaultChannelPrefix  = "tickbus:signal:"
	defaultBufferSize     = 256
	defaultWorkers        = 4
	defaultPublishTimeout = 2 * time.Second
)

var (
	ErrRelayClosed   = errors.New("relay is closed")
	ErrRelayStarted  = errors.New("relay already started")
	ErrSignalOverlap = errors.New("signal is both outbound and inbound")
)

// Config selects which signals cross the process boundary.
type Config struct {
	Source         string
	ChannelPrefix  string
	Outbound       []string
	Inbound        []string
	BufferSize     int
	Workers        int
	PublishTimeout time.Duration
}

// Validate reports configuration errors. Outbound and Inbound must be disjoint.
func (c Config) Validate() error {
	out := make(map[string]struct{}, len(c.Outbound))
	for _, name := range c.Outbound {
		if name == "" {
			return fmt.Errorf("outbound signal name cannot be empty")
		}
		out[name] = struct{}{}
	}
	for _, name := range c.Inbound {
		if name == "" {
			return fmt.Errorf("inbound signal name cannot be empty")
		}
		if _, ok := out[name]; ok {
			return fmt.Errorf("%w: %s", ErrSignalOverlap, name)
		}
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer size must be >= 0")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Source == "" {
		c.Source = uuid.NewString()
	}
	if c.ChannelPrefix == "" {
		c.ChannelPrefix = defaultChannelPrefix
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = defaultPublishTimeout
	}
	return c
}

// Relay is a Redis-backed bridge for one bus.
type Relay struct {
	client redis.UniversalClient
	bus    *signal.Bus
	cfg    Config
	logger logger.Logger

	outbound map[string]struct{}
	inbound  map[string]struct{}
	inbox    chan *Envelope

	mu        sync.Mutex
	started   bool
	closed    atomic.Bool
	cancel    context.CancelFunc
	unobserve func()
	pool      *ants.Pool
	pubsub    *redis.PubSub
	wg        sync.WaitGroup
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the relay logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

// New validates cfg and returns an unstarted relay.
func New(client redis.UniversalClient, bus *signal.Bus, cfg Config, opts ...Option) (*Relay, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if bus == nil {
		return nil, fmt.Errorf("bus cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	r := &Relay{
		client:   client,
		bus:      bus,
		cfg:      cfg,
		outbound: make(map[string]struct{}, len(cfg.Outbound)),
		inbound:  make(map[string]struct{}, len(cfg.Inbound)),
		inbox:    make(chan *Envelope, cfg.BufferSize),
	}
	for _, name := range cfg.Outbound {
		r.outbound[name] = struct{}{}
	}
	for _, name := range cfg.Inbound {
		r.inbound[name] = struct{}{}
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Global()
	}
	r.logger = r.logger.With("component", "relay", "source", cfg.Source)
	return r, nil
}

// Source returns the identity stamped on outbound envelopes.
func (r *Relay) Source() string {
	return r.cfg.Source
}

// Channel returns the Redis channel used for the named signal.
func (r *Relay) Channel(name string) string {
	return r.cfg.ChannelPrefix + name
}

// Start declares the inbound signals on the bus, subscribes to their
// channels and begins publishing outbound emissions. It returns once the
// subscriptions are confirmed by Redis.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return ErrRelayClosed
	}
	if r.started {
		return ErrRelayStarted
	}

	for _, name := range r.cfg.Inbound {
		if err := signal.Define(r.bus, Key(name)); err != nil {
			return fmt.Errorf("declare inbound signal %s: %w", name, err)
		}
	}

	pool, err := ants.NewPool(r.cfg.Workers,
		ants.WithPreAlloc(true),
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			r.logger.Error("relay publish panicked", "panic", p)
		}),
	)
	if err != nil {
		return fmt.Errorf("create publish pool: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	if len(r.cfg.Inbound) > 0 {
		channels := make([]string, 0, len(r.cfg.Inbound))
		for _, name := range r.cfg.Inbound {
			channels = append(channels, r.Channel(name))
		}
		pubsub := r.client.Subscribe(ctx, channels...)
		if err := r.awaitSubscriptions(ctx, pubsub, len(channels)); err != nil {
			_ = pubsub.Close()
			cancel()
			pool.Release()
			return fmt.Errorf("subscribe inbound channels: %w", err)
		}
		r.pubsub = pubsub
		r.wg.Add(1)
		go r.forwardMessages(runCtx, pubsub)
	}

	r.pool = pool
	r.cancel = cancel
	if len(r.outbound) > 0 {
		r.unobserve = r.bus.Observe(func(em signal.Emission) {
			r.publish(runCtx, em)
		})
	}
	r.started = true

	r.logger.Info("relay started",
		"outbound", len(r.cfg.Outbound),
		"inbound", len(r.cfg.Inbound),
		"workers", r.cfg.Workers,
	)
	return nil
}

func (r *Relay) awaitSubscriptions(ctx context.Context, pubsub *redis.PubSub, want int) error {
	for confirmed := 0; confirmed < want; {
		msg, err := pubsub.Receive(ctx)
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case *redis.Subscription:
			confirmed++
		case *redis.Message:
			r.enqueue(m.Channel, m.Payload)
		}
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, em signal.Emission) {
	if _, ok := r.outbound[em.Signal]; !ok {
		return
	}
	if r.closed.Load() {
		metricsRecorder().RecordRelayFailed(em.Signal, FailRelayClose)
		return
	}

	// Encoded on the emitting goroutine; the payload may be reused after Emit returns.
	env, err := newEnvelope(r.cfg.Source, em)
	if err != nil {
		metricsRecorder().RecordRelayFailed(em.Signal, FailEncode)
		r.logger.Warn("relay encode failed", "signal", em.Signal, "error", err)
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		metricsRecorder().RecordRelayFailed(em.Signal, FailEncode)
		return
	}

	channel := r.Channel(em.Signal)
	task := func() {
		pubCtx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
		defer cancel()
		if err := r.client.Publish(pubCtx, channel, data).Err(); err != nil {
			metricsRecorder().RecordRelayFailed(em.Signal, FailPublish)
			r.logger.Warn("relay publish failed", "signal", em.Signal, "error", err)
			return
		}
		metricsRecorder().RecordRelayPublished(em.Signal)
	}
	if err := r.pool.Submit(task); err != nil {
		metricsRecorder().RecordRelayFailed(em.Signal, FailPoolFull)
		r.logger.Warn("relay publish rejected", "signal", em.Signal, "error", err)
	}
}

func (r *Relay) forwardMessages(ctx context.Context, pubsub *redis.PubSub) {
	defer r.wg.Done()

	redisCh := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-redisCh:
			if !ok {
				return
			}
			r.enqueue(msg.Channel, msg.Payload)
		}
	}
}

// inboundSignal maps a subscribed channel back to its inbound signal name.
func (r *Relay) inboundSignal(channel string) (string, bool) {
	name, ok := strings.CutPrefix(channel, r.cfg.ChannelPrefix)
	if !ok {
		return "", false
	}
	_, ok = r.inbound[name]
	return name, ok
}

// enqueue decodes one envelope received on channel into the inbox, dropping
// the oldest entry when the inbox is full. The envelope must name the
// inbound signal its channel belongs to.
func (r *Relay) enqueue(channel, raw string) {
	name, ok := r.inboundSignal(channel)
	if !ok {
		metricsRecorder().RecordRelayFailed("unknown", FailRejected)
		r.logger.Warn("relay message on unexpected channel", "channel", channel)
		return
	}
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		metricsRecorder().RecordRelayFailed(name, FailDecode)
		return
	}
	if env.Source == r.cfg.Source {
		return
	}
	if env.Signal != name {
		metricsRecorder().RecordRelayFailed(name, FailRejected)
		r.logger.Warn("relay envelope names another signal",
			"channel", channel, "signal", env.Signal, "source", env.Source)
		return
	}

	select {
	case r.inbox <- &env:
	default:
		metricsRecorder().RecordRelayFailed(env.Signal, FailInboxFull)
		select {
		case <-r.inbox:
		default:
		}
		select {
		case r.inbox <- &env:
		default:
			metricsRecorder().RecordRelayFailed(env.Signal, FailInboxFull)
		}
	}
	metricsRecorder().SetRelayBacklog(len(r.inbox))
}

// Drain re-emits every buffered inbound envelope on the bus and returns how
// many were emitted. It must be called from the goroutine that drives the
// bus handlers, normally once per frame.
func (r *Relay) Drain() int {
	n := 0
	for {
		select {
		case env := <-r.inbox:
			msg := Message{
				EventID: env.EventID,
				Source:  env.Source,
				Payload: env.Payload,
				SentAt:  env.SentAt,
			}
			if err := signal.Emit(r.bus, Key(env.Signal), msg); err != nil {
				metricsRecorder().RecordRelayFailed(env.Signal, FailReemit)
				r.logger.Warn("relay re-emit failed", "signal", env.Signal, "error", err)
				continue
			}
			metricsRecorder().RecordRelayReceived(env.Signal)
			n++
		default:
			if n > 0 {
				metricsRecorder().SetRelayBacklog(len(r.inbox))
			}
			return n
		}
	}
}

// Pending returns the number of envelopes waiting for Drain.
func (r *Relay) Pending() int {
	return len(r.inbox)
}

// Healthy checks if the Redis connection is alive.
func (r *Relay) Healthy(ctx context.Context) bool {
	if r.closed.Load() {
		return false
	}
	return r.client.Ping(ctx).Err() == nil
}

// Close stops publishing, waits for in-flight publishes up to timeout and
// tears down the inbound subscription. Buffered envelopes are discarded.
func (r *Relay) Close(timeout time.Duration) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}

	if r.unobserve != nil {
		r.unobserve()
	}
	if timeout <= 0 {
		timeout = r.cfg.PublishTimeout
	}

	var errs []error
	if err := r.pool.ReleaseTimeout(timeout); err != nil {
		errs = append(errs, fmt.Errorf("release publish pool: %w", err))
	}
	r.cancel()
	if r.pubsub != nil {
		if err := r.pubsub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscription: %w", err))
		}
	}
	r.wg.Wait()

	r.logger.Info("relay closed")
	return errors.Join(errs...)
}
