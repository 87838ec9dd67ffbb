// Package loop drives timer lanes from a frame clock.
//
// Each frame the fixed lane is stepped by a fixed amount as many times as
// the scaled frame time allows, then the normal lane receives the scaled
// frame time and the unscaled lane the raw frame time.
package loop

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/tickbus/tickbus/pkg/logger"
	"github.com/tickbus/tickbus/pkg/timer"
)

const (
	tracerName = "tickbus.loop"
	spanFrame  = "loop.frame"
)

// Ticker is advanced once per lane per frame.
type Ticker interface {
	Tick(lane timer.Lane, dt time.Duration)
}

// Config controls frame pacing and lane deltas.
type Config struct {
	FrameRate     float64
	FixedStep     time.Duration
	TimeScale     float64
	MaxFrameDelta time.Duration
	MaxFixedSteps int
}

// DefaultConfig returns 60 frames per second with a 20ms fixed step.
func DefaultConfig() Config {
	return Config{
		FrameRate:     60,
		FixedStep:     20 * time.Millisecond,
		TimeScale:     1,
		MaxFrameDelta: 250 * time.Millisecond,
		MaxFixedSteps: 5,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.FrameRate <= 0 {
		errs = append(errs, fmt.Errorf("frame rate must be positive, got %v", c.FrameRate))
	}
	if c.FixedStep <= 0 {
		errs = append(errs, fmt.Errorf("fixed step must be positive, got %v", c.FixedStep))
	}
	if c.TimeScale < 0 {
		errs = append(errs, fmt.Errorf("time scale must not be negative, got %v", c.TimeScale))
	}
	if c.MaxFrameDelta <= 0 {
		errs = append(errs, fmt.Errorf("max frame delta must be positive, got %v", c.MaxFrameDelta))
	}
	if c.MaxFixedSteps <= 0 {
		errs = append(errs, fmt.Errorf("max fixed steps must be positive, got %d", c.MaxFixedSteps))
	}
	return errors.Join(errs...)
}

// Loop is the frame driver. Step and Run must not be called concurrently.
type Loop struct {
	cfg    Config
	target Ticker
	clock  Clock
	logger logger.Logger
	hooks  []func(ctx context.Context)
	tracer trace.Tracer

	mu          sync.Mutex
	timeScale   float64
	paused      bool
	started     bool
	last        time.Time
	accumulator time.Duration

	frames atomic.Uint64
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(l *Loop) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithLogger sets the loop logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Loop) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// WithFrameHook runs fn at the start of every frame, before any lane is ticked.
func WithFrameHook(fn func(ctx context.Context)) Option {
	return func(l *Loop) {
		if fn != nil {
			l.hooks = append(l.hooks, fn)
		}
	}
}

// New creates a loop that drives target.
func New(cfg Config, target Ticker, opts ...Option) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid loop config: %w", err)
	}
	if target == nil {
		return nil, errors.New("loop target cannot be nil")
	}
	l := &Loop{
		cfg:       cfg,
		target:    target,
		clock:     SystemClock(),
		timeScale: cfg.TimeScale,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Global()
	}
	l.logger = l.logger.With("component", "loop")
	metricsRecorder().SetTimeScale(cfg.TimeScale)
	return l, nil
}

// SetTimeScale changes the factor applied to the normal and fixed lanes.
func (l *Loop) SetTimeScale(scale float64) error {
	if scale < 0 {
		return fmt.Errorf("time scale must not be negative, got %v", scale)
	}
	l.mu.Lock()
	l.timeScale = scale
	l.mu.Unlock()
	metricsRecorder().SetTimeScale(scale)
	return nil
}

func (l *Loop) TimeScale() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timeScale
}

// Pause stops the normal and fixed lanes. The unscaled lane keeps running.
func (l *Loop) Pause() {
	l.mu.Lock()
	l.paused = true
	l.mu.Unlock()
}

// Resume restarts the normal and fixed lanes.
func (l *Loop) Resume() {
	l.mu.Lock()
	l.paused = false
	l.mu.Unlock()
}

func (l *Loop) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

// Frames returns how many frames have run.
func (l *Loop) Frames() uint64 {
	return l.frames.Load()
}

// Step runs one frame ending at now. The first call only records the
// starting time and runs the frame hooks.
func (l *Loop) Step(ctx context.Context, now time.Time) {
	l.mu.Lock()
	first := !l.started
	if first {
		l.started = true
		l.last = now
	}
	raw := now.Sub(l.last)
	l.last = now
	if raw < 0 {
		raw = 0
	}
	if raw > l.cfg.MaxFrameDelta {
		raw = l.cfg.MaxFrameDelta
	}
	paused := l.paused
	scaled := time.Duration(float64(raw) * l.timeScale)

	steps := 0
	if !paused {
		l.accumulator += scaled
		for l.accumulator >= l.cfg.FixedStep && steps < l.cfg.MaxFixedSteps {
			l.accumulator -= l.cfg.FixedStep
			steps++
		}
		// Drop the backlog a slow frame could not catch up on.
		if l.accumulator >= l.cfg.FixedStep {
			l.accumulator %= l.cfg.FixedStep
		}
	}
	l.mu.Unlock()

	for _, hook := range l.hooks {
		hook(ctx)
	}
	l.frames.Add(1)
	if first {
		return
	}

	for i := 0; i < steps; i++ {
		l.target.Tick(timer.LaneFixed, l.cfg.FixedStep)
	}
	if steps > 0 {
		metricsRecorder().RecordFixedSteps(steps)
	}
	if !paused {
		l.target.Tick(timer.LaneNormal, scaled)
	}
	l.target.Tick(timer.LaneUnscaled, raw)
}

// Run drives frames at the configured rate until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Limit(l.cfg.FrameRate), 1)
	l.logger.Info("frame loop started",
		"frame_rate", l.cfg.FrameRate,
		"fixed_step", l.cfg.FixedStep,
		"time_scale", l.TimeScale(),
	)

	for {
		if err := limiter.Wait(ctx); err != nil {
			// Wait also fails early when the next frame would land past the deadline.
			<-ctx.Done()
			l.logger.Info("frame loop stopped", "frames", l.Frames())
			return nil
		}
		l.frame(ctx)
	}
}

func (l *Loop) frame(ctx context.Context) {
	start := time.Now()
	ctx, span := l.tracer.Start(ctx, spanFrame,
		trace.WithAttributes(attribute.Int64("loop.frame", int64(l.Frames()))))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			metricsRecorder().RecordFramePanic()
			span.SetStatus(codes.Error, fmt.Sprint(r))
			l.logger.ErrorContext(ctx, "frame panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	l.Step(ctx, l.clock.Now())
	metricsRecorder().RecordFrame(time.Since(start))
}
