// Package emitter broadcasts signals on a schedule declared in configuration.
// Each emitter is an interval timer whose next interval is drawn from a
// range every time it fires.
package emitter

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/tickbus/tickbus/pkg/hub"
	"github.com/tickbus/tickbus/pkg/logger"
	"github.com/tickbus/tickbus/pkg/signal"
	"github.com/tickbus/tickbus/pkg/timer"
)

// Spec declares one periodic broadcast. Interval is the minimum time
// between fires; when MaxInterval is greater, each interval is drawn
// uniformly from [Interval, MaxInterval]. Count stops the emitter after that
// many fires, zero meaning unbounded. A positive Delay replaces the first
// interval.
type Spec struct {
	Signal      string
	Lane        timer.Lane
	Interval    time.Duration
	MaxInterval time.Duration
	Count       int
	Delay       time.Duration
}

// Validate reports the first problem with s.
func (s Spec) Validate() error {
	switch {
	case s.Signal == "":
		return errors.New("signal cannot be empty")
	case s.Interval <= 0:
		return fmt.Errorf("%s: interval must be > 0", s.Signal)
	case s.MaxInterval != 0 && s.MaxInterval < s.Interval:
		return fmt.Errorf("%s: max interval must be >= interval", s.Signal)
	case s.Count < 0:
		return fmt.Errorf("%s: count must be >= 0", s.Signal)
	case s.Delay < 0:
		return fmt.Errorf("%s: delay must be >= 0", s.Signal)
	}
	return nil
}

// Pulse is the payload broadcast on every fire. Interval is the time that
// elapsed before the fire.
type Pulse struct {
	Signal   string        `json:"signal"`
	Seq      int           `json:"seq"`
	Interval time.Duration `json:"interval"`
}

// Key returns the typed key pulses for name are broadcast under.
func Key(name string) signal.Key[Pulse] {
	return signal.NewKey[Pulse](name)
}

// Option configures Start.
type Option func(*options)

type options struct {
	logger logger.Logger
	int64n func(n int64) int64
}

// WithLogger sets the logger for emitter diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRand sets the source used to draw intervals; int64n must return a
// value in [0, n).
func WithRand(int64n func(n int64) int64) Option {
	return func(o *options) {
		if int64n != nil {
			o.int64n = int64n
		}
	}
}

// Set is a group of running emitters on one scheduler.
type Set struct {
	scheduler *timer.Scheduler

	mu       sync.Mutex
	emitters []*emitter
}

type emitter struct {
	spec  Spec
	timer *timer.Timer
	seq   int
	last  time.Duration
}

// Start validates every spec and starts one interval timer per spec on the
// named hub scheduler. No timer is started when any spec is invalid.
func Start(h *hub.Hub, schedulerName string, specs []Spec, opts ...Option) (*Set, error) {
	var errs []error
	for i, spec := range specs {
		if err := spec.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("emitter %d: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	o := options{int64n: rand.Int64N}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Global()
	}
	lg := o.logger.With("component", "emitter", "scheduler", schedulerName)

	sched := h.Scheduler(schedulerName)
	set := &Set{scheduler: sched}

	for _, spec := range specs {
		if err := signal.Define(h.Bus(), Key(spec.Signal)); err != nil {
			set.Stop()
			return nil, fmt.Errorf("emitter %s: %w", spec.Signal, err)
		}

		e := &emitter{spec: spec}
		first := spec.Delay
		if first <= 0 {
			first = e.draw(o.int64n)
		}
		e.last = first

		e.timer = sched.SetInterval(func() {
			e.seq++
			pulse := Pulse{Signal: spec.Signal, Seq: e.seq, Interval: e.last}
			if err := hub.BroadcastValue(h, Key(spec.Signal), pulse); err != nil {
				lg.Warn("emitter broadcast failed", "signal", spec.Signal, "error", err)
			}

			if spec.Count > 0 && e.seq >= spec.Count {
				sched.Clear(e.timer)
				lg.Debug("emitter finished", "signal", spec.Signal, "fires", e.seq)
				return
			}
			e.last = e.draw(o.int64n)
			e.timer.SetWaitTime(e.last)
		}, first, timer.WithLane(spec.Lane), timer.WithName("emitter:"+spec.Signal))

		set.mu.Lock()
		set.emitters = append(set.emitters, e)
		set.mu.Unlock()
	}

	lg.Info("emitters started", "count", len(specs))
	return set, nil
}

func (e *emitter) draw(int64n func(int64) int64) time.Duration {
	lo, hi := e.spec.Interval, e.spec.MaxInterval
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(int64n(int64(hi-lo)+1))
}

// Timers returns the timers of the emitters that are still scheduled.
func (s *Set) Timers() []*timer.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*timer.Timer, 0, len(s.emitters))
	for _, e := range s.emitters {
		if e.timer.Scheduler() != nil {
			out = append(out, e.timer)
		}
	}
	return out
}

// Stop clears every emitter that is still scheduled and returns how many
// were cleared.
func (s *Set) Stop() int {
	s.mu.Lock()
	emitters := s.emitters
	s.emitters = nil
	s.mu.Unlock()

	n := 0
	for _, e := range emitters {
		if s.scheduler.Clear(e.timer) {
			n++
		}
	}
	return n
}
