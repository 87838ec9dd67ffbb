// Package timer implements lane-aware countdown timers advanced by an
// external frame driver.
package timer

import (
	"slices"
	"sync"
	"time"

	"github.com/tickbus/tickbus/pkg/logger"
	"github.com/tickbus/tickbus/pkg/signal"
)

// Scheduler owns a set of timers and advances them one lane at a time.
//
// Tick iterates a snapshot of the timer set taken when the pass starts, so
// callbacks may create or clear timers reentrantly. Timers created during a
// pass are first advanced by the next one; timers cleared during a pass are
// skipped for the rest of it.
type Scheduler struct {
	name     string
	registry *Registry
	bus      *signal.Bus
	logger   logger.Logger

	mu     sync.Mutex
	timers []*Timer
	closed bool
}

// NewScheduler creates a scheduler whose timers are also tracked in reg.
// A nil reg gives the scheduler a private registry.
func NewScheduler(reg *Registry, opts ...Option) *Scheduler {
	if reg == nil {
		reg = NewRegistry()
	}
	s := &Scheduler{
		name:     "default",
		registry: reg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Global()
	}
	s.logger = s.logger.With("component", "timer_scheduler", "scheduler", s.name)
	return s
}

// Name returns the scheduler label.
func (s *Scheduler) Name() string { return s.name }

// Registry returns the registry the scheduler reports to.
func (s *Scheduler) Registry() *Registry { return s.registry }

// SetTimeout starts a one-shot timer that calls fn once after d. The timer
// is removed after it fires. A non-positive d yields a registered timer that
// never starts.
func (s *Scheduler) SetTimeout(fn func(), d time.Duration, opts ...TimerOption) *Timer {
	return s.schedule(fn, d, true, opts)
}

// SetInterval starts a repeating timer that calls fn every d. Changing the
// timer's wait time from fn alters the following intervals.
func (s *Scheduler) SetInterval(fn func(), d time.Duration, opts ...TimerOption) *Timer {
	return s.schedule(fn, d, false, opts)
}

// NewTimer registers a repeating timer with wait time d that stays
// registered until cleared, even as a completed one-shot. It does not start
// unless WithAutostart is given.
func (s *Scheduler) NewTimer(d time.Duration, opts ...TimerOption) *Timer {
	t := newTimer(d, opts)
	if !s.register(t) {
		return t
	}
	if t.autostart {
		t.StartWith(d)
	}
	return t
}

func (s *Scheduler) schedule(fn func(), d time.Duration, oneShot bool, opts []TimerOption) *Timer {
	t := newTimer(d, opts)
	t.oneShot = oneShot
	t.disposable = true
	t.onTimeout = fn
	if !s.register(t) {
		return t
	}
	if !t.StartWith(d) {
		s.logger.Debug("timer not started, non-positive duration",
			"timer_id", t.id, "duration", d)
	}
	return t
}

func (s *Scheduler) register(t *Timer) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("timer created on closed scheduler", "timer_id", t.id)
		return false
	}
	s.timers = append(s.timers, t)
	count := len(s.timers)
	t.owner.Store(s)
	s.mu.Unlock()

	s.registry.add(t)
	metricsRecorder().RecordTimerCreated(s.name, t.lane.String())
	metricsRecorder().SetActiveTimers(s.name, count)
	return true
}

// Tick advances every running timer of lane by dt, in registration order.
// A negative dt is rejected and advances nothing.
func (s *Scheduler) Tick(lane Lane, dt time.Duration) {
	if dt < 0 {
		metricsRecorder().RecordTickRejected(s.name, lane.String(), "negative_delta")
		s.logger.Debug("tick rejected", "lane", lane.String(), "delta", dt)
		return
	}

	start := time.Now()
	s.mu.Lock()
	snapshot := slices.Clone(s.timers)
	s.mu.Unlock()

	advanced := 0
	for _, t := range snapshot {
		if t.lane != lane || t.owner.Load() != s {
			continue
		}
		stepped, timedOut := t.countDown(dt, false, s.notifier(t))
		if !stepped {
			continue
		}
		advanced++
		if !timedOut {
			continue
		}
		metricsRecorder().RecordTimerFired(s.name, lane.String())
		if t.disposable && t.OneShot() {
			s.remove(t, ClearCompleted, true)
		}
	}
	metricsRecorder().RecordTick(s.name, lane.String(), advanced, time.Since(start))
}

// Clear removes t without firing it. It reports false if s does not own t,
// which makes repeated calls harmless.
func (s *Scheduler) Clear(t *Timer) bool {
	return s.remove(t, ClearExplicit, true)
}

// ForceComplete removes t whether or not it repeats, then advances it by its
// remaining time so its timeout fires even when paused. The timer is
// released before its callbacks run. Called from t's own timeout it only
// removes t, since that timeout is already firing.
func (s *Scheduler) ForceComplete(t *Timer) bool {
	if t == nil || t.owner.Load() != s {
		return false
	}
	if !s.remove(t, ClearForced, true) {
		return false
	}
	if t.inTimeout() {
		return true
	}
	_, timedOut := t.countDown(t.TimeLeft(), true, s.notifier(t))
	if timedOut {
		metricsRecorder().RecordTimerFired(s.name, t.lane.String())
	}
	return true
}

// ClearAll removes every timer owned by s and returns how many were removed.
func (s *Scheduler) ClearAll() int {
	s.mu.Lock()
	timers := s.timers
	s.timers = nil
	s.mu.Unlock()

	for _, t := range timers {
		t.owner.CompareAndSwap(s, nil)
		s.registry.remove(t)
		metricsRecorder().RecordTimerCleared(s.name, t.lane.String(), ClearExplicit)
	}
	metricsRecorder().SetActiveTimers(s.name, 0)
	return len(timers)
}

// Close clears every timer and rejects new ones.
func (s *Scheduler) Close() int {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	n := s.ClearAll()
	s.logger.Debug("scheduler closed", "cleared", n)
	return n
}

// Detach removes t from s but keeps it in the registry, paused where it
// stands, so it can later be adopted by another scheduler.
func (s *Scheduler) Detach(t *Timer) bool {
	return s.remove(t, ClearDetached, false)
}

// Adopt moves t into s, detaching it from its current owner if any.
func (s *Scheduler) Adopt(t *Timer) bool {
	if t == nil {
		return false
	}
	prev := t.owner.Load()
	if prev == s {
		return false
	}
	if prev != nil && !prev.Detach(t) {
		return false
	}
	return s.register(t)
}

// Timers returns the owned timers in registration order.
func (s *Scheduler) Timers() []*Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.timers)
}

// Len returns the number of owned timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) remove(t *Timer, reason string, unregister bool) bool {
	if t == nil {
		return false
	}
	s.mu.Lock()
	idx := slices.Index(s.timers, t)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.timers = slices.Delete(s.timers, idx, idx+1)
	count := len(s.timers)
	s.mu.Unlock()

	t.owner.CompareAndSwap(s, nil)
	if unregister {
		s.registry.remove(t)
	} else {
		t.Pause()
	}
	metricsRecorder().RecordTimerCleared(s.name, t.lane.String(), reason)
	metricsRecorder().SetActiveTimers(s.name, count)
	return true
}

func (s *Scheduler) notifier(t *Timer) func(time.Duration, bool) {
	if s.bus == nil {
		return func(time.Duration, bool) {}
	}
	return func(left time.Duration, timedOut bool) {
		var err error
		if timedOut {
			err = signal.Emit(s.bus, KeyTimeout, TimeoutEvent{
				TimerID: t.id, Name: t.name, Scheduler: s.name, Lane: t.lane,
			})
		} else {
			err = signal.Emit(s.bus, KeyStep, StepEvent{
				TimerID: t.id, Name: t.name, Scheduler: s.name, Lane: t.lane, TimeLeft: left,
			})
		}
		if err != nil {
			s.logger.Debug("timer notification dropped", "timer_id", t.id, "error", err)
		}
	}
}
