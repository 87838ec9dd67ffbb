package timer

import (
	"time"

	"github.com/tickbus/tickbus/pkg/logger"
	"github.com/tickbus/tickbus/pkg/signal"
)

// TimerOption configures a Timer at creation.
type TimerOption func(*Timer)

// WithLane sets the lane that advances the timer. The default is LaneNormal.
func WithLane(lane Lane) TimerOption {
	return func(t *Timer) {
		t.lane = lane
	}
}

// WithName labels the timer in logs, events and the debug API.
func WithName(name string) TimerOption {
	return func(t *Timer) {
		t.name = name
	}
}

// WithOneShot makes a timer created by NewTimer stop after its first timeout.
func WithOneShot() TimerOption {
	return func(t *Timer) {
		t.oneShot = true
	}
}

// WithAutostart starts a timer created by NewTimer immediately.
func WithAutostart() TimerOption {
	return func(t *Timer) {
		t.autostart = true
	}
}

// WithOnStart sets the start callback before the first start.
func WithOnStart(fn func()) TimerOption {
	return func(t *Timer) {
		t.onStart = fn
	}
}

// WithOnStep sets the step callback.
func WithOnStep(fn func(timeLeft time.Duration)) TimerOption {
	return func(t *Timer) {
		t.onStep = fn
	}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSchedulerName labels the scheduler in logs and metrics.
func WithSchedulerName(name string) Option {
	return func(s *Scheduler) {
		if name != "" {
			s.name = name
		}
	}
}

// WithBus publishes step and timeout notifications on bus.
func WithBus(bus *signal.Bus) Option {
	return func(s *Scheduler) {
		s.bus = bus
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}
