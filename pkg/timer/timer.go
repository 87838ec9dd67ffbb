package timer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Timer is a countdown advanced by the Scheduler that owns it.
//
// Callbacks run on the ticking goroutine with no lock held and may freely
// call back into the timer or its scheduler. WaitTime may be changed from a
// callback; the new value is read when the timer next restarts.
type Timer struct {
	id   string
	seq  uint64
	name string
	lane Lane

	// disposable timers are removed from their scheduler once a one-shot
	// countdown completes.
	disposable bool
	autostart  bool

	mu        sync.Mutex
	waitTime  time.Duration
	timeLeft  time.Duration
	oneShot   bool
	paused    bool
	firing    bool
	onStart   func()
	onStep    func(timeLeft time.Duration)
	onTimeout func()

	owner atomic.Pointer[Scheduler]
}

var timerSeq atomic.Uint64

func newTimer(wait time.Duration, opts []TimerOption) *Timer {
	t := &Timer{
		id:       uuid.NewString(),
		seq:      timerSeq.Add(1),
		waitTime: wait,
		paused:   true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID returns the timer's unique id.
func (t *Timer) ID() string { return t.id }

// Name returns the optional label given with WithName.
func (t *Timer) Name() string { return t.name }

// Lane returns the lane that advances the timer.
func (t *Timer) Lane() Lane { return t.lane }

// Scheduler returns the owning scheduler, or nil once the timer was cleared or detached.
func (t *Timer) Scheduler() *Scheduler { return t.owner.Load() }

// WaitTime returns the duration used by the next (re)start.
func (t *Timer) WaitTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waitTime
}

// SetWaitTime changes the duration used by the next (re)start.
func (t *Timer) SetWaitTime(d time.Duration) {
	t.mu.Lock()
	t.waitTime = d
	t.mu.Unlock()
}

// TimeLeft returns the remaining time of the current cycle.
func (t *Timer) TimeLeft() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeLeft
}

// SetTimeLeft overrides the remaining time of the current cycle.
func (t *Timer) SetTimeLeft(d time.Duration) {
	t.mu.Lock()
	t.timeLeft = d
	t.mu.Unlock()
}

// OneShot reports whether the timer stops after its next timeout.
func (t *Timer) OneShot() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.oneShot
}

// SetOneShot switches between one-shot and repeating behavior.
func (t *Timer) SetOneShot(v bool) {
	t.mu.Lock()
	t.oneShot = v
	t.mu.Unlock()
}

// Paused reports whether the timer is stopped.
func (t *Timer) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Running reports whether the timer is counting down.
func (t *Timer) Running() bool {
	return !t.Paused()
}

func (t *Timer) inTimeout() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.firing
}

// OnStart sets the callback invoked whenever the timer (re)starts.
func (t *Timer) OnStart(fn func()) *Timer {
	t.mu.Lock()
	t.onStart = fn
	t.mu.Unlock()
	return t
}

// OnStep sets the callback invoked after every decrement with the new time left.
func (t *Timer) OnStep(fn func(timeLeft time.Duration)) *Timer {
	t.mu.Lock()
	t.onStep = fn
	t.mu.Unlock()
	return t
}

// OnTimeout sets the callback invoked when the countdown reaches zero.
func (t *Timer) OnTimeout(fn func()) *Timer {
	t.mu.Lock()
	t.onTimeout = fn
	t.mu.Unlock()
	return t
}

// Start restarts the countdown from the current wait time.
func (t *Timer) Start() bool {
	return t.StartWith(t.WaitTime())
}

// StartWith sets the wait time to d and restarts the countdown. A
// non-positive d is rejected and leaves the timer untouched.
func (t *Timer) StartWith(d time.Duration) bool {
	if d <= 0 {
		return false
	}
	t.mu.Lock()
	t.waitTime = d
	t.timeLeft = d
	t.paused = false
	onStart := t.onStart
	t.mu.Unlock()

	if onStart != nil {
		onStart()
	}
	return true
}

// Pause stops the countdown without touching the time left.
func (t *Timer) Pause() {
	t.mu.Lock()
	t.paused = true
	t.mu.Unlock()
}

// Resume continues a paused countdown.
func (t *Timer) Resume() {
	t.mu.Lock()
	t.paused = false
	t.mu.Unlock()
}

// Reset rewinds the time left to the wait time without changing the paused state.
func (t *Timer) Reset() {
	t.mu.Lock()
	t.timeLeft = t.waitTime
	t.mu.Unlock()
}

// Snapshot is a point-in-time copy of a timer's state.
type Snapshot struct {
	ID        string        `json:"id"`
	Name      string        `json:"name,omitempty"`
	Lane      Lane          `json:"lane"`
	Scheduler string        `json:"scheduler,omitempty"`
	WaitTime  time.Duration `json:"wait_time"`
	TimeLeft  time.Duration `json:"time_left"`
	OneShot   bool          `json:"one_shot"`
	Paused    bool          `json:"paused"`
}

// Snapshot returns the timer's current state.
func (t *Timer) Snapshot() Snapshot {
	s := Snapshot{ID: t.id, Name: t.name, Lane: t.lane}
	if owner := t.owner.Load(); owner != nil {
		s.Scheduler = owner.Name()
	}
	t.mu.Lock()
	s.WaitTime = t.waitTime
	s.TimeLeft = t.timeLeft
	s.OneShot = t.oneShot
	s.Paused = t.paused
	t.mu.Unlock()
	return s
}

// countDown runs one step: decrement, step callback, then the zero check.
// Paused timers are skipped unless force is set. On timeout the time left is
// clamped to zero and the timeout callback fires; a forced step stops there,
// otherwise a one-shot pauses and a repeating timer restarts from its
// current wait time, freezing instead when that is not positive.
func (t *Timer) countDown(delta time.Duration, force bool, notify func(left time.Duration, timedOut bool)) (stepped, timedOut bool) {
	t.mu.Lock()
	if t.paused && !force {
		t.mu.Unlock()
		return false, false
	}
	t.timeLeft -= delta
	left := t.timeLeft
	onStep := t.onStep
	t.mu.Unlock()

	if onStep != nil {
		onStep(left)
	}
	notify(left, false)

	t.mu.Lock()
	if t.timeLeft > 0 {
		t.mu.Unlock()
		return true, false
	}
	t.timeLeft = 0
	t.firing = true
	onTimeout := t.onTimeout
	t.mu.Unlock()

	func() {
		defer func() {
			t.mu.Lock()
			t.firing = false
			t.mu.Unlock()
		}()
		if onTimeout != nil {
			onTimeout()
		}
		notify(0, true)
	}()

	// Forced, or cleared from its own timeout callback: no next cycle.
	if force || t.owner.Load() == nil {
		return true, true
	}
	if t.OneShot() {
		t.Pause()
		return true, true
	}
	if !t.Start() {
		// Non-positive wait time: stay at zero without firing again.
		t.mu.Lock()
		t.timeLeft = 0
		t.paused = true
		t.mu.Unlock()
	}
	return true, true
}
