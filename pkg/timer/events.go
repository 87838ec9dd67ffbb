package timer

import (
	"time"

	"github.com/tickbus/tickbus/pkg/signal"
)

// StepEvent is published on KeyStep after every countdown step.
type StepEvent struct {
	TimerID   string        `json:"timer_id"`
	Name      string        `json:"name,omitempty"`
	Scheduler string        `json:"scheduler"`
	Lane      Lane          `json:"lane"`
	TimeLeft  time.Duration `json:"time_left"`
}

// TimeoutEvent is published on KeyTimeout when a countdown reaches zero.
type TimeoutEvent struct {
	TimerID   string `json:"timer_id"`
	Name      string `json:"name,omitempty"`
	Scheduler string `json:"scheduler"`
	Lane      Lane   `json:"lane"`
}

var (
	KeyStep    = signal.NewKey[StepEvent]("timer.step")
	KeyTimeout = signal.NewKey[TimeoutEvent]("timer.timeout")
)
