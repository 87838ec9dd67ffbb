package timer

import (
	"sync"
	"time"
)

// MetricsRecorder defines metrics hooks for timer scheduling.
type MetricsRecorder interface {
	RecordTimerCreated(scheduler string, lane string)
	RecordTimerFired(scheduler string, lane string)
	RecordTimerCleared(scheduler string, lane string, reason string)
	RecordTick(scheduler string, lane string, advanced int, duration time.Duration)
	RecordTickRejected(scheduler string, lane string, reason string)
	SetActiveTimers(scheduler string, count int)
}

// Clear reasons reported to RecordTimerCleared.
const (
	ClearExplicit  = "cleared"
	ClearCompleted = "completed"
	ClearForced    = "forced"
	ClearDetached  = "detached"
)

type nopMetrics struct{}

func (n *nopMetrics) RecordTimerCreated(scheduler string, lane string)                {}
func (n *nopMetrics) RecordTimerFired(scheduler string, lane string)                  {}
func (n *nopMetrics) RecordTimerCleared(scheduler string, lane string, reason string) {}
func (n *nopMetrics) RecordTick(scheduler string, lane string, advanced int, duration time.Duration) {
}
func (n *nopMetrics) RecordTickRejected(scheduler string, lane string, reason string) {}
func (n *nopMetrics) SetActiveTimers(scheduler string, count int)                     {}

var (
	metricsMu sync.RWMutex
	metrics   MetricsRecorder = &nopMetrics{}
)

// SetMetricsRecorder sets the package-level timer metrics recorder.
func SetMetricsRecorder(recorder MetricsRecorder) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if recorder == nil {
		metrics = &nopMetrics{}
		return
	}
	metrics = recorder
}

func metricsRecorder() MetricsRecorder {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	if metrics == nil {
		return &nopMetrics{}
	}
	return metrics
}
