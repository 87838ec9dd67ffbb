package loop

import (
	"sync"
	"time"
)

// MetricsRecorder defines metrics hooks for the frame loop.
type MetricsRecorder interface {
	RecordFrame(duration time.Duration)
	RecordFixedSteps(steps int)
	RecordFramePanic()
	SetTimeScale(scale float64)
}

type nopMetrics struct{}

func (n *nopMetrics) RecordFrame(duration time.Duration) {}
func (n *nopMetrics) RecordFixedSteps(steps int)         {}
func (n *nopMetrics) RecordFramePanic()                  {}
func (n *nopMetrics) SetTimeScale(scale float64)         {}

var (
	metricsMu sync.RWMutex
	metrics   MetricsRecorder = &nopMetrics{}
)

// SetMetricsRecorder sets the package-level loop metrics recorder.
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
