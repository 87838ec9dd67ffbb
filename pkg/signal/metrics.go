package signal

import "sync"

// MetricsRecorder defines metrics hooks for signal dispatch.
type MetricsRecorder interface {
	RecordSignalEmitted(bus string, signal string, handlers int)
	RecordSignalDropped(bus string, signal string, reason string)
	SetSignalSubscribers(bus string, signal string, count int)
}

type nopMetrics struct{}

func (n *nopMetrics) RecordSignalEmitted(bus string, signal string, handlers int)  {}
func (n *nopMetrics) RecordSignalDropped(bus string, signal string, reason string) {}
func (n *nopMetrics) SetSignalSubscribers(bus string, signal string, count int)    {}

// Drop reasons reported to RecordSignalDropped.
const (
	DropUnknownSignal   = "unknown_signal"
	DropPayloadMismatch = "payload_mismatch"
)

var (
	metricsMu sync.RWMutex
	metrics   MetricsRecorder = &nopMetrics{}
)

// SetMetricsRecorder sets the package-level signal metrics recorder.
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
