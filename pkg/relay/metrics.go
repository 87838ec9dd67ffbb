package relay

import "sync"

// MetricsRecorder defines metrics hooks for the relay.
type MetricsRecorder interface {
	RecordRelayPublished(signal string)
	RecordRelayReceived(signal string)
	RecordRelayFailed(signal string, reason string)
	SetRelayBacklog(depth int)
}

type nopMetrics struct{}

func (n *nopMetrics) RecordRelayPublished(signal string)             {}
func (n *nopMetrics) RecordRelayReceived(signal string)              {}
func (n *nopMetrics) RecordRelayFailed(signal string, reason string) {}
func (n *nopMetrics) SetRelayBacklog(depth int)                      {}

// Failure reasons reported to RecordRelayFailed.
const (
	FailEncode     = "encode_failed"
	FailDecode     = "decode_failed"
	FailRejected   = "signal_rejected"
	FailPublish    = "publish_failed"
	FailPoolFull   = "pool_rejected"
	FailInboxFull  = "buffer_full_drop"
	FailReemit     = "reemit_failed"
	FailRelayClose = "relay_closed"
)

var (
	metricsMu sync.RWMutex
	metrics   MetricsRecorder = &nopMetrics{}
)

// SetMetricsRecorder sets the package-level relay metrics recorder.
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
	return metrics
}
