package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initRelayMetrics() {
	m.relayPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_published_total",
			Help: "Total number of signals published to the relay channel",
		},
		[]string{"signal"},
	)

	m.relayReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_received_total",
			Help: "Total number of relayed signals re-emitted locally",
		},
		[]string{"signal"},
	)

	m.relayFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_failures_total",
			Help: "Total number of relay failures by reason",
		},
		[]string{"signal", "reason"},
	)

	m.relayBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_inbox_depth",
			Help: "Current number of received envelopes waiting for the frame loop",
		},
	)

	m.registry.MustRegister(m.relayPublished)
	m.registry.MustRegister(m.relayReceived)
	m.registry.MustRegister(m.relayFailures)
	m.registry.MustRegister(m.relayBacklog)
}

func (m *Manager) RecordRelayPublished(signal string) {
	if !m.enabled {
		return
	}
	m.relayPublished.WithLabelValues(signal).Inc()
}

func (m *Manager) RecordRelayReceived(signal string) {
	if !m.enabled {
		return
	}
	m.relayReceived.WithLabelValues(signal).Inc()
}

func (m *Manager) RecordRelayFailed(signal string, reason string) {
	if !m.enabled {
		return
	}
	m.relayFailures.WithLabelValues(signal, reason).Inc()
}

func (m *Manager) SetRelayBacklog(depth int) {
	if !m.enabled {
		return
	}
	m.relayBacklog.Set(float64(depth))
}
