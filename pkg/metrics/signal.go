package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initSignalMetrics() {
	m.signalEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_emitted_total",
			Help: "Total number of signal emissions dispatched",
		},
		[]string{"bus", "signal"},
	)

	m.signalHandlers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_handler_calls_total",
			Help: "Total number of handler invocations",
		},
		[]string{"bus", "signal"},
	)

	m.signalDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_dropped_total",
			Help: "Total number of emissions that reached no handler",
		},
		[]string{"bus", "reason"},
	)

	m.signalSubscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "signal_subscribers",
			Help: "Current number of handlers per signal",
		},
		[]string{"bus", "signal"},
	)

	m.registry.MustRegister(m.signalEmitted)
	m.registry.MustRegister(m.signalHandlers)
	m.registry.MustRegister(m.signalDropped)
	m.registry.MustRegister(m.signalSubscribers)
}

// RecordSignalEmitted records one dispatch and its handler fan-out.
func (m *Manager) RecordSignalEmitted(bus string, signal string, handlers int) {
	if !m.enabled {
		return
	}
	m.signalEmitted.WithLabelValues(bus, signal).Inc()
	m.signalHandlers.WithLabelValues(bus, signal).Add(float64(handlers))
}

// RecordSignalDropped records an emission that was not dispatched.
// The signal name is left out of the labels to bound cardinality.
func (m *Manager) RecordSignalDropped(bus string, signal string, reason string) {
	if !m.enabled {
		return
	}
	m.signalDropped.WithLabelValues(bus, reason).Inc()
}

// SetSignalSubscribers sets the handler count of a signal.
func (m *Manager) SetSignalSubscribers(bus string, signal string, count int) {
	if !m.enabled {
		return
	}
	m.signalSubscribers.WithLabelValues(bus, signal).Set(float64(count))
}
