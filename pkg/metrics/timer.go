package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initTimerMetrics initializes scheduler and timer metrics.
func (m *Manager) initTimerMetrics(cfg Config) {
	m.timerCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timer_created_total",
			Help: "Total number of timers registered",
		},
		[]string{"scheduler", "lane"},
	)

	m.timerFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timer_fired_total",
			Help: "Total number of timer timeouts",
		},
		[]string{"scheduler", "lane"},
	)

	m.timerCleared = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timer_cleared_total",
			Help: "Total number of timers removed by reason",
		},
		[]string{"scheduler", "lane", "reason"},
	)

	m.timerActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "timer_active",
			Help: "Current number of timers owned by a scheduler",
		},
		[]string{"scheduler"},
	)

	m.tickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timer_tick_duration_seconds",
			Help:    "Time spent advancing one lane of a scheduler",
			Buckets: cfg.TickDurationBuckets,
		},
		[]string{"scheduler", "lane"},
	)

	m.tickAdvanced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timer_steps_total",
			Help: "Total number of timer countdown steps",
		},
		[]string{"scheduler", "lane"},
	)

	m.tickRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timer_tick_rejected_total",
			Help: "Total number of rejected tick calls",
		},
		[]string{"scheduler", "lane", "reason"},
	)

	m.registry.MustRegister(m.timerCreated)
	m.registry.MustRegister(m.timerFired)
	m.registry.MustRegister(m.timerCleared)
	m.registry.MustRegister(m.timerActive)
	m.registry.MustRegister(m.tickDuration)
	m.registry.MustRegister(m.tickAdvanced)
	m.registry.MustRegister(m.tickRejected)
}

func (m *Manager) RecordTimerCreated(scheduler string, lane string) {
	if !m.enabled {
		return
	}
	m.timerCreated.WithLabelValues(scheduler, lane).Inc()
}

func (m *Manager) RecordTimerFired(scheduler string, lane string) {
	if !m.enabled {
		return
	}
	m.timerFired.WithLabelValues(scheduler, lane).Inc()
}

func (m *Manager) RecordTimerCleared(scheduler string, lane string, reason string) {
	if !m.enabled {
		return
	}
	m.timerCleared.WithLabelValues(scheduler, lane, reason).Inc()
}

// RecordTick records one lane pass of a scheduler.
func (m *Manager) RecordTick(scheduler string, lane string, advanced int, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.tickDuration.WithLabelValues(scheduler, lane).Observe(duration.Seconds())
	m.tickAdvanced.WithLabelValues(scheduler, lane).Add(float64(advanced))
}

func (m *Manager) RecordTickRejected(scheduler string, lane string, reason string) {
	if !m.enabled {
		return
	}
	m.tickRejected.WithLabelValues(scheduler, lane, reason).Inc()
}

// SetActiveTimers sets the number of timers a scheduler owns.
func (m *Manager) SetActiveTimers(scheduler string, count int) {
	if !m.enabled {
		return
	}
	m.timerActive.WithLabelValues(scheduler).Set(float64(count))
}
