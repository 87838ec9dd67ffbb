package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initLoopMetrics(cfg Config) {
	m.frameDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loop_frame_duration_seconds",
			Help:    "Time spent running one frame",
			Buckets: cfg.FrameDurationBuckets,
		},
	)

	m.frameFixed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loop_fixed_steps_total",
			Help: "Total number of fixed lane steps",
		},
	)

	m.framePanics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loop_frame_panics_total",
			Help: "Total number of frames aborted by a panic",
		},
	)

	m.timeScale = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loop_time_scale",
			Help: "Current time scale of the normal and fixed lanes",
		},
	)

	m.registry.MustRegister(m.frameDuration)
	m.registry.MustRegister(m.frameFixed)
	m.registry.MustRegister(m.framePanics)
	m.registry.MustRegister(m.timeScale)
}

func (m *Manager) RecordFrame(duration time.Duration) {
	if !m.enabled {
		return
	}
	m.frameDuration.Observe(duration.Seconds())
}

func (m *Manager) RecordFixedSteps(steps int) {
	if !m.enabled {
		return
	}
	m.frameFixed.Add(float64(steps))
}

func (m *Manager) RecordFramePanic() {
	if !m.enabled {
		return
	}
	m.framePanics.Inc()
}

func (m *Manager) SetTimeScale(scale float64) {
	if !m.enabled {
		return
	}
	m.timeScale.Set(scale)
}
