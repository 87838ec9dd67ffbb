// Package handlers provides HTTP request handlers for the debug API.
package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/tickbus/tickbus/pkg/api/response"
	"github.com/tickbus/tickbus/pkg/hub"
	"github.com/tickbus/tickbus/pkg/version"
)

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// LoopStatus is the frame driver state shown by /status.
type LoopStatus interface {
	Frames() uint64
	TimeScale() float64
	Paused() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	hub     *hub.Hub
	loop    LoopStatus
	started time.Time

	mu     sync.RWMutex
	checks map[string]ReadinessCheck
}

// NewHealthHandler creates a new health handler. loop may be nil.
func NewHealthHandler(h *hub.Hub, loop LoopStatus) *HealthHandler {
	return &HealthHandler{
		hub:     h,
		loop:    loop,
		started: time.Now(),
		checks:  make(map[string]ReadinessCheck),
	}
}

// AddCheck registers a readiness check under name.
func (h *HealthHandler) AddCheck(name string, check ReadinessCheck) {
	if check == nil {
		return
	}
	h.mu.Lock()
	h.checks[name] = check
	h.mu.Unlock()
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.hub.Closed() {
		response.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stopping"})
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles the /ready endpoint (readiness probe).
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	ready := !h.hub.Closed()
	results := make(map[string]string, len(names))
	for _, name := range names {
		h.mu.RLock()
		check := h.checks[name]
		h.mu.RUnlock()
		if err := check(r.Context()); err != nil {
			ready = false
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, status, map[string]interface{}{
		"ready":  ready,
		"checks": results,
	})
}

type schedulerStatus struct {
	Name   string `json:"name"`
	Timers int    `json:"timers"`
}

type loopStatus struct {
	Frames    uint64  `json:"frames"`
	TimeScale float64 `json:"time_scale"`
	Paused    bool    `json:"paused"`
}

// Status handles the /status endpoint (detailed status).
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	schedulers := h.hub.Schedulers()
	sched := make([]schedulerStatus, 0, len(schedulers))
	for _, s := range schedulers {
		sched = append(sched, schedulerStatus{Name: s.Name(), Timers: s.Len()})
	}

	body := map[string]interface{}{
		"version":    version.Info(),
		"uptime":     time.Since(h.started).Round(time.Second).String(),
		"bus":        h.hub.Bus().Name(),
		"signals":    len(h.hub.Bus().Signals()),
		"timers":     h.hub.Timers().Len(),
		"schedulers": sched,
		"closed":     h.hub.Closed(),
	}
	if h.loop != nil {
		body["loop"] = loopStatus{
			Frames:    h.loop.Frames(),
			TimeScale: h.loop.TimeScale(),
			Paused:    h.loop.Paused(),
		}
	}
	response.JSON(w, http.StatusOK, body)
}
