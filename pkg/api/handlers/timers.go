package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tickbus/tickbus/pkg/api/middleware"
	"github.com/tickbus/tickbus/pkg/api/response"
	"github.com/tickbus/tickbus/pkg/hub"
	"github.com/tickbus/tickbus/pkg/timer"
)

// TimerHandler inspects and controls timers in the hub registry. Mutations
// run on the frame goroutine.
type TimerHandler struct {
	hub *hub.Hub
}

// NewTimerHandler creates a timer handler.
func NewTimerHandler(h *hub.Hub) *TimerHandler {
	return &TimerHandler{hub: h}
}

// ListTimers handles GET /api/v1/timers, optionally filtered by ?scheduler=.
func (h *TimerHandler) ListTimers(w http.ResponseWriter, r *http.Request) {
	scheduler := r.URL.Query().Get("scheduler")
	timers := h.hub.Timers().Timers()
	out := make([]timer.Snapshot, 0, len(timers))
	for _, t := range timers {
		snap := t.Snapshot()
		if scheduler != "" && snap.Scheduler != scheduler {
			continue
		}
		out = append(out, snap)
	}
	response.List(w, out)
}

// GetTimer handles GET /api/v1/timers/{id}.
func (h *TimerHandler) GetTimer(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}
	response.JSON(w, http.StatusOK, t.Snapshot())
}

// ClearTimer handles DELETE /api/v1/timers/{id}.
func (h *TimerHandler) ClearTimer(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := h.hub.Call(r.Context(), func() { h.hub.ClearInstance(t) }); err != nil {
		response.HandleError(w, err, middleware.RequestIDOrUnknown(r.Context()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompleteTimer handles POST /api/v1/timers/{id}/complete. The timeout
// callback runs even when the timer is paused.
func (h *TimerHandler) CompleteTimer(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var completed bool
	err := h.hub.Call(r.Context(), func() {
		if s := t.Scheduler(); s != nil {
			completed = s.ForceComplete(t)
		}
	})
	requestID := middleware.RequestIDOrUnknown(r.Context())
	if err != nil {
		response.HandleError(w, err, requestID)
		return
	}
	if !completed {
		response.HandleError(w, fmt.Errorf("timer %s is not scheduled: %w", t.ID(), response.ErrConflict), requestID)
		return
	}
	response.JSON(w, http.StatusOK, t.Snapshot())
}

// PauseTimer handles POST /api/v1/timers/{id}/pause.
func (h *TimerHandler) PauseTimer(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, (*timer.Timer).Pause)
}

// ResumeTimer handles POST /api/v1/timers/{id}/resume.
func (h *TimerHandler) ResumeTimer(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, (*timer.Timer).Resume)
}

func (h *TimerHandler) mutate(w http.ResponseWriter, r *http.Request, fn func(*timer.Timer)) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := h.hub.Call(r.Context(), func() { fn(t) }); err != nil {
		response.HandleError(w, err, middleware.RequestIDOrUnknown(r.Context()))
		return
	}
	response.JSON(w, http.StatusOK, t.Snapshot())
}

func (h *TimerHandler) lookup(w http.ResponseWriter, r *http.Request) (*timer.Timer, bool) {
	id := chi.URLParam(r, "id")
	t, ok := h.hub.Timers().Lookup(id)
	if !ok {
		response.HandleError(w, fmt.Errorf("timer %q: %w", id, response.ErrNotFound), middleware.RequestIDOrUnknown(r.Context()))
		return nil, false
	}
	return t, true
}
