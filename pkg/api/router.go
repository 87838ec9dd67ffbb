// Package api provides the debug HTTP server.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tickbus/tickbus/config"
	"github.com/tickbus/tickbus/pkg/api/handlers"
	"github.com/tickbus/tickbus/pkg/api/middleware"
	"github.com/tickbus/tickbus/pkg/logger"
)

// Handlers holds all HTTP handlers. Nil handlers leave their routes
// unregistered.
type Handlers struct {
	// Health handles health check endpoints
	Health *handlers.HealthHandler

	Signals  *handlers.SignalHandler
	Timers   *handlers.TimerHandler
	Machines *handlers.MachineHandler

	// Tap streams emissions on /ws/signals.
	Tap *handlers.SignalTap

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder

	// MetricsHandler serves the scrape endpoint when metrics share the API port.
	MetricsHandler http.Handler
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	}
	if h.Metrics != nil {
		r.Use(middleware.Metrics(h.Metrics))
	}
	r.Use(middleware.CORS(cfg.Server.CORS))
	r.Use(middleware.Timeout(cfg.Server.HTTP.RequestTimeout))

	RegisterRoutes(r, cfg, h)
	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, cfg *config.Config, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		if h.Signals != nil {
			r.Route("/signals", func(r chi.Router) {
				r.Get("/", h.Signals.ListSignals)
				r.Get("/{name}", h.Signals.GetSignal)
				r.Post("/{name}/emit", h.Signals.EmitSignal)
			})
		}

		if h.Timers != nil {
			r.Route("/timers", func(r chi.Router) {
				r.Get("/", h.Timers.ListTimers)
				r.Get("/{id}", h.Timers.GetTimer)
				r.Delete("/{id}", h.Timers.ClearTimer)
				r.Post("/{id}/complete", h.Timers.CompleteTimer)
				r.Post("/{id}/pause", h.Timers.PauseTimer)
				r.Post("/{id}/resume", h.Timers.ResumeTimer)
			})
		}

		if h.Machines != nil {
			r.Route("/machines", func(r chi.Router) {
				r.Get("/", h.Machines.ListMachines)
				r.Get("/{name}", h.Machines.GetMachine)
				r.Post("/{name}/switch", h.Machines.SwitchMachine)
				r.Get("/{name}/path", h.Machines.MachinePath)
			})
		}
	})

	// Health check routes (not versioned)
	if h.Health != nil {
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/status", h.Health.Status)
	}

	if h.Tap != nil {
		r.Handle("/ws/signals", h.Tap)
	}

	if h.MetricsHandler != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, h.MetricsHandler)
	}
}
