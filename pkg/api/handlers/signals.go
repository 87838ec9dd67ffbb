package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tickbus/tickbus/pkg/api/middleware"
	"github.com/tickbus/tickbus/pkg/api/response"
	"github.com/tickbus/tickbus/pkg/hub"
	"github.com/tickbus/tickbus/pkg/logger"
	"github.com/tickbus/tickbus/pkg/signal"
)

const maxEmitBody = 1 << 20

// SignalHandler lists and emits signals on the hub bus.
type SignalHandler struct {
	hub *hub.Hub
	log logger.Logger
}

// NewSignalHandler creates a signal handler.
func NewSignalHandler(h *hub.Hub, log logger.Logger) *SignalHandler {
	return &SignalHandler{hub: h, log: log}
}

// EmitRequest is the optional body of an emit call. A present payload is
// delivered as json.RawMessage, so the signal must be untyped or declared
// with that payload type.
type EmitRequest struct {
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EmitResponse reports a completed emission.
type EmitResponse struct {
	Signal      string `json:"signal"`
	Subscribers int    `json:"subscribers"`
	WithPayload bool   `json:"with_payload"`
}

// ListSignals handles GET /api/v1/signals.
func (h *SignalHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	response.List(w, h.hub.Bus().Signals())
}

// GetSignal handles GET /api/v1/signals/{name}.
func (h *SignalHandler) GetSignal(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	for _, info := range h.hub.Bus().Signals() {
		if info.Name == name {
			response.JSON(w, http.StatusOK, info)
			return
		}
	}
	response.HandleError(w, fmt.Errorf("signal %q: %w", name, response.ErrNotFound), middleware.RequestIDOrUnknown(r.Context()))
}

// EmitSignal handles POST /api/v1/signals/{name}/emit. The emission runs
// on the frame goroutine and the call returns once handlers have run.
func (h *SignalHandler) EmitSignal(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestIDOrUnknown(r.Context())
	name := chi.URLParam(r, "name")
	bus := h.hub.Bus()

	if !bus.HasSignal(name) {
		response.HandleError(w, fmt.Errorf("signal %q: %w", name, response.ErrNotFound), requestID)
		return
	}

	var req EmitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxEmitBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.HandleError(w, fmt.Errorf("decode emit body: %w: %v", response.ErrInvalidInput, err), requestID)
		return
	}
	withPayload := len(req.Payload) > 0

	var emitErr error
	err := h.hub.Call(r.Context(), func() {
		if !withPayload {
			bus.Emit(name)
			return
		}
		emitErr = signal.Emit(bus, signal.NewKey[json.RawMessage](name), req.Payload)
	})
	if err == nil {
		err = emitErr
	}
	if err != nil {
		h.log.WarnContext(r.Context(), "emit via api failed", "signal", name, "error", err)
		response.HandleError(w, err, requestID)
		return
	}

	response.JSON(w, http.StatusOK, EmitResponse{
		Signal:      name,
		Subscribers: bus.Subscribers(name),
		WithPayload: withPayload,
	})
}
