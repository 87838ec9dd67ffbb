package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/tickbus/tickbus/pkg/api/middleware"
	"github.com/tickbus/tickbus/pkg/api/response"
	"github.com/tickbus/tickbus/pkg/fsm"
	"github.com/tickbus/tickbus/pkg/hub"
)

// MachineHandler exposes the state machines loaded at startup.
type MachineHandler struct {
	hub      *hub.Hub
	machines map[string]*fsm.Machine
	names    []string
}

// NewMachineHandler creates a machine handler. Machines are keyed by name;
// a later machine with the same name replaces an earlier one.
func NewMachineHandler(h *hub.Hub, machines ...*fsm.Machine) *MachineHandler {
	mh := &MachineHandler{hub: h, machines: make(map[string]*fsm.Machine, len(machines))}
	for _, m := range machines {
		mh.machines[m.Name()] = m
	}
	for name := range mh.machines {
		mh.names = append(mh.names, name)
	}
	sort.Strings(mh.names)
	return mh
}

// SwitchRequest is the body of a switch call.
type SwitchRequest struct {
	State string `json:"state"`
}

// ListMachines handles GET /api/v1/machines.
func (h *MachineHandler) ListMachines(w http.ResponseWriter, r *http.Request) {
	out := make([]fsm.Info, 0, len(h.names))
	for _, name := range h.names {
		out = append(out, h.machines[name].Info())
	}
	response.List(w, out)
}

// GetMachine handles GET /api/v1/machines/{name}.
func (h *MachineHandler) GetMachine(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}
	response.JSON(w, http.StatusOK, m.Info())
}

// SwitchMachine handles POST /api/v1/machines/{name}/switch.
func (h *MachineHandler) SwitchMachine(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestIDOrUnknown(r.Context())
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req SwitchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil || req.State == "" {
		response.HandleError(w, fmt.Errorf("body must name a state: %w", response.ErrInvalidInput), requestID)
		return
	}
	if !m.HasState(req.State) {
		response.HandleError(w, &fsm.UnknownStateError{Machine: m.Name(), State: req.State}, requestID)
		return
	}

	var switched bool
	if err := h.hub.Call(r.Context(), func() { switched = m.SwitchTo(req.State) }); err != nil {
		response.HandleError(w, err, requestID)
		return
	}
	if !switched {
		response.HandleError(w, fmt.Errorf("no transition from %q to %q: %w", m.Current(), req.State, response.ErrConflict), requestID)
		return
	}
	response.JSON(w, http.StatusOK, m.Info())
}

// MachinePath handles GET /api/v1/machines/{name}/path?from=&to=. An empty
// from starts at the current state.
func (h *MachineHandler) MachinePath(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestIDOrUnknown(r.Context())
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" {
		from = m.Current()
	}
	if from == "" || to == "" {
		response.HandleError(w, fmt.Errorf("from and to are required: %w", response.ErrInvalidInput), requestID)
		return
	}
	path, found := m.Path(from, to)
	if !found {
		response.HandleError(w, fmt.Errorf("no path from %q to %q: %w", from, to, response.ErrNotFound), requestID)
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{"from": from, "to": to, "path": path})
}

func (h *MachineHandler) lookup(w http.ResponseWriter, r *http.Request) (*fsm.Machine, bool) {
	name := chi.URLParam(r, "name")
	m, ok := h.machines[name]
	if !ok {
		response.HandleError(w, fmt.Errorf("machine %q: %w", name, response.ErrNotFound), middleware.RequestIDOrUnknown(r.Context()))
		return nil, false
	}
	return m, true
}
