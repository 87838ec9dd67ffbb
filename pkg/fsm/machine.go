// Package fsm implements a state machine over a directed graph of named
// states. Every structural change and every switch is announced on a signal
// bus so that the owner can react in order.
package fsm

import (
	"fmt"
	"slices"
	"sync"

	"github.com/tickbus/tickbus/pkg/logger"
	"github.com/tickbus/tickbus/pkg/signal"
)

// Machine is a directed state graph with a current state, the state before
// it and a stack of queued next states. All methods are safe for concurrent
// use; signals are emitted with no lock held.
type Machine struct {
	name   string
	bus    *signal.Bus
	logger logger.Logger

	mu       sync.RWMutex
	order    []string
	edges    map[string][]string // state -> states it can switch to, in connect order
	current  string
	previous string
	stack    []string
}

// Option configures a Machine.
type Option func(*Machine)

// WithName labels the machine in its events and logs.
func WithName(name string) Option {
	return func(m *Machine) {
		if name != "" {
			m.name = name
		}
	}
}

// WithBus makes the machine emit on b instead of a private bus.
func WithBus(b *signal.Bus) Option {
	return func(m *Machine) {
		if b != nil {
			m.bus = b
		}
	}
}

// WithLogger sets the machine logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates an empty machine. It fails when an injected bus already
// carries one of the fsm signals with another payload type.
func New(opts ...Option) (*Machine, error) {
	m := &Machine{
		name:  "fsm",
		edges: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Global()
	}
	m.logger = m.logger.With("component", "fsm", "machine", m.name)
	if m.bus == nil {
		m.bus = signal.NewBus(signal.WithName("fsm:"+m.name), signal.WithLogger(m.logger))
	}
	if err := defineSignals(m.bus); err != nil {
		return nil, fmt.Errorf("machine %s: %w", m.name, err)
	}
	return m, nil
}

// Name returns the machine label.
func (m *Machine) Name() string { return m.name }

// Bus returns the bus the machine emits on.
func (m *Machine) Bus() *signal.Bus { return m.bus }

// CreateState adds an unconnected state. It reports false for an empty or
// existing name.
func (m *Machine) CreateState(state string) bool {
	if state == "" {
		return false
	}
	m.mu.Lock()
	if _, ok := m.edges[state]; ok {
		m.mu.Unlock()
		return false
	}
	m.edges[state] = nil
	m.order = append(m.order, state)
	m.mu.Unlock()

	emit(m, KeyStateCreate, StateEvent{Machine: m.name, State: state})
	return true
}

// CreateStates creates every state and reports whether all were new.
// An empty list reports false.
func (m *Machine) CreateStates(states ...string) bool {
	if len(states) == 0 {
		return false
	}
	ok := true
	for _, s := range states {
		if !m.CreateState(s) {
			ok = false
		}
	}
	return ok
}

// DeleteState removes a state together with its incoming and outgoing
// transitions and any queued entries for it. When it was the current or
// previous state that slot becomes empty.
func (m *Machine) DeleteState(state string) bool {
	m.mu.Lock()
	if _, ok := m.edges[state]; !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.edges, state)
	m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == state })
	for from, tos := range m.edges {
		m.edges[from] = slices.DeleteFunc(tos, func(s string) bool { return s == state })
	}
	m.stack = slices.DeleteFunc(m.stack, func(s string) bool { return s == state })
	if m.current == state {
		m.current = ""
	}
	if m.previous == state {
		m.previous = ""
	}
	m.mu.Unlock()

	emit(m, KeyStateDelete, StateEvent{Machine: m.name, State: state})
	return true
}

// HasState reports whether state exists.
func (m *Machine) HasState(state string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.edges[state]
	return ok
}

// ConnectState adds the transition from -> to. It reports false when either
// state is missing or the transition already exists. Self transitions are allowed.
func (m *Machine) ConnectState(from, to string) bool {
	m.mu.Lock()
	tos, okFrom := m.edges[from]
	_, okTo := m.edges[to]
	if !okFrom || !okTo || slices.Contains(tos, to) {
		m.mu.Unlock()
		return false
	}
	m.edges[from] = append(tos, to)
	m.mu.Unlock()

	emit(m, KeyStateConnect, EdgeEvent{Machine: m.name, From: from, To: to})
	return true
}

// ConnectStates connects from to every state in tos and reports whether
// every transition was added.
func (m *Machine) ConnectStates(from string, tos ...string) bool {
	if len(tos) == 0 {
		return false
	}
	ok := true
	for _, to := range tos {
		if !m.ConnectState(from, to) {
			ok = false
		}
	}
	return ok
}

// ConnectMany connects every state in froms to every state in tos.
func (m *Machine) ConnectMany(froms, tos []string) bool {
	if len(froms) == 0 || len(tos) == 0 {
		return false
	}
	ok := true
	for _, from := range froms {
		if !m.ConnectStates(from, tos...) {
			ok = false
		}
	}
	return ok
}

// InterConnect connects every listed state to every other listed state in
// both directions. No self transitions are added.
func (m *Machine) InterConnect(states ...string) bool {
	if len(states) < 2 {
		return false
	}
	ok := true
	for _, a := range states {
		for _, b := range states {
			if a == b {
				continue
			}
			if !m.ConnectState(a, b) {
				ok = false
			}
		}
	}
	return ok
}

// DisconnectState removes the transition from -> to.
func (m *Machine) DisconnectState(from, to string) bool {
	m.mu.Lock()
	tos, ok := m.edges[from]
	idx := slices.Index(tos, to)
	if !ok || idx < 0 {
		m.mu.Unlock()
		return false
	}
	m.edges[from] = slices.Delete(slices.Clone(tos), idx, idx+1)
	m.mu.Unlock()

	emit(m, KeyStateDisconnect, EdgeEvent{Machine: m.name, From: from, To: to})
	return true
}

// DisconnectStates removes the transitions from -> each of tos.
func (m *Machine) DisconnectStates(from string, tos ...string) bool {
	if len(tos) == 0 {
		return false
	}
	ok := true
	for _, to := range tos {
		if !m.DisconnectState(from, to) {
			ok = false
		}
	}
	return ok
}

// InterDisconnect removes the transitions between every pair of listed states.
func (m *Machine) InterDisconnect(states ...string) bool {
	if len(states) < 2 {
		return false
	}
	ok := true
	for _, a := range states {
		for _, b := range states {
			if a == b {
				continue
			}
			if !m.DisconnectState(a, b) {
				ok = false
			}
		}
	}
	return ok
}

// SwitchTo makes state current. It is allowed when there is no current state
// or the current state has a transition to it; the old current state becomes
// the previous one.
func (m *Machine) SwitchTo(state string) bool {
	m.mu.Lock()
	if !m.canSwitchLocked(state, true) {
		m.mu.Unlock()
		return false
	}
	from := m.current
	m.previous = from
	m.current = state
	m.mu.Unlock()

	m.logger.Debug("state changed", "from", from, "to", state)
	emit(m, KeyStateChange, ChangeEvent{Machine: m.name, From: from, To: state})
	return true
}

// SwitchToPrevious switches back to the previous state when a transition allows it.
func (m *Machine) SwitchToPrevious() bool {
	m.mu.RLock()
	prev := m.previous
	m.mu.RUnlock()
	if prev == "" {
		return false
	}
	return m.SwitchTo(prev)
}

// CanSwitchTo reports whether the current state has a transition to state.
// It is false when there is no current state.
func (m *Machine) CanSwitchTo(state string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.canSwitchLocked(state, false)
}

func (m *Machine) canSwitchLocked(state string, allowInitial bool) bool {
	if _, ok := m.edges[state]; !ok {
		return false
	}
	if m.current == "" {
		return allowInitial
	}
	return slices.Contains(m.edges[m.current], state)
}

// Push queues state on the next-state stack. Unknown states are ignored.
func (m *Machine) Push(state string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.edges[state]; !ok {
		return false
	}
	m.stack = append(m.stack, state)
	return true
}

// SwitchToNext pops the most recently pushed state and switches to it. The
// entry is consumed even when the switch is not allowed.
func (m *Machine) SwitchToNext() bool {
	m.mu.Lock()
	if len(m.stack) == 0 {
		m.mu.Unlock()
		return false
	}
	next := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	m.mu.Unlock()

	return m.SwitchTo(next)
}

// Current returns the current state, or "" before the first switch.
func (m *Machine) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Previous returns the state before the current one.
func (m *Machine) Previous() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.previous
}

// Next returns the top of the next-state stack without popping it.
func (m *Machine) Next() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.stack) == 0 {
		return ""
	}
	return m.stack[len(m.stack)-1]
}

func (m *Machine) IsCurrent(state string) bool  { return state != "" && m.Current() == state }
func (m *Machine) IsPrevious(state string) bool { return state != "" && m.Previous() == state }
func (m *Machine) IsNext(state string) bool     { return state != "" && m.Next() == state }

// States returns the state names in creation order.
func (m *Machine) States() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

// Edges returns the states reachable from state in one switch.
func (m *Machine) Edges(state string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.edges[state])
}

// Path returns the shortest switch sequence from -> to, both included.
func (m *Machine) Path(from, to string) ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.edges[from]; !ok {
		return nil, false
	}
	if _, ok := m.edges[to]; !ok {
		return nil, false
	}
	if from == to {
		return []string{from}, true
	}

	parent := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range m.edges[cur] {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = cur
			if next == to {
				path := []string{to}
				for p := cur; p != from; p = parent[p] {
					path = append(path, p)
				}
				path = append(path, from)
				slices.Reverse(path)
				return path, true
			}
			queue = append(queue, next)
		}
	}
	return nil, false
}

// Info is a point-in-time view of a machine.
type Info struct {
	Name     string              `json:"name"`
	Current  string              `json:"current"`
	Previous string              `json:"previous"`
	Next     string              `json:"next"`
	States   []string            `json:"states"`
	Edges    map[string][]string `json:"edges"`
}

// Info returns the machine's current state and graph.
func (m *Machine) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := Info{
		Name:     m.name,
		Current:  m.current,
		Previous: m.previous,
		States:   slices.Clone(m.order),
		Edges:    make(map[string][]string, len(m.edges)),
	}
	if len(m.stack) > 0 {
		info.Next = m.stack[len(m.stack)-1]
	}
	for s, tos := range m.edges {
		info.Edges[s] = append([]string{}, tos...)
	}
	return info
}

func emit[T any](m *Machine, key signal.Key[T], payload T) {
	if err := signal.Emit(m.bus, key, payload); err != nil {
		m.logger.Warn("fsm event dropped", "signal", key.Name(), "error", err)
	}
}
