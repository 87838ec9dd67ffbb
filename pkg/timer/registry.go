package timer

import (
	"sort"
	"sync"
)

// Registry tracks timers across schedulers so any timer can be cleared by
// handle without knowing which scheduler owns it.
type Registry struct {
	mu     sync.RWMutex
	timers map[string]*Timer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{timers: make(map[string]*Timer)}
}

func (r *Registry) add(t *Timer) {
	r.mu.Lock()
	r.timers[t.id] = t
	r.mu.Unlock()
}

func (r *Registry) remove(t *Timer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.timers[t.id]; !ok || cur != t {
		return false
	}
	delete(r.timers, t.id)
	return true
}

// ClearInstance clears t through its owning scheduler, or drops it from the
// registry when no scheduler owns it any more.
func (r *Registry) ClearInstance(t *Timer) bool {
	if t == nil {
		return false
	}
	if owner := t.owner.Load(); owner != nil {
		return owner.Clear(t)
	}
	return r.remove(t)
}

// Lookup finds a timer by id.
func (r *Registry) Lookup(id string) (*Timer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.timers[id]
	return t, ok
}

// Timers returns every tracked timer in creation order.
func (r *Registry) Timers() []*Timer {
	r.mu.RLock()
	out := make([]*Timer, 0, len(r.timers))
	for _, t := range r.timers {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.timers)
}

// Drain clears every tracked timer and returns how many were cleared.
func (r *Registry) Drain() int {
	n := 0
	for _, t := range r.Timers() {
		if r.ClearInstance(t) {
			n++
		}
	}
	return n
}
