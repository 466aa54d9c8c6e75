package schedule

import (
	"sync"
	"time"
)

// Registry owns the live one-shot timers, one per task id.
//
// Arm upserts: scheduling an id that already has a timer cancels the old one
// first, so at most one timer per task can ever be live. A per-id version
// counter makes callbacks from replaced or canceled timers no-ops even when
// they were already in flight.
type Registry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	vers   map[string]uint64
}

func NewRegistry() *Registry {
	return &Registry{
		timers: map[string]*time.Timer{},
		vers:   map[string]uint64{},
	}
}

// Arm schedules fire to run at the given instant, replacing any existing
// timer for the id. Past-due instants fire immediately.
func (r *Registry) Arm(id string, at time.Time, fire func()) {
	r.mu.Lock()
	if t, ok := r.timers[id]; ok {
		_ = t.Stop()
		delete(r.timers, id)
	}
	ver := r.vers[id] + 1
	r.vers[id] = ver

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	localID := id
	localVer := ver
	timer := time.AfterFunc(delay, func() {
		r.mu.Lock()
		if r.vers[localID] != localVer {
			// Replaced or canceled after this callback was queued.
			r.mu.Unlock()
			return
		}
		delete(r.timers, localID)
		r.mu.Unlock()
		fire()
	})
	r.timers[id] = timer
	r.mu.Unlock()
}

// Cancel stops and removes the timer for id. It reports whether one existed.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[id]
	if !ok {
		return false
	}
	_ = t.Stop()
	delete(r.timers, id)
	// Invalidate a callback that may already be past Stop().
	r.vers[id]++
	return true
}

// Armed reports whether id currently has a live timer.
func (r *Registry) Armed(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[id]
	return ok
}

// Len returns the number of live timers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// StopAll cancels every live timer. Used on shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.timers {
		_ = t.Stop()
		r.vers[id]++
	}
	r.timers = map[string]*time.Timer{}
}
