package state

import (
	"sync"
	"time"
)

// Holder guards the daemon's authoritative snapshot.
type Holder struct {
	mu    sync.RWMutex
	state AppState
	hub   *Hub
	now   func() time.Time
}

// NewHolder seeds the holder with an empty snapshot. hub may be nil.
func NewHolder(hub *Hub) *Holder {
	return NewHolderWithClock(hub, time.Now)
}

// NewHolderWithClock is NewHolder with an injectable clock.
func NewHolderWithClock(hub *Hub, now func() time.Time) *Holder {
	if now == nil {
		now = time.Now
	}
	return &Holder{state: New(now()), hub: hub, now: now}
}

// Snapshot returns a deep copy of the current state.
func (h *Holder) Snapshot() AppState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.Clone()
}

// Hub returns the broadcast hub, possibly nil.
func (h *Holder) Hub() *Hub {
	return h.hub
}

// Update applies fn to a copy of the state, stamps LastUpdate strictly after
// the previous value, stores it and publishes it.
func (h *Holder) Update(fn func(*AppState)) AppState {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.state.Clone()
	if fn != nil {
		fn(&next)
	}
	stamp := h.now().UTC()
	if !stamp.After(h.state.LastUpdate) {
		stamp = h.state.LastUpdate.Add(time.Nanosecond)
	}
	next.LastUpdate = stamp
	h.state = next
	h.hub.Publish(next)
	return next.Clone()
}
