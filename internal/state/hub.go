package state

import (
	"context"
	"errors"
	"sync"
)

// ErrHubClosed is returned by Subscription.Next once the hub is closed.
var ErrHubClosed = errors.New("state: hub closed")

type hubEvent struct {
	seq   uint64
	state AppState
}

// Hub stores recent snapshots and wakes subscribers when new ones arrive.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []hubEvent
	nextSeq  uint64
	closed   bool
}

// NewHub constructs a bounded broadcast buffer.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	h := &Hub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish appends a snapshot. It never blocks on subscribers.
func (h *Hub) Publish(s AppState) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.nextSeq++
	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, hubEvent{seq: h.nextSeq, state: s.Clone()})
	h.cond.Broadcast()
}

// Close wakes every subscriber with ErrHubClosed.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.closed = true
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Subscribe returns a cursor positioned after the latest published snapshot.
// Earlier snapshots are not replayed.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	return &Subscription{hub: h, seen: h.nextSeq}
}

// Subscription reads snapshots published after it was created.
type Subscription struct {
	hub  *Hub
	seen uint64
}

// Next blocks until a snapshot newer than the last one returned is available.
// skipped reports snapshots that were overwritten before this subscriber read
// them.
func (s *Subscription) Next(ctx context.Context) (AppState, uint64, error) {
	h := s.hub
	stop := make(chan struct{})
	defer close(stop)
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.mu.Lock()
				h.cond.Broadcast()
				h.mu.Unlock()
			case <-stop:
			}
		}()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		if h.closed {
			return AppState{}, 0, ErrHubClosed
		}
		if err := ctx.Err(); err != nil {
			return AppState{}, 0, err
		}
		if h.nextSeq > s.seen && len(h.buffer) > 0 {
			first := h.buffer[0].seq
			var skipped uint64
			if s.seen+1 < first {
				skipped = first - (s.seen + 1)
				s.seen = first - 1
			}
			evt := h.buffer[s.seen+1-first]
			s.seen = evt.seq
			return evt.state.Clone(), skipped, nil
		}
		h.cond.Wait()
	}
}
