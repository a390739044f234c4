// Package statewatch follows the state snapshot cached by a client session and
// lets callers wait for changes or for a condition to hold.
package statewatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dball/internal/logging"
	"dball/internal/state"
)

// Source exposes a cached snapshot and a channel closed on its next change.
// ipc.Client satisfies it.
type Source interface {
	StateWatch() (snapshot state.AppState, ok bool, version uint64, changed <-chan struct{})
}

// connectionReporter is implemented by sources that know whether their
// connection is up.
type connectionReporter interface {
	Connected() bool
}

// EventKind distinguishes entries in an event stream.
type EventKind int

const (
	EventUpdated EventKind = iota + 1
	EventCleared
)

func (k EventKind) String() string {
	switch k {
	case EventUpdated:
		return "updated"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Event reports a change of the subscriber's current state. State is set for
// EventUpdated.
type Event struct {
	Kind  EventKind
	State state.AppState
}

// ConnectionStatus values reported by Stats.
const (
	ConnectionConnected    = "connected"
	ConnectionDisconnected = "disconnected"
)

// Stats summarizes the subscriber's current view.
type Stats struct {
	HasState          bool
	LastUpdate        time.Time
	DaemonUptime      time.Duration
	UnprizeSpotsCount int
	APIProvider       string
	ConnectionStatus  string
}

// Subscriber mirrors a Source. Changes are detected by last_update so repeated
// deliveries of the same snapshot are ignored.
type Subscriber struct {
	source Source
	logger *slog.Logger

	mu      sync.Mutex
	current *state.AppState
	version uint64
	changed chan struct{}
}

// New returns a subscriber over source. Call Run to start following it.
func New(source Source, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		source:  source,
		logger:  logging.NewComponentLogger(logger, "statewatch"),
		changed: make(chan struct{}),
	}
}

// Run copies every new snapshot from the source until ctx ends.
func (s *Subscriber) Run(ctx context.Context) error {
	s.logger.Debug("state subscription started")
	for {
		snapshot, ok, _, changed := s.source.StateWatch()
		if ok {
			s.observe(snapshot)
		}
		select {
		case <-ctx.Done():
			s.logger.Debug("state subscription stopped")
			return ctx.Err()
		case <-changed:
		}
	}
}

func (s *Subscriber) observe(snapshot state.AppState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && !snapshot.LastUpdate.After(s.current.LastUpdate) {
		return
	}
	next := snapshot.Clone()
	s.current = &next
	s.bumpLocked()
	s.logger.Debug("state updated from daemon", logging.String("last_update", snapshot.LastUpdate.Format(time.RFC3339Nano)))
}

func (s *Subscriber) bumpLocked() {
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Subscriber) watch() (*state.AppState, uint64, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, s.version, s.changed
	}
	out := s.current.Clone()
	return &out, s.version, s.changed
}

// Current returns the latest snapshot, if any.
func (s *Subscriber) Current() (state.AppState, bool) {
	cur, _, _ := s.watch()
	if cur == nil {
		return state.AppState{}, false
	}
	return *cur, true
}

// Clear forgets the current snapshot and notifies waiters.
func (s *Subscriber) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	s.current = nil
	s.bumpLocked()
	s.logger.Debug("state cleared")
}

// WaitForChange blocks until the state changes after the call and returns the
// new state; ok is false if the change cleared it.
func (s *Subscriber) WaitForChange(ctx context.Context) (state.AppState, bool, error) {
	_, _, changed := s.watch()
	select {
	case <-ctx.Done():
		return state.AppState{}, false, ctx.Err()
	case <-changed:
	}
	cur, ok := s.Current()
	return cur, ok, nil
}

// WaitFor blocks until a snapshot satisfying pred is current, checking the
// present state first.
func (s *Subscriber) WaitFor(ctx context.Context, pred func(state.AppState) bool) (state.AppState, error) {
	for {
		cur, _, changed := s.watch()
		if cur != nil && pred(*cur) {
			return *cur, nil
		}
		select {
		case <-ctx.Done():
			return state.AppState{}, ctx.Err()
		case <-changed:
		}
	}
}

// Events streams changes until ctx ends. Rapid changes coalesce: a slow reader
// sees the newest state rather than every intermediate one.
func (s *Subscriber) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)
	_, seen, changed := s.watch()
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
			}
			var cur *state.AppState
			var version uint64
			cur, version, changed = s.watch()
			if version == seen {
				continue
			}
			seen = version
			evt := Event{Kind: EventCleared}
			if cur != nil {
				evt = Event{Kind: EventUpdated, State: *cur}
			}
			select {
			case <-ctx.Done():
				return
			case out <- evt:
			}
		}
	}()
	return out
}

// Stats summarizes the current state and the source's connection.
func (s *Subscriber) Stats() Stats {
	cur, _, _ := s.watch()
	stats := Stats{ConnectionStatus: ConnectionDisconnected}
	if cur != nil {
		stats.HasState = true
		stats.LastUpdate = cur.LastUpdate
		stats.DaemonUptime = time.Duration(cur.DaemonUptime) * time.Second
		stats.UnprizeSpotsCount = cur.UnprizeSpotsCount
		stats.APIProvider = cur.APIStatus.Provider
		stats.ConnectionStatus = ConnectionConnected
	}
	if r, ok := s.source.(connectionReporter); ok {
		if r.Connected() {
			stats.ConnectionStatus = ConnectionConnected
		} else {
			stats.ConnectionStatus = ConnectionDisconnected
		}
	}
	return stats
}
