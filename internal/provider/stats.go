package provider

import (
	"sync"
	"time"

	"dball/internal/state"
)

// Stats accumulates call outcomes for one provider.
type Stats struct {
	mu          sync.Mutex
	name        string
	calls       int
	successes   int
	totalTime   time.Duration
	lastSuccess *time.Time
	now         func() time.Time
}

// NewStats returns empty statistics for provider name.
func NewStats(name string) *Stats {
	return &Stats{name: name, now: time.Now}
}

// Observe records one call.
func (s *Stats) Observe(elapsed time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.totalTime += elapsed
	if ok {
		s.successes++
		now := s.now().UTC()
		s.lastSuccess = &now
	}
}

// APIStatus renders the statistics for the broadcast state. Average response
// time is in seconds.
func (s *Stats) APIStatus() state.APIStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := state.APIStatus{Provider: s.name}
	if s.lastSuccess != nil {
		t := *s.lastSuccess
		status.LastSuccess = &t
	}
	if s.calls > 0 {
		status.SuccessRate = float64(s.successes) / float64(s.calls)
		status.AverageResponseTime = (s.totalTime / time.Duration(s.calls)).Seconds()
	}
	return status
}
