package state

import (
	"slices"
	"time"

	"dball/internal/draw"
)

// GenerationStatus tracks the most recent batch generation.
type GenerationStatus string

const (
	GenerationIdle       GenerationStatus = "Idle"
	GenerationGenerating GenerationStatus = "Generating"
	GenerationGenerated  GenerationStatus = "Generated"
	GenerationError      GenerationStatus = "Error"
)

// APIStatus summarizes calls made to the data provider.
type APIStatus struct {
	Provider            string     `json:"api_provider"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	SuccessRate         float64    `json:"success_rate"`
	AverageResponseTime float64    `json:"average_response_time"`
}

// AppState is the snapshot broadcast to clients. LastUpdate increases on every
// change and is the only field clients compare.
type AppState struct {
	CurrentPeriod      string           `json:"current_period"`
	NextPeriod         string           `json:"next_period"`
	LastDrawTime       *time.Time       `json:"last_draw_time,omitempty"`
	NextDrawTime       *time.Time       `json:"next_draw_time,omitempty"`
	LatestTicket       *draw.Record     `json:"latest_ticket,omitempty"`
	PendingTickets     []draw.Entry     `json:"pending_tickets"`
	UnprizeSpotsCount  int              `json:"unprize_spots_count"`
	TotalInvestment    int64            `json:"total_investment"`
	TotalReturn        int64            `json:"total_return"`
	APIStatus          APIStatus        `json:"api_status"`
	LastUpdate         time.Time        `json:"last_update"`
	DaemonUptime       uint64           `json:"daemon_uptime"`
	GenerationStatus   GenerationStatus `json:"generation_status"`
	LastGenerationTime *time.Time       `json:"last_generation_time,omitempty"`
}

// New returns an empty snapshot stamped with now.
func New(now time.Time) AppState {
	return AppState{
		PendingTickets:   []draw.Entry{},
		GenerationStatus: GenerationIdle,
		LastUpdate:       now.UTC(),
	}
}

// Clone returns a deep copy.
func (s AppState) Clone() AppState {
	out := s
	out.LastDrawTime = cloneTime(s.LastDrawTime)
	out.NextDrawTime = cloneTime(s.NextDrawTime)
	out.LastGenerationTime = cloneTime(s.LastGenerationTime)
	out.APIStatus.LastSuccess = cloneTime(s.APIStatus.LastSuccess)
	if s.LatestTicket != nil {
		rec := *s.LatestTicket
		out.LatestTicket = &rec
	}
	if s.PendingTickets != nil {
		out.PendingTickets = slices.Clone(s.PendingTickets)
	}
	return out
}

// NewerThan reports whether s supersedes other.
func (s AppState) NewerThan(other AppState) bool {
	return s.LastUpdate.After(other.LastUpdate)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
