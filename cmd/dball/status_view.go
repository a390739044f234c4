package main

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"dball/internal/draw"
	"dball/internal/state"
)

type daemonView struct {
	Running bool   `json:"running" yaml:"running"`
	PID     int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Socket  string `json:"socket" yaml:"socket"`
	HTTPAPI string `json:"http_api,omitempty" yaml:"http_api,omitempty"`
}

type apiView struct {
	Provider            string  `json:"provider" yaml:"provider"`
	LastSuccess         string  `json:"last_success,omitempty" yaml:"last_success,omitempty"`
	SuccessRate         float64 `json:"success_rate" yaml:"success_rate"`
	AverageResponseTime float64 `json:"average_response_time" yaml:"average_response_time"`
}

type stateView struct {
	CurrentPeriod      string  `json:"current_period" yaml:"current_period"`
	NextPeriod         string  `json:"next_period" yaml:"next_period"`
	LatestNumbers      string  `json:"latest_numbers,omitempty" yaml:"latest_numbers,omitempty"`
	LastDrawTime       string  `json:"last_draw_time,omitempty" yaml:"last_draw_time,omitempty"`
	NextDrawTime       string  `json:"next_draw_time,omitempty" yaml:"next_draw_time,omitempty"`
	PendingEntries     int     `json:"pending_entries" yaml:"pending_entries"`
	UnscoredEntries    int     `json:"unscored_entries" yaml:"unscored_entries"`
	TotalInvestment    int64   `json:"total_investment" yaml:"total_investment"`
	TotalReturn        int64   `json:"total_return" yaml:"total_return"`
	GenerationStatus   string  `json:"generation_status" yaml:"generation_status"`
	LastGenerationTime string  `json:"last_generation_time,omitempty" yaml:"last_generation_time,omitempty"`
	DaemonUptime       string  `json:"daemon_uptime" yaml:"daemon_uptime"`
	LastUpdate         string  `json:"last_update" yaml:"last_update"`
	API                apiView `json:"api" yaml:"api"`

	latest *draw.Numbers
}

type statusView struct {
	Daemon daemonView `json:"daemon" yaml:"daemon"`
	State  *stateView `json:"state,omitempty" yaml:"state,omitempty"`
}

func newStateView(s state.AppState) *stateView {
	v := &stateView{
		CurrentPeriod:      s.CurrentPeriod,
		NextPeriod:         s.NextPeriod,
		LastDrawTime:       formatOptionalTime(s.LastDrawTime),
		NextDrawTime:       formatOptionalTime(s.NextDrawTime),
		PendingEntries:     len(s.PendingTickets),
		UnscoredEntries:    s.UnprizeSpotsCount,
		TotalInvestment:    s.TotalInvestment,
		TotalReturn:        s.TotalReturn,
		GenerationStatus:   string(s.GenerationStatus),
		LastGenerationTime: formatOptionalTime(s.LastGenerationTime),
		DaemonUptime:       (time.Duration(s.DaemonUptime) * time.Second).String(),
		LastUpdate:         s.LastUpdate.Local().Format(time.RFC3339),
		API: apiView{
			Provider:            s.APIStatus.Provider,
			LastSuccess:         formatOptionalTime(s.APIStatus.LastSuccess),
			SuccessRate:         s.APIStatus.SuccessRate,
			AverageResponseTime: s.APIStatus.AverageResponseTime,
		},
	}
	if s.LatestTicket != nil {
		v.LatestNumbers = s.LatestTicket.Numbers.String()
		v.latest = &s.LatestTicket.Numbers
	}
	return v
}

func (v *stateView) rows(p palette) []table.Row {
	latest := orDash(v.LatestNumbers)
	if v.latest != nil {
		red, blue := ballCells(*v.latest, p)
		latest = red + " + " + blue
	}
	return []table.Row{
		{"Current period", orDash(v.CurrentPeriod)},
		{"Latest numbers", latest},
		{"Last draw", orDash(v.LastDrawTime)},
		{"Next period", orDash(v.NextPeriod)},
		{"Next draw", orDash(v.NextDrawTime)},
		{"Pending entries", v.PendingEntries},
		{"Unscored entries", v.UnscoredEntries},
		{"Investment", v.TotalInvestment},
		{"Return", v.TotalReturn},
		{"Generation", v.GenerationStatus},
		{"Last generated", orDash(v.LastGenerationTime)},
		{"Uptime", v.DaemonUptime},
	}
}

func formatOptionalTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Local().Format(time.RFC3339)
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
