package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dball/internal/draw"
	"dball/internal/logging"
	"dball/internal/state"
	"dball/internal/store"
)

// Refresh recomputes the broadcast snapshot from the store and publishes it.
func (s *Service) Refresh(ctx context.Context) (state.AppState, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	latest, err := s.store.LatestRecord(ctx)
	hasLatest := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return state.AppState{}, err
	}
	pending, err := s.store.PendingEntries(ctx)
	if err != nil {
		return state.AppState{}, err
	}
	totals, err := s.store.Totals(ctx)
	if err != nil {
		return state.AppState{}, err
	}
	var next string
	if hasLatest {
		next = s.periodAfter(latest)
	}
	now := s.now()
	nextDraw := draw.NextDrawTime(now)
	api := s.provider.APIStatus()
	uptime := uint64(now.Sub(s.started) / time.Second)

	return s.holder.Update(func(st *state.AppState) {
		st.CurrentPeriod = ""
		st.LatestTicket = nil
		st.LastDrawTime = nil
		if hasLatest {
			rec := latest
			drawTime := latest.DrawTime
			st.CurrentPeriod = latest.Period
			st.LatestTicket = &rec
			if !drawTime.IsZero() {
				st.LastDrawTime = &drawTime
			}
		}
		st.NextPeriod = next
		st.NextDrawTime = &nextDraw
		st.PendingTickets = pending
		st.UnprizeSpotsCount = totals.Unsettled
		st.TotalInvestment = totals.Investment
		st.TotalReturn = totals.Return
		st.APIStatus = api
		st.DaemonUptime = uptime
	}), nil
}

// publish refreshes after a mutation. A failed refresh does not fail the
// mutation that triggered it.
func (s *Service) publish(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil {
		logging.WarnWithContext(s.log(ctx), "state refresh failed", "state_refresh_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "subscribers may see stale state"),
			logging.String(logging.FieldErrorHint, "check the database file and permissions"))
	}
}

// periodAfter predicts the period following rec. A record drawn in an
// earlier calendar year than now rolls over to the first period of the
// current year.
func (s *Service) periodAfter(rec draw.Record) string {
	year, _, err := draw.ParsePeriod(rec.Period)
	if err != nil {
		return ""
	}
	if current := s.now().In(draw.DrawZone).Year(); current > year {
		return draw.FormatPeriod(current, 1)
	}
	next, err := draw.NextPeriod(rec.Period)
	if err != nil {
		return ""
	}
	return next
}

func (s *Service) setGeneration(status state.GenerationStatus, finished bool) {
	now := s.now().UTC()
	s.holder.Update(func(st *state.AppState) {
		st.GenerationStatus = status
		if finished {
			st.LastGenerationTime = &now
		}
	})
}

func wrapPeriod(period string, err error) error {
	return fmt.Errorf("period %s: %w", period, err)
}
