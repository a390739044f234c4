package service

import (
	"context"
	"errors"
	"fmt"

	"dball/internal/draw"
	"dball/internal/logging"
	"dball/internal/provider"
	"dball/internal/state"
	"dball/internal/store"
)

// UpdatedResult answers UpdateAllPendingEntries.
type UpdatedResult struct {
	Updated int `json:"updated"`
}

// DeprecatedResult answers DeprecateLastBatch.
type DeprecatedResult struct {
	Deprecated int `json:"deprecated"`
}

// UpdateAllPendingEntries scores every pending entry whose period has a
// result. Periods not drawn yet are left pending.
func (s *Service) UpdateAllPendingEntries(ctx context.Context) (UpdatedResult, error) {
	pending, err := s.store.PendingEntries(ctx)
	if err != nil {
		return UpdatedResult{}, err
	}

	var (
		result  UpdatedResult
		errs    []error
		records = make(map[string]*draw.Record)
	)
	for _, entry := range pending {
		rec, seen := records[entry.Period]
		if !seen {
			rec, err = s.resultFor(ctx, entry.Period)
			if err != nil {
				errs = append(errs, wrapPeriod(entry.Period, err))
			}
			records[entry.Period] = rec
		}
		if rec == nil {
			continue
		}
		level := draw.PrizeLevel(entry.Numbers, rec.Numbers)
		if err := s.store.SetPrizeLevel(ctx, entry.ID, level); err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", entry.ID, err))
			continue
		}
		result.Updated++
	}
	if result.Updated > 0 {
		s.log(ctx).Info("scored pending entries", logging.Int("updated", result.Updated))
	}
	s.publish(ctx)
	return result, errors.Join(errs...)
}

// resultFor returns the stored or freshly fetched result for period, or nil
// when it has not been drawn.
func (s *Service) resultFor(ctx context.Context, period string) (*draw.Record, error) {
	rec, err := s.store.RecordByPeriod(ctx, period)
	if err == nil {
		return &rec, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	rec, err = s.provider.ByPeriod(ctx, period)
	if errors.Is(err, provider.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.store.UpsertRecord(ctx, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GenerateBatchEntries draws batch_size picks for the next period.
func (s *Service) GenerateBatchEntries(ctx context.Context) ([]draw.Entry, error) {
	if !s.generating.TryLock() {
		return nil, ErrGenerationInProgress
	}
	defer s.generating.Unlock()

	s.setGeneration(state.GenerationGenerating, false)
	entries, err := s.generate(ctx)
	if err != nil {
		s.setGeneration(state.GenerationError, true)
		return nil, err
	}
	s.setGeneration(state.GenerationGenerated, true)
	s.log(ctx).Info("generated batch",
		logging.Int64("batch", entries[0].Batch),
		logging.String("period", entries[0].Period),
		logging.Int("entries", len(entries)))
	s.publish(ctx)
	return entries, nil
}

func (s *Service) generate(ctx context.Context) ([]draw.Entry, error) {
	period, err := s.nextPeriod(ctx)
	if err != nil {
		return nil, fmt.Errorf("determine target period: %w", err)
	}
	s.rngMu.Lock()
	picks := draw.Generate(s.rng, s.cfg.Daemon.BatchSize)
	s.rngMu.Unlock()
	return s.store.InsertBatch(ctx, period, picks, 1)
}

// DeprecateLastBatch retires the newest live batch.
func (s *Service) DeprecateLastBatch(ctx context.Context) (DeprecatedResult, error) {
	n, err := s.store.DeprecateLastBatch(ctx)
	if err != nil {
		return DeprecatedResult{}, err
	}
	s.publish(ctx)
	return DeprecatedResult{Deprecated: n}, nil
}
