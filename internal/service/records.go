package service

import (
	"context"
	"errors"
	"fmt"

	"dball/internal/draw"
	"dball/internal/logging"
	"dball/internal/provider"
	"dball/internal/store"
)

// LatestResult answers UpdateLatestRecord.
type LatestResult struct {
	LatestPeriod string `json:"latest_period"`
	Inserted     bool   `json:"inserted"`
}

// NextPeriodResult answers GetNextPeriodIdentifier.
type NextPeriodResult struct {
	NextPeriod string `json:"next_period"`
}

// RecordsResult answers the record refresh operations.
type RecordsResult struct {
	Year    int `json:"year,omitempty"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// CrawlResult answers CrawlAllHistoricalRecords.
type CrawlResult struct {
	FromYear int `json:"from_year"`
	ToYear   int `json:"to_year"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// UpdateLatestRecord fetches and stores the newest published result.
func (s *Service) UpdateLatestRecord(ctx context.Context) (LatestResult, error) {
	rec, err := s.provider.Latest(ctx)
	if err != nil {
		s.publish(ctx)
		return LatestResult{}, fmt.Errorf("fetch latest record: %w", err)
	}
	inserted, err := s.store.UpsertRecord(ctx, rec)
	if err != nil {
		return LatestResult{}, err
	}
	if inserted {
		s.log(ctx).Info("stored latest record",
			logging.String("period", rec.Period),
			logging.String("numbers", rec.Numbers.String()))
	}
	s.publish(ctx)
	return LatestResult{LatestPeriod: rec.Period, Inserted: inserted}, nil
}

// GetNextPeriodIdentifier predicts the next period from the newest stored
// record, fetching the latest result when nothing is stored yet.
func (s *Service) GetNextPeriodIdentifier(ctx context.Context) (NextPeriodResult, error) {
	next, err := s.nextPeriod(ctx)
	if err != nil {
		return NextPeriodResult{}, err
	}
	return NextPeriodResult{NextPeriod: next}, nil
}

func (s *Service) nextPeriod(ctx context.Context) (string, error) {
	rec, err := s.store.LatestRecord(ctx)
	if errors.Is(err, store.ErrNotFound) {
		if _, err := s.UpdateLatestRecord(ctx); err != nil {
			return "", err
		}
		rec, err = s.store.LatestRecord(ctx)
	}
	if err != nil {
		return "", err
	}
	next := s.periodAfter(rec)
	if next == "" {
		return "", fmt.Errorf("cannot derive the period after %s", rec.Period)
	}
	return next, nil
}

// UpdateRecordsByPeriodList fetches and stores each listed period. Failures
// are collected; the remaining periods are still attempted.
func (s *Service) UpdateRecordsByPeriodList(ctx context.Context, periods []string) (RecordsResult, error) {
	if len(periods) == 0 {
		return RecordsResult{}, errors.New("no periods given")
	}
	var (
		result RecordsResult
		errs   []error
	)
	for _, period := range periods {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		inserted, err := s.fetchAndStore(ctx, period)
		switch {
		case err != nil:
			errs = append(errs, wrapPeriod(period, err))
		case inserted:
			result.Updated++
		default:
			result.Skipped++
		}
	}
	s.publish(ctx)
	return result, errors.Join(errs...)
}

// UpdateRecordsForYear walks the periods of year in order until the provider
// has no result, skipping periods already stored.
func (s *Service) UpdateRecordsForYear(ctx context.Context, year int) (RecordsResult, error) {
	result, err := s.updateYear(ctx, year)
	s.publish(ctx)
	return result, err
}

func (s *Service) updateYear(ctx context.Context, year int) (RecordsResult, error) {
	current := s.now().In(draw.DrawZone).Year()
	if year < s.cfg.Daemon.HistoryStartYear || year > current {
		return RecordsResult{}, fmt.Errorf("year %d outside %d..%d", year, s.cfg.Daemon.HistoryStartYear, current)
	}
	result := RecordsResult{Year: year}
	logger := s.log(ctx).With(logging.Int("year", year))
	for seq := 1; seq <= s.cfg.Daemon.MaxPeriodsPerYear; seq++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		period := draw.FormatPeriod(year, seq)
		has, err := s.store.HasRecord(ctx, period)
		if err != nil {
			return result, err
		}
		if has {
			result.Skipped++
			continue
		}
		inserted, err := s.fetchAndStore(ctx, period)
		if errors.Is(err, provider.ErrNotFound) {
			logger.Debug("reached end of published periods", logging.String("period", period))
			break
		}
		if err != nil {
			return result, wrapPeriod(period, err)
		}
		if inserted {
			result.Updated++
		} else {
			result.Skipped++
		}
	}
	logger.Info("year refreshed", logging.Int("updated", result.Updated), logging.Int("skipped", result.Skipped))
	return result, nil
}

// CrawlAllHistoricalRecords refreshes every year from history_start_year to
// the current year.
func (s *Service) CrawlAllHistoricalRecords(ctx context.Context) (CrawlResult, error) {
	result := CrawlResult{
		FromYear: s.cfg.Daemon.HistoryStartYear,
		ToYear:   s.now().In(draw.DrawZone).Year(),
	}
	var errs []error
	for year := result.FromYear; year <= result.ToYear; year++ {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		yr, err := s.updateYear(ctx, year)
		result.Updated += yr.Updated
		result.Skipped += yr.Skipped
		if err != nil {
			errs = append(errs, fmt.Errorf("year %d: %w", year, err))
		}
	}
	s.publish(ctx)
	return result, errors.Join(errs...)
}

func (s *Service) fetchAndStore(ctx context.Context, period string) (bool, error) {
	if _, _, err := draw.ParsePeriod(period); err != nil {
		return false, err
	}
	rec, err := s.provider.ByPeriod(ctx, period)
	if err != nil {
		return false, err
	}
	if rec.Period != period {
		return false, fmt.Errorf("provider answered period %s", rec.Period)
	}
	return s.store.UpsertRecord(ctx, rec)
}
