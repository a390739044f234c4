package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dball/internal/draw"
)

const recordColumns = "period, draw_time, open_code, name"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (draw.Record, error) {
	var (
		period   string
		drawTime string
		openCode string
		name     sql.NullString
	)
	if err := scanner.Scan(&period, &drawTime, &openCode, &name); err != nil {
		return draw.Record{}, err
	}
	numbers, err := draw.ParseOpenCode(openCode)
	if err != nil {
		return draw.Record{}, fmt.Errorf("record %s: %w", period, err)
	}
	rec := draw.Record{Period: period, Numbers: numbers, Name: name.String}
	if t, err := parseTimeString(drawTime); err == nil {
		rec.DrawTime = t
	}
	return rec, nil
}

// UpsertRecord stores rec. It returns false when an identical record is
// already present and ErrRecordMismatch when a different one is.
func (s *Store) UpsertRecord(ctx context.Context, rec draw.Record) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}
	inserted := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		inserted = false
		existing, err := scanRecord(tx.QueryRowContext(ctx,
			"SELECT "+recordColumns+" FROM records WHERE period = ?", rec.Period))
		switch {
		case err == nil:
			if existing.Numbers != rec.Numbers {
				return fmt.Errorf("%w: period %s stored %s, got %s",
					ErrRecordMismatch, rec.Period, existing.Numbers, rec.Numbers)
			}
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("load record %s: %w", rec.Period, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO records (period, draw_time, open_code, name, created_at) VALUES (?, ?, ?, ?, ?)",
			rec.Period, formatTime(rec.DrawTime), rec.Numbers.String(), nullableString(rec.Name), formatTime(s.now()),
		); err != nil {
			return fmt.Errorf("insert record %s: %w", rec.Period, err)
		}
		inserted = true
		return nil
	})
	return inserted, err
}

// RecordByPeriod loads one record.
func (s *Store) RecordByPeriod(ctx context.Context, period string) (draw.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE period = ?", period))
	if errors.Is(err, sql.ErrNoRows) {
		return draw.Record{}, fmt.Errorf("%w: record %s", ErrNotFound, period)
	}
	if err != nil {
		return draw.Record{}, fmt.Errorf("load record %s: %w", period, err)
	}
	return rec, nil
}

// HasRecord reports whether period is stored.
func (s *Store) HasRecord(ctx context.Context, period string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM records WHERE period = ?", period,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("check record %s: %w", period, err)
	}
	return count > 0, nil
}

// LatestRecords returns up to limit records, newest period first.
func (s *Store) LatestRecords(ctx context.Context, limit int) ([]draw.Record, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM records ORDER BY period DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []draw.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LatestRecord returns the newest stored record.
func (s *Store) LatestRecord(ctx context.Context) (draw.Record, error) {
	recs, err := s.LatestRecords(ctx, 1)
	if err != nil {
		return draw.Record{}, err
	}
	if len(recs) == 0 {
		return draw.Record{}, fmt.Errorf("%w: no records stored", ErrNotFound)
	}
	return recs[0], nil
}

// CountRecords reports how many records are stored.
func (s *Store) CountRecords(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM records").Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}
