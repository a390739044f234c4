package store

import (
	"context"
	"database/sql"
	"fmt"

	"dball/internal/draw"
)

const entryColumns = "id, batch, period, numbers, multiplier, settled, prize_level, deprecated, created_at"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (draw.Entry, error) {
	var (
		e          draw.Entry
		numbers    string
		settled    int
		deprecated int
		createdRaw string
	)
	if err := scanner.Scan(&e.ID, &e.Batch, &e.Period, &numbers, &e.Multiplier,
		&settled, &e.PrizeLevel, &deprecated, &createdRaw); err != nil {
		return draw.Entry{}, err
	}
	parsed, err := draw.ParseOpenCode(numbers)
	if err != nil {
		return draw.Entry{}, fmt.Errorf("entry %d: %w", e.ID, err)
	}
	e.Numbers = parsed
	e.Settled = settled != 0
	e.Deprecated = deprecated != 0
	if t, err := parseTimeString(createdRaw); err == nil {
		e.CreatedAt = t
	}
	return e, nil
}

func (s *Store) queryEntries(ctx context.Context, where string, args ...any) ([]draw.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	out := []draw.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertBatch stores picks for period as a new batch and returns the stored
// entries.
func (s *Store) InsertBatch(ctx context.Context, period string, picks []draw.Numbers, multiplier int) ([]draw.Entry, error) {
	if _, _, err := draw.ParsePeriod(period); err != nil {
		return nil, err
	}
	if len(picks) == 0 {
		return nil, fmt.Errorf("insert batch: no picks")
	}
	if multiplier < 1 {
		multiplier = 1
	}
	now := s.now().UTC()

	var entries []draw.Entry
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		entries = entries[:0]
		var batch int64
		if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(batch), 0) + 1 FROM entries").Scan(&batch); err != nil {
			return fmt.Errorf("next batch id: %w", err)
		}
		for _, pick := range picks {
			if err := pick.Validate(); err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx,
				"INSERT INTO entries (batch, period, numbers, multiplier, created_at) VALUES (?, ?, ?, ?, ?)",
				batch, period, pick.String(), multiplier, formatTime(now))
			if err != nil {
				return fmt.Errorf("insert entry: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("entry id: %w", err)
			}
			entries = append(entries, draw.Entry{
				ID:         id,
				Batch:      batch,
				Period:     period,
				Numbers:    pick,
				Multiplier: multiplier,
				CreatedAt:  now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// PendingEntries lists live entries that have not been scored.
func (s *Store) PendingEntries(ctx context.Context) ([]draw.Entry, error) {
	return s.queryEntries(ctx, "settled = 0 AND deprecated = 0")
}

// SettledEntries lists live entries that have been scored.
func (s *Store) SettledEntries(ctx context.Context) ([]draw.Entry, error) {
	return s.queryEntries(ctx, "settled = 1 AND deprecated = 0")
}

// SetPrizeLevel marks an entry settled at level.
func (s *Store) SetPrizeLevel(ctx context.Context, id int64, level int) error {
	res, err := s.execWithRetry(ctx,
		"UPDATE entries SET settled = 1, prize_level = ? WHERE id = ?", level, id)
	if err != nil {
		return fmt.Errorf("settle entry %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: entry %d", ErrNotFound, id)
	}
	return nil
}

// DeprecateLastBatch retires the newest batch that still has live entries and
// returns how many entries it touched.
func (s *Store) DeprecateLastBatch(ctx context.Context) (int, error) {
	var count int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		count = 0
		var batch sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			"SELECT MAX(batch) FROM entries WHERE deprecated = 0",
		).Scan(&batch); err != nil {
			return fmt.Errorf("find last batch: %w", err)
		}
		if !batch.Valid {
			return nil
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE entries SET deprecated = 1 WHERE batch = ? AND deprecated = 0", batch.Int64)
		if err != nil {
			return fmt.Errorf("deprecate batch %d: %w", batch.Int64, err)
		}
		count, err = res.RowsAffected()
		return err
	})
	return int(count), err
}

// Totals summarizes live entries.
type Totals struct {
	Entries    int
	Unsettled  int
	Investment int64
	Return     int64
}

// Totals computes spend and winnings across live entries.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	entries, err := s.queryEntries(ctx, "deprecated = 0")
	if err != nil {
		return Totals{}, err
	}
	var t Totals
	for _, e := range entries {
		t.Entries++
		if !e.Settled {
			t.Unsettled++
		}
		t.Investment += e.Cost()
		t.Return += e.Return()
	}
	return t, nil
}
