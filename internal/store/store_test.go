package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"dball/internal/draw"
	"dball/internal/store"
	"dball/internal/testsupport"
)

func mustNumbers(t *testing.T, code string) draw.Numbers {
	t.Helper()
	n, err := draw.ParseOpenCode(code)
	if err != nil {
		t.Fatalf("parse %q: %v", code, err)
	}
	return n
}

func record(t *testing.T, period, code string) draw.Record {
	t.Helper()
	return draw.Record{
		Period:   period,
		DrawTime: time.Date(2024, 1, 2, 21, 15, 0, 0, time.UTC),
		Numbers:  mustNumbers(t, code),
		Name:     "ssq",
	}
}

func TestUpsertRecord(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	rec := record(t, "2024001", "01,02,03,04,05,06+07")
	inserted, err := s.UpsertRecord(ctx, rec)
	if err != nil || !inserted {
		t.Fatalf("first upsert: inserted=%v err=%v", inserted, err)
	}
	inserted, err = s.UpsertRecord(ctx, rec)
	if err != nil || inserted {
		t.Fatalf("identical upsert: inserted=%v err=%v", inserted, err)
	}

	changed := record(t, "2024001", "01,02,03,04,05,07+07")
	if _, err := s.UpsertRecord(ctx, changed); !errors.Is(err, store.ErrRecordMismatch) {
		t.Fatalf("expected ErrRecordMismatch, got %v", err)
	}

	got, err := s.RecordByPeriod(ctx, "2024001")
	if err != nil {
		t.Fatalf("RecordByPeriod: %v", err)
	}
	if !got.Equal(rec) || got.Name != "ssq" {
		t.Fatalf("unexpected record %+v", got)
	}

	if _, err := s.RecordByPeriod(ctx, "2024099"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	has, err := s.HasRecord(ctx, "2024001")
	if err != nil || !has {
		t.Fatalf("HasRecord: %v %v", has, err)
	}
}

func TestUpsertRejectsInvalidRecord(t *testing.T) {
	s := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	rec := draw.Record{Period: "24001"}
	if _, err := s.UpsertRecord(context.Background(), rec); !errors.Is(err, draw.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestLatestRecordsOrdering(t *testing.T) {
	s := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := s.LatestRecord(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}
	for _, period := range []string{"2024002", "2023150", "2024001"} {
		if _, err := s.UpsertRecord(ctx, record(t, period, "01,02,03,04,05,06+07")); err != nil {
			t.Fatalf("upsert %s: %v", period, err)
		}
	}
	recs, err := s.LatestRecords(ctx, 2)
	if err != nil {
		t.Fatalf("LatestRecords: %v", err)
	}
	if len(recs) != 2 || recs[0].Period != "2024002" || recs[1].Period != "2024001" {
		t.Fatalf("unexpected order: %+v", recs)
	}
	count, err := s.CountRecords(ctx)
	if err != nil || count != 3 {
		t.Fatalf("CountRecords: %d %v", count, err)
	}
}

func TestBatchLifecycle(t *testing.T) {
	s := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	picks := []draw.Numbers{
		mustNumbers(t, "01,02,03,04,05,06+07"),
		mustNumbers(t, "10,11,12,13,14,15+16"),
	}
	first, err := s.InsertBatch(ctx, "2024010", picks, 1)
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if len(first) != 2 || first[0].Batch != 1 || first[0].ID == 0 {
		t.Fatalf("unexpected first batch %+v", first)
	}
	second, err := s.InsertBatch(ctx, "2024010", picks[:1], 2)
	if err != nil {
		t.Fatalf("InsertBatch second: %v", err)
	}
	if second[0].Batch != 2 {
		t.Fatalf("expected batch 2, got %d", second[0].Batch)
	}

	pending, err := s.PendingEntries(ctx)
	if err != nil || len(pending) != 3 {
		t.Fatalf("PendingEntries: %d %v", len(pending), err)
	}

	if err := s.SetPrizeLevel(ctx, first[0].ID, draw.SixthPrize); err != nil {
		t.Fatalf("SetPrizeLevel: %v", err)
	}
	if err := s.SetPrizeLevel(ctx, 9999, draw.SixthPrize); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown entry, got %v", err)
	}
	settled, err := s.SettledEntries(ctx)
	if err != nil || len(settled) != 1 || settled[0].PrizeLevel != draw.SixthPrize {
		t.Fatalf("SettledEntries: %+v %v", settled, err)
	}

	totals, err := s.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	// two entries at 2 plus one at multiplier 2
	if totals.Entries != 3 || totals.Unsettled != 2 || totals.Investment != 8 || totals.Return != 5 {
		t.Fatalf("unexpected totals %+v", totals)
	}

	n, err := s.DeprecateLastBatch(ctx)
	if err != nil || n != 1 {
		t.Fatalf("DeprecateLastBatch: %d %v", n, err)
	}
	pending, err = s.PendingEntries(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending after deprecate: %d %v", len(pending), err)
	}

	if n, err = s.DeprecateLastBatch(ctx); err != nil || n != 2 {
		t.Fatalf("second DeprecateLastBatch: %d %v", n, err)
	}
	if n, err = s.DeprecateLastBatch(ctx); err != nil || n != 0 {
		t.Fatalf("DeprecateLastBatch on empty: %d %v", n, err)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = s.Close()

	db, err := sql.Open("sqlite", cfg.Paths.DatabasePath)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 999"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := store.Open(cfg); !errors.Is(err, store.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
