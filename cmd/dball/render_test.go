package main

import (
	"bytes"
	"strings"
	"testing"

	"dball/internal/draw"
)

func TestBallCellsSplitRedAndBlue(t *testing.T) {
	n, err := draw.ParseOpenCode("02,07,11,19,25,30+09")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	red, blue := ballCells(n, palette{})
	if red != "02 07 11 19 25 30" || blue != "09" {
		t.Fatalf("unexpected cells %q %q", red, blue)
	}

	red, _ = ballCells(n, palette{enabled: true})
	if !strings.Contains(red, "02 07 11 19 25 30") {
		t.Fatalf("colored red cell lost its numbers: %q", red)
	}
}

func TestPaletteForNonTerminalIsPlain(t *testing.T) {
	if paletteFor(&bytes.Buffer{}).enabled {
		t.Fatal("buffers should not be colorized")
	}
}

func TestRenderEntriesTotals(t *testing.T) {
	n, err := draw.ParseOpenCode("01,02,03,04,05,06+07")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	entries := []draw.Entry{
		{ID: 1, Batch: 4, Period: "2024067", Numbers: n, Multiplier: 1},
		{ID: 2, Batch: 4, Period: "2024067", Numbers: n, Multiplier: 2, Settled: true, PrizeLevel: draw.SixthPrize},
		{ID: 3, Batch: 4, Period: "2024067", Numbers: n, Multiplier: 1, Settled: true},
	}
	out := renderEntries(entries, palette{})
	for _, want := range []string{"Red", "Blue", "pending", "sixth (10)", "none", "3 entries", "won 10"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in\n%s", want, out)
		}
	}
	// Cost footer: 2 + 4 + 2.
	if !strings.Contains(out, " 8 ") {
		t.Fatalf("expected total cost 8 in\n%s", out)
	}
}

func TestProviderHealthGrades(t *testing.T) {
	cases := []struct {
		api  apiView
		want health
	}{
		{apiView{}, healthUnknown},
		{apiView{SuccessRate: 1, LastSuccess: "now"}, healthGood},
		{apiView{SuccessRate: 0.6, LastSuccess: "now"}, healthDegraded},
		{apiView{SuccessRate: 0.2, LastSuccess: "now"}, healthDown},
		{apiView{SuccessRate: 0, LastSuccess: "yesterday"}, healthDown},
	}
	for _, tc := range cases {
		if got := providerHealth(tc.api); got != tc.want {
			t.Fatalf("%+v: got %s, want %s", tc.api, got, tc.want)
		}
	}

	line := providerLine(apiView{SuccessRate: 0.95, AverageResponseTime: 0.25, LastSuccess: "2024-06-10T12:00:00Z"}, palette{})
	if line != "healthy, 95% success, avg 0.250s, last ok 2024-06-10T12:00:00Z" {
		t.Fatalf("unexpected provider line %q", line)
	}
	if line := providerLine(apiView{}, palette{}); line != "no calls yet" {
		t.Fatalf("unexpected idle provider line %q", line)
	}
}
