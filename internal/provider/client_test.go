package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"dball/internal/draw"
	"dball/internal/metrics"
	"dball/internal/ratelimit"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, qps int) (*Client, *metrics.Metrics) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	m := metrics.New()
	client, err := New(Config{
		BaseURL:     server.URL + "/api/lottery/common/",
		AppID:       "id",
		AppSecret:   "secret",
		LotteryCode: "ssq",
		Executor:    ratelimit.NewExecutor(ratelimit.Provider{Name: "mxnzp", QPS: qps}, nil, m),
		Metrics:     m,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client, m
}

func assertProviderRequests(t *testing.T, m *metrics.Metrics, outcome string, want int) {
	t.Helper()
	expected := fmt.Sprintf(`
# HELP dball_provider_requests_total Provider calls, by provider and outcome.
# TYPE dball_provider_requests_total counter
dball_provider_requests_total{outcome=%q,provider="mxnzp"} %d
`, outcome, want)
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "dball_provider_requests_total"); err != nil {
		t.Fatalf("provider metrics: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestLatestParsesResponse(t *testing.T) {
	var captured *http.Request
	client, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r
		writeJSON(w, map[string]any{
			"code": 1,
			"msg":  "ok",
			"data": map[string]any{
				"openCode": "03,09,12,21,27,33+05",
				"code":     "ssq",
				"expect":   "2024151",
				"name":     "双色球",
				"time":     "2024-12-31 21:15:00",
			},
		})
	}, 0)

	rec, err := client.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if captured.URL.Path != "/api/lottery/common/latest" {
		t.Fatalf("unexpected path %q", captured.URL.Path)
	}
	q := captured.URL.Query()
	if q.Get("app_id") != "id" || q.Get("app_secret") != "secret" || q.Get("code") != "ssq" {
		t.Fatalf("unexpected query %v", q)
	}
	if rec.Period != "2024151" || rec.Numbers.String() != "03,09,12,21,27,33+05" {
		t.Fatalf("unexpected record %+v", rec)
	}
	want := time.Date(2024, 12, 31, 13, 15, 0, 0, time.UTC)
	if !rec.DrawTime.Equal(want) {
		t.Fatalf("draw time = %s, want %s", rec.DrawTime, want)
	}

	status := client.Stats().APIStatus()
	if status.Provider != "mxnzp" || status.SuccessRate != 1 || status.LastSuccess == nil {
		t.Fatalf("unexpected api status %+v", status)
	}
	assertProviderRequests(t, m, "success", 1)
}

func TestByPeriodSendsExpect(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/lottery/common/aim_lottery" || r.URL.Query().Get("expect") != "2024010" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{
			"code": 1,
			"data": map[string]any{"openCode": "01,02,03,04,05,06+07", "expect": "24010", "time": "2024-01-23 21:15:00"},
		})
	}, 0)

	rec, err := client.ByPeriod(context.Background(), "2024010")
	if err != nil {
		t.Fatalf("ByPeriod: %v", err)
	}
	if rec.Period != "2024010" {
		t.Fatalf("short expect should widen to full period, got %q", rec.Period)
	}
	if _, err := client.ByPeriod(context.Background(), "bogus"); !errors.Is(err, draw.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		body map[string]any
		want error
	}{
		{"rejected", map[string]any{"code": 0, "msg": "app_secret invalid"}, ErrRejected},
		{"missing data", map[string]any{"code": 1, "msg": "ok"}, ErrNotFound},
		{"not found message", map[string]any{"code": 0, "msg": "数据不存在"}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.body)
			}, 0)
			if _, err := client.Latest(context.Background()); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestHTTPFailureCountsAgainstSuccessRate(t *testing.T) {
	client, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}, 0)
	if _, err := client.Latest(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	status := client.Stats().APIStatus()
	if status.SuccessRate != 0 || status.LastSuccess != nil {
		t.Fatalf("unexpected status %+v", status)
	}
	assertProviderRequests(t, m, "error", 1)
}

func TestCallsArePaced(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, map[string]any{"code": 1, "data": map[string]any{"openCode": "01,02,03,04,05,06+07", "expect": "2024001"}})
	}, 10)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.Latest(context.Background()); err != nil {
			t.Fatalf("Latest: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 190*time.Millisecond {
		t.Fatalf("three calls at 10 qps finished in %s", elapsed)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(Config{BaseURL: "http://example.com"}); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	if _, err := New(Config{BaseURL: "not a url", AppID: "a", AppSecret: "b"}); err == nil {
		t.Fatal("expected base url error")
	}
}
