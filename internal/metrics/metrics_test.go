package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ConnectionOpened()
	m.RequestHandled("GetCurrentState", true, time.Millisecond)
	m.RateLimitWait("mxnzp", time.Second)
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have no registry")
	}
}

func TestCountersAdvance(t *testing.T) {
	m := New()
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.RequestHandled("GetCurrentState", true, time.Millisecond)
	m.RequestHandled("GetCurrentState", false, time.Millisecond)
	m.BroadcastSkipped(3)

	if got := testutil.ToFloat64(m.connectionsActive); got != 1 {
		t.Fatalf("connections_active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.connectionsTotal); got != 2 {
		t.Fatalf("connections_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GetCurrentState", "true")); got != 1 {
		t.Fatalf("requests_total{success=true} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.broadcastSkipped); got != 3 {
		t.Fatalf("broadcast_skipped_total = %v, want 3", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.ProviderRequest("mxnzp", "ok")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `dball_provider_requests_total{outcome="ok",provider="mxnzp"} 1`) {
		t.Fatalf("metrics output missing provider counter:\n%s", rec.Body.String())
	}
}
