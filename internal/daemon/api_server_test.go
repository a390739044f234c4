package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dball/internal/config"
	"dball/internal/ipc"
	"dball/internal/service"
	"dball/internal/state"
	"dball/internal/wire"
)

type decodedResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

func newTestAPIServer(t *testing.T, handler ipc.HandlerFunc) (*apiServer, *state.Holder) {
	t.Helper()
	cfg := config.Default()
	cfg.API.Listen = "127.0.0.1:0"
	holder := state.NewHolder(state.NewHub(4))
	srv := newAPIServer(&cfg, handler, holder, nil)
	if srv == nil {
		t.Fatal("expected api server when api.listen is set")
	}
	return srv, holder
}

func serveAPI(t *testing.T, srv *apiServer, method, path, body string) (int, decodedResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var resp decodedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v (%s)", err, w.Body.String())
	}
	return w.Code, resp
}

func TestAPIServerDisabledWithoutListen(t *testing.T) {
	cfg := config.Default()
	handler := ipc.HandlerFunc(func(context.Context, wire.Operation) (any, error) { return nil, nil })
	if srv := newAPIServer(&cfg, handler, state.NewHolder(nil), nil); srv != nil {
		t.Fatal("expected no api server when api.listen is empty")
	}
}

func TestAPIServerHealthAndState(t *testing.T) {
	srv, holder := newTestAPIServer(t, func(context.Context, wire.Operation) (any, error) {
		return nil, ipc.ErrNotImplemented
	})
	holder.Update(func(s *state.AppState) { s.CurrentPeriod = "2024050" })

	code, resp := serveAPI(t, srv, http.MethodGet, "/health", "")
	if code != http.StatusOK || !resp.Success || !strings.Contains(string(resp.Data), `"ok"`) {
		t.Fatalf("unexpected health reply %d %+v", code, resp)
	}

	code, resp = serveAPI(t, srv, http.MethodGet, "/api/state", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var snapshot state.AppState
	if err := json.Unmarshal(resp.Data, &snapshot); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if snapshot.CurrentPeriod != "2024050" {
		t.Fatalf("unexpected period %q", snapshot.CurrentPeriod)
	}

	code, resp = serveAPI(t, srv, http.MethodPost, "/api/state", "")
	if code != http.StatusMethodNotAllowed || resp.Error == nil || resp.Error.Code != "method_not_allowed" {
		t.Fatalf("unexpected reply to POST /api/state: %d %+v", code, resp)
	}
}

func TestAPIServerRoutesDispatchOperations(t *testing.T) {
	var got []wire.Operation
	srv, _ := newTestAPIServer(t, func(_ context.Context, op wire.Operation) (any, error) {
		got = append(got, op)
		switch v := op.(type) {
		case wire.GetNextPeriodIdentifier:
			return service.NextPeriodResult{NextPeriod: "2024051"}, nil
		case wire.UpdateRecordsByPeriodList:
			return service.RecordsResult{Updated: len(v.Periods)}, nil
		case wire.UpdateRecordsForYear:
			return service.RecordsResult{Year: v.Year}, nil
		default:
			return map[string]string{"op": string(op.Name())}, nil
		}
	})

	code, resp := serveAPI(t, srv, http.MethodGet, "/api/period/next", "")
	if code != http.StatusOK || !strings.Contains(string(resp.Data), "2024051") {
		t.Fatalf("unexpected next period reply %d %s", code, resp.Data)
	}

	code, resp = serveAPI(t, srv, http.MethodPost, "/api/records/periods", `{"periods":["2024001","2024002"]}`)
	if code != http.StatusOK || !strings.Contains(string(resp.Data), `"updated":2`) {
		t.Fatalf("unexpected periods reply %d %s", code, resp.Data)
	}

	code, resp = serveAPI(t, srv, http.MethodPost, "/api/records/year", `{"year":2023}`)
	if code != http.StatusOK || !strings.Contains(string(resp.Data), `"year":2023`) {
		t.Fatalf("unexpected year reply %d %s", code, resp.Data)
	}

	for _, path := range []string{"/api/batch/generate", "/api/batch/deprecate", "/api/entries/score", "/api/records/latest", "/api/records/crawl"} {
		if code, _ := serveAPI(t, srv, http.MethodPost, path, ""); code != http.StatusOK {
			t.Fatalf("POST %s: expected 200, got %d", path, code)
		}
	}
	for _, path := range []string{"/api/entries/pending", "/api/entries/settled"} {
		if code, _ := serveAPI(t, srv, http.MethodGet, path, ""); code != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", path, code)
		}
	}

	want := []wire.OpName{
		wire.OpGetNextPeriodIdentifier,
		wire.OpUpdateRecordsByPeriodList,
		wire.OpUpdateRecordsForYear,
		wire.OpGenerateBatchEntries,
		wire.OpDeprecateLastBatch,
		wire.OpUpdateAllPendingEntries,
		wire.OpUpdateLatestRecord,
		wire.OpCrawlAllHistoricalRecords,
		wire.OpGetPendingEntries,
		wire.OpGetSettledEntries,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d dispatched operations, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i].Name() != name {
			t.Fatalf("operation %d: got %s, want %s", i, got[i].Name(), name)
		}
	}
}

func TestAPIServerRejectsBadBodies(t *testing.T) {
	srv, _ := newTestAPIServer(t, func(context.Context, wire.Operation) (any, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	})

	cases := []struct {
		method, path, body string
		status             int
	}{
		{http.MethodPost, "/api/records/periods", `{"periods":[]}`, http.StatusBadRequest},
		{http.MethodPost, "/api/records/periods", `not json`, http.StatusBadRequest},
		{http.MethodPost, "/api/records/year", `{"year":2023,"extra":1}`, http.StatusBadRequest},
		{http.MethodGet, "/api/records/year", ``, http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/batch/generate", ``, http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/rpc", `{"UpdateRecordsForYear":"soon"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/rpc", `"Shutdown"`, http.StatusNotImplemented},
		{http.MethodPost, "/api/rpc", `"Restart"`, http.StatusNotImplemented},
	}
	for _, tc := range cases {
		code, resp := serveAPI(t, srv, tc.method, tc.path, tc.body)
		if code != tc.status || resp.Success || resp.Error == nil {
			t.Fatalf("%s %s %s: got %d %+v, want %d", tc.method, tc.path, tc.body, code, resp, tc.status)
		}
	}
}

func TestAPIServerRPCMapsErrors(t *testing.T) {
	srv, _ := newTestAPIServer(t, func(_ context.Context, op wire.Operation) (any, error) {
		switch op.(type) {
		case wire.GetCurrentState:
			return map[string]string{"current_period": "2024050"}, nil
		case wire.GenerateBatchEntries:
			return nil, service.ErrGenerationInProgress
		case wire.UpdateLatestRecord:
			return nil, errors.New("provider unavailable")
		default:
			return nil, ipc.ErrNotImplemented
		}
	})

	code, resp := serveAPI(t, srv, http.MethodPost, "/api/rpc", `"GetCurrentState"`)
	if code != http.StatusOK || !strings.Contains(string(resp.Data), "2024050") {
		t.Fatalf("unexpected rpc reply %d %+v", code, resp)
	}

	cases := []struct {
		body   string
		status int
		code   string
	}{
		{`"GenerateBatchEntries"`, http.StatusConflict, "conflict"},
		{`"UpdateLatestRecord"`, http.StatusInternalServerError, "internal_error"},
		{`"Frobnicate"`, http.StatusNotImplemented, "not_supported"},
	}
	for _, tc := range cases {
		code, resp := serveAPI(t, srv, http.MethodPost, "/api/rpc", tc.body)
		if code != tc.status || resp.Error == nil || resp.Error.Code != tc.code {
			t.Fatalf("%s: got %d %+v, want %d %s", tc.body, code, resp, tc.status, tc.code)
		}
	}
}
