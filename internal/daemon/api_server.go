package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"dball/internal/config"
	"dball/internal/ipc"
	"dball/internal/logging"
	"dball/internal/service"
	"dball/internal/state"
	"dball/internal/wire"
)

const maxAPIBodyBytes = 1 << 20

// apiResponse is the body of every HTTP API reply.
type apiResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type periodsRequest struct {
	Periods []string `json:"periods"`
}

type yearRequest struct {
	Year int `json:"year"`
}

// apiServer exposes the daemon operations as unauthenticated HTTP JSON. It
// calls the same handler as the socket server.
type apiServer struct {
	bind    string
	logger  *slog.Logger
	handler ipc.Handler
	holder  *state.Holder

	mux      *http.ServeMux
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, handler ipc.Handler, holder *state.Holder, logger *slog.Logger) *apiServer {
	if cfg == nil || handler == nil || holder == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.API.Listen)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:    bind,
		logger:  logger,
		handler: handler,
		holder:  holder,
		mux:     http.NewServeMux(),
	}

	srv.mux.HandleFunc("/health", srv.handleHealth)
	srv.mux.HandleFunc("/api/state", srv.handleState)
	srv.mux.HandleFunc("/api/period/next", srv.get(wire.GetNextPeriodIdentifier{}))
	srv.mux.HandleFunc("/api/entries/pending", srv.get(wire.GetPendingEntries{}))
	srv.mux.HandleFunc("/api/entries/settled", srv.get(wire.GetSettledEntries{}))
	srv.mux.HandleFunc("/api/entries/score", srv.post(wire.UpdateAllPendingEntries{}))
	srv.mux.HandleFunc("/api/batch/generate", srv.post(wire.GenerateBatchEntries{}))
	srv.mux.HandleFunc("/api/batch/deprecate", srv.post(wire.DeprecateLastBatch{}))
	srv.mux.HandleFunc("/api/records/latest", srv.post(wire.UpdateLatestRecord{}))
	srv.mux.HandleFunc("/api/records/crawl", srv.post(wire.CrawlAllHistoricalRecords{}))
	srv.mux.HandleFunc("/api/records/periods", srv.handleRecordPeriods)
	srv.mux.HandleFunc("/api/records/year", srv.handleRecordYear)
	srv.mux.HandleFunc("/api/rpc", srv.handleRPC)
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	server := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.server = server

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.log(), "api server error", "api_serve_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "HTTP API unavailable"))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownServer(server)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownServer(s.server)
	s.server = nil
}

func shutdownServer(server *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) addr() string {
	if s == nil {
		return ""
	}
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	s.writeData(w, map[string]string{"status": "ok"})
}

func (s *apiServer) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	s.writeData(w, s.holder.Snapshot())
}

func (s *apiServer) get(op wire.Operation) http.HandlerFunc {
	return s.route(http.MethodGet, op)
}

func (s *apiServer) post(op wire.Operation) http.HandlerFunc {
	return s.route(http.MethodPost, op)
}

func (s *apiServer) route(method string, op wire.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		s.dispatch(w, r, op)
	}
}

func (s *apiServer) handleRecordPeriods(w http.ResponseWriter, r *http.Request) {
	var req periodsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req.Periods) == 0 {
		s.writeError(w, http.StatusBadRequest, "bad_request", "periods must not be empty")
		return
	}
	s.dispatch(w, r, wire.UpdateRecordsByPeriodList{Periods: req.Periods})
}

func (s *apiServer) handleRecordYear(w http.ResponseWriter, r *http.Request) {
	var req yearRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.dispatch(w, r, wire.UpdateRecordsForYear{Year: req.Year})
}

// handleRPC accepts an operation in its wire form, e.g. "GetCurrentState" or
// {"UpdateRecordsForYear":2024}.
func (s *apiServer) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAPIBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	op, err := wire.UnmarshalOperation(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	switch op.(type) {
	case wire.Shutdown, wire.Restart:
		s.writeError(w, http.StatusNotImplemented, "not_supported", fmt.Sprintf("%s is only available over the daemon socket", op.Name()))
		return
	}
	s.dispatch(w, r, op)
}

func (s *apiServer) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return false
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxAPIBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *apiServer) dispatch(w http.ResponseWriter, r *http.Request, op wire.Operation) {
	ctx := logging.WithCorrelationID(r.Context(), wire.NewID())
	data, err := s.handler.Dispatch(ctx, op)
	if err != nil {
		status, code := apiStatus(err)
		if status == http.StatusInternalServerError {
			logging.WarnWithContext(logging.WithContext(ctx, s.log()), "api operation failed", "api_operation_failed",
				logging.String("operation", string(op.Name())),
				logging.Error(err))
		}
		s.writeError(w, status, code, err.Error())
		return
	}
	s.writeData(w, data)
}

func apiStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ipc.ErrNotImplemented):
		return http.StatusNotImplemented, "not_supported"
	case errors.Is(err, service.ErrGenerationInProgress):
		return http.StatusConflict, "conflict"
	case errors.Is(err, wire.ErrMalformedOperation):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *apiServer) writeData(w http.ResponseWriter, data any) {
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: data})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, apiResponse{Error: &apiError{Code: code, Message: message}})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
