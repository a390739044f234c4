package service

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"dball/internal/config"
	"dball/internal/draw"
	"dball/internal/ipc"
	"dball/internal/logging"
	"dball/internal/state"
	"dball/internal/store"
	"dball/internal/wire"
)

// ErrNotImplemented is reported for operations this build does not serve.
var ErrNotImplemented = ipc.ErrNotImplemented

// ErrGenerationInProgress rejects a batch request while another is running.
var ErrGenerationInProgress = errors.New("batch generation already in progress")

// Provider fetches published results.
type Provider interface {
	Latest(ctx context.Context) (draw.Record, error)
	ByPeriod(ctx context.Context, period string) (draw.Record, error)
	APIStatus() state.APIStatus
}

// Lifecycle receives shutdown and restart requests. Implementations must
// return promptly and stop the daemon asynchronously so the acknowledgement
// can still be delivered.
type Lifecycle interface {
	RequestShutdown(restart bool)
}

// LifecycleFunc adapts a function to Lifecycle.
type LifecycleFunc func(restart bool)

func (f LifecycleFunc) RequestShutdown(restart bool) { f(restart) }

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRand overrides the pick generator.
func WithRand(r *rand.Rand) Option {
	return func(s *Service) { s.rng = r }
}

// WithLifecycle wires Shutdown and Restart.
func WithLifecycle(l Lifecycle) Option {
	return func(s *Service) { s.lifecycle = l }
}

// Service is the daemon's business façade.
type Service struct {
	cfg       *config.Config
	store     *store.Store
	provider  Provider
	holder    *state.Holder
	lifecycle Lifecycle
	logger    *slog.Logger

	now     func() time.Time
	started time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	generating sync.Mutex
	refreshMu  sync.Mutex
}

// New builds the façade. The store, provider and holder are required.
func New(cfg *config.Config, st *store.Store, p Provider, holder *state.Holder, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		store:    st,
		provider: p,
		holder:   holder,
		logger:   logging.NewComponentLogger(logger, "service"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		seed := uint64(s.now().UnixNano())
		s.rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	s.started = s.now()
	return s
}

// Holder returns the state holder the service publishes to.
func (s *Service) Holder() *state.Holder {
	return s.holder
}

// Dispatch runs one remote operation.
func (s *Service) Dispatch(ctx context.Context, op wire.Operation) (any, error) {
	switch v := op.(type) {
	case wire.GetCurrentState:
		return s.holder.Snapshot(), nil
	case wire.UpdateLatestRecord:
		return s.UpdateLatestRecord(ctx)
	case wire.GetNextPeriodIdentifier:
		return s.GetNextPeriodIdentifier(ctx)
	case wire.UpdateAllPendingEntries:
		return s.UpdateAllPendingEntries(ctx)
	case wire.GetPendingEntries:
		return s.store.PendingEntries(ctx)
	case wire.GetSettledEntries:
		return s.store.SettledEntries(ctx)
	case wire.GenerateBatchEntries:
		return s.GenerateBatchEntries(ctx)
	case wire.DeprecateLastBatch:
		return s.DeprecateLastBatch(ctx)
	case wire.CrawlAllHistoricalRecords:
		return s.CrawlAllHistoricalRecords(ctx)
	case wire.UpdateRecordsByPeriodList:
		return s.UpdateRecordsByPeriodList(ctx, v.Periods)
	case wire.UpdateRecordsForYear:
		return s.UpdateRecordsForYear(ctx, v.Year)
	case wire.Shutdown:
		return s.requestShutdown(ctx, false)
	case wire.Restart:
		return s.requestShutdown(ctx, true)
	default:
		return nil, ErrNotImplemented
	}
}

// Ack acknowledges a lifecycle request.
type Ack struct {
	Message string `json:"message"`
}

func (s *Service) requestShutdown(ctx context.Context, restart bool) (Ack, error) {
	if s.lifecycle == nil {
		return Ack{}, ErrNotImplemented
	}
	msg := "shutdown requested"
	if restart {
		msg = "restart requested"
	}
	logging.WithContext(ctx, s.logger).Info(msg)
	s.lifecycle.RequestShutdown(restart)
	return Ack{Message: msg}, nil
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, s.logger)
}
