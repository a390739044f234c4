// Package ratelimit paces calls to QPS-constrained data providers.
//
// An Executor admits at most QPS calls concurrently and starts them no closer
// together than 1/QPS seconds. A Registry hands out one Executor per provider
// name so every caller of a provider shares the same gate.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"dball/internal/logging"
	"dball/internal/metrics"
)

// Provider identifies an upstream service and its request ceiling. QPS zero
// disables throttling.
type Provider struct {
	Name string
	QPS  int
}

// Executor gates calls for one provider.
type Executor struct {
	provider Provider
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	warnOnce sync.Once
}

// NewExecutor builds a gate for p. logger and m may be nil.
func NewExecutor(p Provider, logger *slog.Logger, m *metrics.Metrics) *Executor {
	e := &Executor{
		provider: p,
		logger:   logging.NewComponentLogger(logger, "ratelimit").With(logging.String(logging.FieldProvider, p.Name)),
		metrics:  m,
	}
	if p.QPS > 0 {
		e.sem = semaphore.NewWeighted(int64(p.QPS))
		e.limiter = rate.NewLimiter(rate.Limit(p.QPS), 1)
	}
	return e
}

// Provider reports the provider this executor gates.
func (e *Executor) Provider() Provider {
	return e.provider
}

// Do waits for a slot, then runs fn. The wait honours ctx; fn's own
// duration does not delay the next call's start beyond the pacing interval.
func (e *Executor) Do(ctx context.Context, fn func(context.Context) error) error {
	if e.limiter == nil {
		e.warnOnce.Do(func() {
			logging.WarnWithContext(e.logger, "provider has no QPS limit", "ratelimit_disabled",
				logging.String(logging.FieldImpact, "calls to this provider are not throttled"),
				logging.String(logging.FieldErrorHint, "set provider.qps to the provider's published ceiling"),
			)
		})
		return fn(ctx)
	}

	start := time.Now()
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	waited := time.Since(start)
	e.metrics.RateLimitWait(e.provider.Name, waited)
	if waited > time.Second {
		e.logger.Debug("provider call delayed", logging.Duration("waited", waited))
	}
	return fn(ctx)
}

// Execute runs fn through e and returns its value.
func Execute[T any](ctx context.Context, e *Executor, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// Registry hands out one shared Executor per provider name.
type Registry struct {
	mu        sync.Mutex
	executors map[string]*Executor
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		executors: make(map[string]*Executor),
		logger:    logger,
		metrics:   m,
	}
}

// For returns the executor for p.Name, creating it on first use. Later calls
// with a different QPS keep the original gate.
func (r *Registry) For(p Provider) *Executor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.executors[p.Name]; ok {
		return e
	}
	e := NewExecutor(p, r.logger, r.metrics)
	r.executors[p.Name] = e
	return e
}
