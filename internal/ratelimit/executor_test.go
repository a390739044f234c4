package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dball/internal/logging"
)

func TestExecutorPacesCalls(t *testing.T) {
	const qps = 10
	const calls = 5
	e := NewExecutor(Provider{Name: "test", QPS: qps}, logging.NewNop(), nil)

	start := time.Now()
	for i := 0; i < calls; i++ {
		if err := e.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
			t.Fatalf("Do: %v", err)
		}
	}
	elapsed := time.Since(start)
	minimum := time.Duration(calls-1) * time.Second / qps
	if elapsed < minimum-5*time.Millisecond {
		t.Fatalf("%d calls at %d qps took %v, want at least %v", calls, qps, elapsed, minimum)
	}
}

func TestExecutorPacesConcurrentCallers(t *testing.T) {
	const qps = 20
	const calls = 6
	e := NewExecutor(Provider{Name: "test", QPS: qps}, logging.NewNop(), nil)

	var mu sync.Mutex
	var starts []time.Time
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Do(context.Background(), func(context.Context) error {
				mu.Lock()
				starts = append(starts, time.Now())
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	first, last := starts[0], starts[0]
	for _, s := range starts {
		if s.Before(first) {
			first = s
		}
		if s.After(last) {
			last = s
		}
	}
	minimum := time.Duration(calls-1) * time.Second / qps
	if last.Sub(first) < minimum-5*time.Millisecond {
		t.Fatalf("concurrent starts spanned %v, want at least %v", last.Sub(first), minimum)
	}
}

func TestExecutorZeroQPSIsUnthrottled(t *testing.T) {
	e := NewExecutor(Provider{Name: "free", QPS: 0}, logging.NewNop(), nil)
	start := time.Now()
	for i := 0; i < 50; i++ {
		if err := e.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
			t.Fatalf("Do: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("unthrottled calls took %v", elapsed)
	}
}

func TestExecutorHonoursContext(t *testing.T) {
	e := NewExecutor(Provider{Name: "slow", QPS: 1}, logging.NewNop(), nil)
	if err := e.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("first Do: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var ran atomic.Bool
	err := e.Do(ctx, func(context.Context) error {
		ran.Store(true)
		return nil
	})
	if err == nil {
		t.Fatalf("expected context error while waiting for slot")
	}
	if ran.Load() {
		t.Fatalf("fn should not run when the wait is cancelled")
	}
}

func TestExecuteReturnsValueAndError(t *testing.T) {
	e := NewExecutor(Provider{Name: "test", QPS: 100}, logging.NewNop(), nil)
	got, err := Execute(context.Background(), e, func(context.Context) (int, error) { return 42, nil })
	if err != nil || got != 42 {
		t.Fatalf("Execute = %d, %v", got, err)
	}
	boom := errors.New("boom")
	if _, err := Execute(context.Background(), e, func(context.Context) (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestRegistrySharesExecutors(t *testing.T) {
	r := NewRegistry(logging.NewNop(), nil)
	a := r.For(Provider{Name: "mxnzp", QPS: 1})
	b := r.For(Provider{Name: "mxnzp", QPS: 5})
	c := r.For(Provider{Name: "other", QPS: 1})
	if a != b {
		t.Fatalf("expected shared executor for same provider")
	}
	if a == c {
		t.Fatalf("expected distinct executor for different provider")
	}
	if b.Provider().QPS != 1 {
		t.Fatalf("expected original qps to be kept, got %d", b.Provider().QPS)
	}
}
