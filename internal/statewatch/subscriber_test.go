package statewatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"dball/internal/state"
)

type fakeSource struct {
	mu        sync.Mutex
	snapshot  state.AppState
	ok        bool
	version   uint64
	changed   chan struct{}
	connected bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{changed: make(chan struct{}), connected: true}
}

func (f *fakeSource) StateWatch() (state.AppState, bool, uint64, <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot.Clone(), f.ok, f.version, f.changed
}

func (f *fakeSource) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSource) set(s state.AppState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = s
	f.ok = true
	f.version++
	close(f.changed)
	f.changed = make(chan struct{})
}

func snapshotAt(period string, ts time.Time) state.AppState {
	s := state.New(ts)
	s.CurrentPeriod = period
	return s
}

func startSubscriber(t *testing.T, src Source) *Subscriber {
	t.Helper()
	sub := New(src, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return sub
}

func TestWaitForMatchesLaterSnapshot(t *testing.T) {
	src := newFakeSource()
	sub := startSubscriber(t, src)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	go func() {
		time.Sleep(20 * time.Millisecond)
		src.set(snapshotAt("2024001", base))
		time.Sleep(20 * time.Millisecond)
		src.set(snapshotAt("target", base.Add(time.Second)))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := sub.WaitFor(ctx, func(s state.AppState) bool { return s.CurrentPeriod == "target" })
	if err != nil {
		t.Fatalf("wait for: %v", err)
	}
	if got.CurrentPeriod != "target" {
		t.Fatalf("unexpected state %q", got.CurrentPeriod)
	}
}

func TestSameLastUpdateIsIgnored(t *testing.T) {
	src := newFakeSource()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src.set(snapshotAt("first", base))
	sub := startSubscriber(t, src)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := sub.WaitFor(ctx, func(state.AppState) bool { return true }); err != nil {
		t.Fatalf("initial state: %v", err)
	}

	_, version, _ := sub.watch()
	src.set(snapshotAt("duplicate", base))
	time.Sleep(50 * time.Millisecond)
	cur, _ := sub.Current()
	if cur.CurrentPeriod != "first" {
		t.Fatalf("duplicate last_update should be ignored, got %q", cur.CurrentPeriod)
	}
	if _, v, _ := sub.watch(); v != version {
		t.Fatalf("version changed from %d to %d", version, v)
	}
}

func TestOlderLastUpdateIsIgnored(t *testing.T) {
	src := newFakeSource()
	sub := New(src, nil)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	sub.observe(snapshotAt("newer", base.Add(time.Second)))
	_, version, _ := sub.watch()
	sub.observe(snapshotAt("older", base))

	cur, ok := sub.Current()
	if !ok || cur.CurrentPeriod != "newer" {
		t.Fatalf("older last_update should be ignored, got %q", cur.CurrentPeriod)
	}
	if _, v, _ := sub.watch(); v != version {
		t.Fatalf("version changed from %d to %d", version, v)
	}

	sub.Clear()
	sub.observe(snapshotAt("after-clear", base))
	if cur, _ := sub.Current(); cur.CurrentPeriod != "after-clear" {
		t.Fatalf("snapshot after clear should be accepted, got %q", cur.CurrentPeriod)
	}
}

func TestWaitForChangeHonorsContext(t *testing.T) {
	sub := startSubscriber(t, newFakeSource())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, _, err := sub.WaitForChange(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestEventsReportUpdatesAndClear(t *testing.T) {
	src := newFakeSource()
	sub := startSubscriber(t, src)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events := sub.Events(ctx)

	src.set(snapshotAt("2024010", time.Now()))
	evt := <-events
	if evt.Kind != EventUpdated || evt.State.CurrentPeriod != "2024010" {
		t.Fatalf("unexpected event %+v", evt)
	}

	sub.Clear()
	evt = <-events
	if evt.Kind != EventCleared {
		t.Fatalf("expected cleared event, got %s", evt.Kind)
	}
	if _, ok := sub.Current(); ok {
		t.Fatal("expected no state after clear")
	}
}

func TestStats(t *testing.T) {
	src := newFakeSource()
	sub := New(src, nil)

	stats := sub.Stats()
	if stats.HasState {
		t.Fatal("expected no state")
	}

	s := snapshotAt("2024020", time.Now())
	s.UnprizeSpotsCount = 5
	s.APIStatus.Provider = "mxnzp"
	s.DaemonUptime = 90
	sub.observe(s)

	stats = sub.Stats()
	if !stats.HasState || stats.UnprizeSpotsCount != 5 || stats.APIProvider != "mxnzp" {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.DaemonUptime != 90*time.Second {
		t.Fatalf("unexpected uptime %s", stats.DaemonUptime)
	}
	if stats.ConnectionStatus != ConnectionConnected {
		t.Fatalf("unexpected connection status %q", stats.ConnectionStatus)
	}

	src.mu.Lock()
	src.connected = false
	src.mu.Unlock()
	if got := sub.Stats().ConnectionStatus; got != ConnectionDisconnected {
		t.Fatalf("expected disconnected, got %q", got)
	}
}
