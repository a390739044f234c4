package main

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dball/internal/config"
	"dball/internal/draw"
	"dball/internal/ipc"
	"dball/internal/provider"
	"dball/internal/service"
	"dball/internal/state"
	"dball/internal/testsupport"
)

type stubProvider struct {
	mu      sync.Mutex
	records map[string]draw.Record
	latest  string
}

func (p *stubProvider) add(period, code string) {
	n, err := draw.ParseOpenCode(code)
	if err != nil {
		panic(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[period] = draw.Record{Period: period, DrawTime: time.Date(2024, 6, 9, 13, 15, 0, 0, time.UTC), Numbers: n}
	if period > p.latest {
		p.latest = period
	}
}

func (p *stubProvider) Latest(context.Context) (draw.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == "" {
		return draw.Record{}, provider.ErrNotFound
	}
	return p.records[p.latest], nil
}

func (p *stubProvider) ByPeriod(_ context.Context, period string) (draw.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[period]
	if !ok {
		return draw.Record{}, provider.ErrNotFound
	}
	return rec, nil
}

func (p *stubProvider) APIStatus() state.APIStatus {
	return state.APIStatus{Provider: "stub", SuccessRate: 1}
}

type cliTestEnv struct {
	cfg        *config.Config
	provider   *stubProvider
	holder     *state.Holder
	server     *ipc.Server
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	homeDir := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("DBALL_APP_ID", "")
	t.Setenv("DBALL_APP_SECRET", "")

	cfg := testsupport.NewConfig(t, testsupport.WithBatchSize(3))
	configPath := filepath.Join(homeDir, ".config", "dball", "config.toml")
	writeTestConfig(t, configPath, cfg)

	st := testsupport.MustOpenStore(t, cfg)
	p := &stubProvider{records: make(map[string]draw.Record)}
	p.add("2024066", "02,07,11,19,25,30+09")
	holder := state.NewHolder(state.NewHub(8))
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, draw.DrawZone)
	svc := service.New(cfg, st, p, holder, nil,
		service.WithClock(func() time.Time { return now }),
		service.WithRand(rand.New(rand.NewPCG(7, 11))))
	if _, err := svc.UpdateLatestRecord(context.Background()); err != nil {
		t.Fatalf("seed latest record: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, svc, holder, nil)
	if err != nil && strings.Contains(err.Error(), "operation not permitted") {
		cancel()
		t.Skipf("unix sockets not permitted in this environment: %v", err)
	}
	if err != nil {
		cancel()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return &cliTestEnv{cfg: cfg, provider: p, holder: holder, server: srv, configPath: configPath}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
socket_path = %q
lock_path = %q
pid_path = %q
database_path = %q

[provider]
app_id = "test"
app_secret = "test"

[reconnect]
min_interval_ms = 10
max_interval_ms = 50
monitor_interval_ms = 20

[daemon]
refresh_on_start = false
batch_size = %d
`,
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Paths.SocketPath,
		cfg.Paths.LockPath,
		cfg.Paths.PIDPath,
		cfg.Paths.DatabasePath,
		cfg.Daemon.BatchSize,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
