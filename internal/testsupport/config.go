package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"dball/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = base
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SocketPath = SocketPath(t)
	cfgVal.Paths.LockPath = filepath.Join(base, "dball.lock")
	cfgVal.Paths.PIDPath = filepath.Join(base, "dball.pid")
	cfgVal.Paths.DatabasePath = filepath.Join(base, "dball.db")
	cfgVal.Provider.AppID = "test"
	cfgVal.Provider.AppSecret = "test"
	cfgVal.Provider.BaseURL = "http://127.0.0.1:0"
	cfgVal.Provider.QPS = 0
	cfgVal.Daemon.RefreshOnStart = false
	cfgVal.Reconnect.MinIntervalMS = 10
	cfgVal.Reconnect.MaxIntervalMS = 50
	cfgVal.Reconnect.MonitorIntervalMS = 20

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithProviderURL points the provider client at baseURL, typically an
// httptest server.
func WithProviderURL(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Provider.BaseURL = baseURL
	}
}

// WithProviderQPS sets the provider pacing ceiling.
func WithProviderQPS(qps int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Provider.QPS = qps
	}
}

// WithBatchSize sets the number of picks per generated batch.
func WithBatchSize(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.BatchSize = n
	}
}

// WithHistoryStartYear sets the first year crawled by a full history crawl.
func WithHistoryStartYear(year int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.HistoryStartYear = year
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.DataDir
}

// SocketPath returns a socket location short enough for the unix socket
// path limit, removed when the test ends.
func SocketPath(t testing.TB) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "dball")
	if err != nil {
		t.Fatalf("create socket dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "d.sock")
}
