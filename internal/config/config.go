package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file system locations used by the daemon and CLI.
type Paths struct {
	DataDir      string `toml:"data_dir"`
	LogDir       string `toml:"log_dir"`
	SocketPath   string `toml:"socket_path"`
	LockPath     string `toml:"lock_path"`
	PIDPath      string `toml:"pid_path"`
	DatabasePath string `toml:"database_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// IPC tunes the daemon socket protocol.
type IPC struct {
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	DialTimeoutSeconds    int    `toml:"dial_timeout_seconds"`
	MaxFrameBytes         int    `toml:"max_frame_bytes"`
	BroadcastCapacity     int    `toml:"broadcast_capacity"`
	ClientInfo            string `toml:"client_info"`
}

// Reconnect controls client reconnection backoff.
type Reconnect struct {
	MinIntervalMS     int     `toml:"min_interval_ms"`
	MaxIntervalMS     int     `toml:"max_interval_ms"`
	Multiplier        float64 `toml:"multiplier"`
	MaxAttempts       int     `toml:"max_attempts"`
	MonitorIntervalMS int     `toml:"monitor_interval_ms"`
}

// Provider configures the upstream draw-result API.
type Provider struct {
	Name           string `toml:"name"`
	BaseURL        string `toml:"base_url"`
	AppID          string `toml:"app_id"`
	AppSecret      string `toml:"app_secret"`
	LotteryCode    string `toml:"lottery_code"`
	QPS            int    `toml:"qps"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Daemon controls background behaviour.
type Daemon struct {
	RefreshOnStart         bool `toml:"refresh_on_start"`
	RefreshIntervalSeconds int  `toml:"refresh_interval_seconds"`
	HistoryStartYear       int  `toml:"history_start_year"`
	BatchSize              int  `toml:"batch_size"`
	MaxPeriodsPerYear      int  `toml:"max_periods_per_year"`
}

// Metrics configures the optional Prometheus endpoint.
type Metrics struct {
	Listen string `toml:"listen"`
}

// API configures the optional HTTP JSON listener.
type API struct {
	Listen string `toml:"listen"`
}

// Config encapsulates all configuration values for dball.
//
// Configuration sections by subsystem:
//   - Paths: data, log, socket, lock, pid and database locations
//   - Logging: log format and level
//   - IPC: socket protocol limits and client identity
//   - Reconnect: client backoff schedule
//   - Provider: draw-result API endpoint, credentials and QPS ceiling
//   - Daemon: refresh schedule and batch generation
//   - Metrics: Prometheus listen address
//   - API: HTTP JSON listen address
type Config struct {
	Paths     Paths     `toml:"paths"`
	Logging   Logging   `toml:"logging"`
	IPC       IPC       `toml:"ipc"`
	Reconnect Reconnect `toml:"reconnect"`
	Provider  Provider  `toml:"provider"`
	Daemon    Daemon    `toml:"daemon"`
	Metrics   Metrics   `toml:"metrics"`
	API       API       `toml:"api"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = defaultConfigPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.LogDir,
		filepath.Dir(c.Paths.SocketPath),
		filepath.Dir(c.Paths.LockPath),
		filepath.Dir(c.Paths.PIDPath),
		filepath.Dir(c.Paths.DatabasePath),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RequestTimeout is the default deadline for one client request.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.IPC.RequestTimeoutSeconds) * time.Second
}

// DialTimeout bounds a single socket connect attempt.
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.IPC.DialTimeoutSeconds) * time.Second
}

// ProviderTimeout bounds a single provider HTTP call.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}

// RefreshInterval is the periodic refresh cadence, zero when disabled.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Daemon.RefreshIntervalSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
