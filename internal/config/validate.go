package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateIPC(); err != nil {
		return err
	}
	if err := c.validateReconnect(); err != nil {
		return err
	}
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	return c.validateListeners()
}

func (c *Config) validateListeners() error {
	if c.API.Listen != "" && c.API.Listen == c.Metrics.Listen {
		return fmt.Errorf("api.listen and metrics.listen must differ (both %q)", c.API.Listen)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateIPC() error {
	if c.IPC.RequestTimeoutSeconds <= 0 {
		return errors.New("ipc.request_timeout_seconds must be positive")
	}
	if c.IPC.DialTimeoutSeconds <= 0 {
		return errors.New("ipc.dial_timeout_seconds must be positive")
	}
	if c.IPC.MaxFrameBytes < 1024 {
		return errors.New("ipc.max_frame_bytes must be at least 1024")
	}
	if c.Paths.SocketPath == "" {
		return errors.New("paths.socket_path must be set")
	}
	return nil
}

func (c *Config) validateReconnect() error {
	r := c.Reconnect
	if r.MinIntervalMS <= 0 || r.MaxIntervalMS <= 0 || r.MonitorIntervalMS <= 0 {
		return errors.New("reconnect intervals must be positive")
	}
	if r.MinIntervalMS > r.MaxIntervalMS {
		return errors.New("reconnect.min_interval_ms must not exceed reconnect.max_interval_ms")
	}
	if r.Multiplier < 1 {
		return errors.New("reconnect.multiplier must be at least 1")
	}
	if r.MaxAttempts < 0 {
		return errors.New("reconnect.max_attempts must be zero (unlimited) or positive")
	}
	return nil
}

func (c *Config) validateProvider() error {
	if c.Provider.QPS < 0 {
		return errors.New("provider.qps must not be negative")
	}
	if c.Provider.TimeoutSeconds <= 0 {
		return errors.New("provider.timeout_seconds must be positive")
	}
	parsed, err := url.Parse(c.Provider.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("provider.base_url: invalid URL %q", c.Provider.BaseURL)
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if c.Daemon.BatchSize < 1 || c.Daemon.BatchSize > 100 {
		return errors.New("daemon.batch_size must be between 1 and 100")
	}
	if c.Daemon.RefreshIntervalSeconds < 0 {
		return errors.New("daemon.refresh_interval_seconds must not be negative")
	}
	if c.Daemon.HistoryStartYear < 2003 {
		return errors.New("daemon.history_start_year must be 2003 or later")
	}
	if c.Daemon.MaxPeriodsPerYear < 1 || c.Daemon.MaxPeriodsPerYear > 999 {
		return errors.New("daemon.max_periods_per_year must be between 1 and 999")
	}
	return nil
}
