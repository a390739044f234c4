package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeIPC()
	c.normalizeProvider()
	c.Metrics.Listen = strings.TrimSpace(c.Metrics.Listen)
	c.API.Listen = strings.TrimSpace(c.API.Listen)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}

	derived := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.log_dir", &c.Paths.LogDir, filepath.Join(c.Paths.DataDir, "logs")},
		{"paths.socket_path", &c.Paths.SocketPath, defaultSocketPath},
		{"paths.lock_path", &c.Paths.LockPath, defaultLockPath},
		{"paths.pid_path", &c.Paths.PIDPath, filepath.Join(c.Paths.DataDir, "dball.pid")},
		{"paths.database_path", &c.Paths.DatabasePath, filepath.Join(c.Paths.DataDir, "dball.db")},
	}
	for _, field := range derived {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		if *field.value, err = expandPath(*field.value); err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeIPC() {
	c.IPC.ClientInfo = strings.TrimSpace(c.IPC.ClientInfo)
	if c.IPC.ClientInfo == "" {
		c.IPC.ClientInfo = defaultClientInfo
	}
	if c.IPC.BroadcastCapacity <= 0 {
		c.IPC.BroadcastCapacity = defaultBroadcastCapacity
	}
}

func (c *Config) normalizeProvider() {
	if c.Provider.AppID == "" {
		if value, ok := os.LookupEnv(envAppID); ok {
			c.Provider.AppID = strings.TrimSpace(value)
		}
	}
	if c.Provider.AppSecret == "" {
		if value, ok := os.LookupEnv(envAppSecret); ok {
			c.Provider.AppSecret = strings.TrimSpace(value)
		}
	}
	c.Provider.Name = strings.TrimSpace(c.Provider.Name)
	if c.Provider.Name == "" {
		c.Provider.Name = defaultProviderName
	}
	c.Provider.BaseURL = strings.TrimRight(strings.TrimSpace(c.Provider.BaseURL), "/")
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = defaultProviderBaseURL
	}
	c.Provider.LotteryCode = strings.TrimSpace(c.Provider.LotteryCode)
	if c.Provider.LotteryCode == "" {
		c.Provider.LotteryCode = defaultLotteryCode
	}
}
