package config

const (
	defaultConfigPath             = "~/.config/dball/config.toml"
	defaultDataDir                = "~/.local/share/dball"
	defaultSocketPath             = "/tmp/dball-daemon.sock"
	defaultLockPath               = "/tmp/dball-daemon.lock"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultRequestTimeoutSeconds  = 24 * 60 * 60
	defaultDialTimeoutSeconds     = 2
	defaultMaxFrameBytes          = 8 << 20
	defaultBroadcastCapacity      = 100
	defaultClientInfo             = "dball-cli"
	defaultReconnectMinMS         = 1000
	defaultReconnectMaxMS         = 60000
	defaultReconnectMultiplier    = 2.0
	defaultReconnectMonitorMS     = 5000
	defaultProviderName           = "mxnzp"
	defaultProviderBaseURL        = "https://www.mxnzp.com/api/lottery/common"
	defaultLotteryCode            = "ssq"
	defaultProviderQPS            = 1
	defaultProviderTimeoutSeconds = 10
	defaultHistoryStartYear       = 2003
	defaultBatchSize              = 5
	defaultMaxPeriodsPerYear      = 200

	envAppID     = "DBALL_APP_ID"
	envAppSecret = "DBALL_APP_SECRET"
)

// Default returns a Config populated with repository defaults. Paths derived
// from data_dir are filled in by normalize.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			SocketPath: defaultSocketPath,
			LockPath:   defaultLockPath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		IPC: IPC{
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			DialTimeoutSeconds:    defaultDialTimeoutSeconds,
			MaxFrameBytes:         defaultMaxFrameBytes,
			BroadcastCapacity:     defaultBroadcastCapacity,
			ClientInfo:            defaultClientInfo,
		},
		Reconnect: Reconnect{
			MinIntervalMS:     defaultReconnectMinMS,
			MaxIntervalMS:     defaultReconnectMaxMS,
			Multiplier:        defaultReconnectMultiplier,
			MonitorIntervalMS: defaultReconnectMonitorMS,
		},
		Provider: Provider{
			Name:           defaultProviderName,
			BaseURL:        defaultProviderBaseURL,
			LotteryCode:    defaultLotteryCode,
			QPS:            defaultProviderQPS,
			TimeoutSeconds: defaultProviderTimeoutSeconds,
		},
		Daemon: Daemon{
			RefreshOnStart:    true,
			HistoryStartYear:  defaultHistoryStartYear,
			BatchSize:         defaultBatchSize,
			MaxPeriodsPerYear: defaultMaxPeriodsPerYear,
		},
	}
}
