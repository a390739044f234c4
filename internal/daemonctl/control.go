// Package daemonctl launches, stops and inspects the dball daemon from the
// command line side of the socket.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"dball/internal/config"
	"dball/internal/ipc"
	"dball/internal/reconnect"
	"dball/internal/wire"
)

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// ClientOptions derives socket client settings from cfg.
func ClientOptions(cfg *config.Config) ipc.Options {
	return ipc.Options{
		ClientInfo:     cfg.IPC.ClientInfo,
		RequestTimeout: cfg.RequestTimeout(),
		DialTimeout:    cfg.DialTimeout(),
		Limits:         wire.Limits{MaxFrameBytes: cfg.IPC.MaxFrameBytes},
	}
}

// ReconnectConfig converts the configured backoff schedule.
func ReconnectConfig(cfg *config.Config) reconnect.Config {
	return reconnect.Config{
		MinInterval:     time.Duration(cfg.Reconnect.MinIntervalMS) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.Reconnect.MaxIntervalMS) * time.Millisecond,
		Multiplier:      cfg.Reconnect.Multiplier,
		MaxAttempts:     cfg.Reconnect.MaxAttempts,
		MonitorInterval: time.Duration(cfg.Reconnect.MonitorIntervalMS) * time.Millisecond,
	}
}

// Launch starts a detached dball daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient polls the socket until the daemon accepts a connection.
func WaitForClient(ctx context.Context, socketPath string, opts ipc.Options, timeout time.Duration) (*ipc.Client, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := ipc.NewClient(socketPath, opts)
	poll := reconnect.Config{MinInterval: 200 * time.Millisecond, MaxInterval: 200 * time.Millisecond, Multiplier: 1}
	var lastErr error
	err := reconnect.Retry(waitCtx, poll, func(ctx context.Context) error {
		lastErr = client.Connect(ctx)
		return lastErr
	}, nil)
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
	}
	return client, nil
}

// EnsureStarted launches the daemon unless one already answers on the socket.
func EnsureStarted(ctx context.Context, cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client, err := ipc.Dial(ctx, cfg.Paths.SocketPath, ClientOptions(cfg))
	if err == nil {
		_ = client.Close()
		pid, _ := ReadPID(cfg.Paths.PIDPath)
		return StartResult{State: StartStateAlreadyRunning, PID: pid}, nil
	}
	if !isDaemonUnavailable(err) {
		return StartResult{}, err
	}

	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	client, err = WaitForClient(ctx, cfg.Paths.SocketPath, ClientOptions(cfg), waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	_ = client.Close()
	pid, _ := ReadPID(cfg.Paths.PIDPath)
	return StartResult{State: StartStateStarted, Launched: true, PID: pid}, nil
}

// WaitForShutdown waits for the daemon socket to stop accepting connections.
func WaitForShutdown(ctx context.Context, socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		dialCtx, cancel := context.WithTimeout(ctx, time.Second)
		client, err := ipc.Dial(dialCtx, socketPath, ipc.Options{DialTimeout: time.Second})
		cancel()
		if err != nil {
			if isDaemonUnavailable(err) {
				return nil
			}
		} else {
			_ = client.Close()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return fmt.Errorf("daemon did not stop within %s", timeout)
}

// ReadPID reads the daemon pid file.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("daemon pid file %q is malformed", pidPath)
	}
	return pid, nil
}

// ProcessAlive reports whether pid names a live process.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// ProcessInfo returns whether daemon IPC is reachable and the daemon PID when available.
func ProcessInfo(ctx context.Context, cfg *config.Config) (bool, int, error) {
	client, err := ipc.Dial(ctx, cfg.Paths.SocketPath, ClientOptions(cfg))
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	_ = client.Close()
	pid, _ := ReadPID(cfg.Paths.PIDPath)
	return true, pid, nil
}

// ForceKillProcess sends SIGKILL to the daemon and cleans up its pid, lock
// and socket files.
func ForceKillProcess(cfg *config.Config, fallbackPID int) (int, error) {
	pid, err := ReadPID(cfg.Paths.PIDPath)
	if err != nil {
		if fallbackPID <= 0 {
			return 0, fmt.Errorf("unable to determine daemon pid: %w", err)
		}
		pid = fallbackPID
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	for _, path := range []string{cfg.Paths.PIDPath, cfg.Paths.LockPath, cfg.Paths.SocketPath} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return pid, fmt.Errorf("remove %q: %w", path, err)
		}
	}
	return pid, nil
}

// StopAndTerminate asks the daemon to shut down and force-kills it if the
// socket is still live after gracePeriod.
func StopAndTerminate(ctx context.Context, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(ctx, cfg.Paths.SocketPath, ClientOptions(cfg))
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	pid, _ := ReadPID(cfg.Paths.PIDPath)
	result := StopResult{PID: pid}

	callCtx, cancel := context.WithTimeout(ctx, gracePeriod)
	err = client.Call(callCtx, wire.Shutdown{}, nil)
	cancel()
	_ = client.Close()
	result.StopAcknowledged = err == nil

	if waitErr := WaitForShutdown(ctx, cfg.Paths.SocketPath, gracePeriod); waitErr == nil {
		return result, nil
	}
	if pid > 0 && !ProcessAlive(pid) {
		_ = os.Remove(cfg.Paths.SocketPath)
		return result, nil
	}

	killed, killErr := ForceKillProcess(cfg, pid)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", killErr)
	}
	result.ForcedKill = true
	result.PID = killed
	return result, nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(ctx context.Context, cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(ctx, cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(ctx, cfg, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

func isDaemonUnavailable(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
