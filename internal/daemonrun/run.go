// Package daemonrun hosts the daemon process: it assembles the store,
// provider, service and socket server, then blocks until a signal or a
// Shutdown/Restart request ends the run.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"dball/internal/config"
	"dball/internal/daemon"
	"dball/internal/daemonctl"
	"dball/internal/ipc"
	"dball/internal/logging"
	"dball/internal/metrics"
	"dball/internal/provider"
	"dball/internal/ratelimit"
	"dball/internal/service"
	"dball/internal/state"
	"dball/internal/store"
	"dball/internal/wire"
)

// shutdownGrace lets the Shutdown/Restart acknowledgement reach the client
// before sockets close.
const shutdownGrace = 200 * time.Millisecond

// Options configures daemon process runtime behavior.
type Options struct {
	ConfigPath string
	LogLevel   string
}

// lifecycle turns Shutdown and Restart requests into a delayed cancel.
type lifecycle struct {
	cancel  context.CancelFunc
	restart atomic.Bool
	fired   atomic.Bool
}

func (l *lifecycle) RequestShutdown(restart bool) {
	if restart {
		l.restart.Store(true)
	}
	if !l.fired.CompareAndSwap(false, true) {
		return
	}
	time.AfterFunc(shutdownGrace, l.cancel)
}

// Run starts the dball daemon runtime loop. When a Restart request ended the
// run, a fresh daemon process is launched after this one has released its
// socket, lock and pid file.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	restart, err := serve(cmdCtx, cfg, logger)
	if err != nil {
		return err
	}
	if restart {
		relaunch(cfg, opts, logger)
	}
	return nil
}

func serve(cmdCtx context.Context, cfg *config.Config, logger *slog.Logger) (bool, error) {
	signalCtx, stopSignals := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	runCtx, cancel := context.WithCancel(signalCtx)
	defer cancel()

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return false, err
	}
	defer st.Close()

	m := metrics.New()
	registry := ratelimit.NewRegistry(logger, m)
	client, err := provider.NewFromConfig(cfg, registry, logger, m)
	if err != nil {
		return false, fmt.Errorf("configure provider: %w", err)
	}

	holder := state.NewHolder(state.NewHub(cfg.IPC.BroadcastCapacity))
	lc := &lifecycle{cancel: cancel}
	svc := service.New(cfg, st, client, holder, logger, service.WithLifecycle(lc))

	d, err := daemon.New(cfg, svc, logger)
	if err != nil {
		return false, fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(runCtx); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			return false, err
		}
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and database access"),
			logging.String(logging.FieldImpact, "daemon cannot serve requests"),
		)
		return false, err
	}
	defer d.Close()

	// Only the lock holder owns the pid file.
	if err := writePIDFile(cfg.Paths.PIDPath); err != nil {
		return false, fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(cfg.Paths.PIDPath)

	ipcServer, err := ipc.NewServer(runCtx, cfg.Paths.SocketPath, svc, holder, logger,
		ipc.WithMetrics(m),
		ipc.WithLimits(wire.Limits{MaxFrameBytes: cfg.IPC.MaxFrameBytes}))
	if err != nil {
		return false, fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	// Runs before ipcServer.Close so subscriber pumps stop forwarding first.
	defer holder.Hub().Close()
	ipcServer.Serve()

	if listen := strings.TrimSpace(cfg.Metrics.Listen); listen != "" {
		metricsServer := serveMetrics(listen, m, logger)
		defer shutdownHTTP(metricsServer)
	}

	logger.Info("dball daemon listening",
		logging.String("socket", cfg.Paths.SocketPath),
		logging.String("database", st.Path()),
		logging.String(logging.FieldProvider, client.Name()))

	<-runCtx.Done()
	logger.Info("dball daemon shutting down", logging.Bool("restart", lc.restart.Load()))

	return lc.restart.Load(), nil
}

func serveMetrics(listen string, m *metrics.Metrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.WarnWithContext(logger, "metrics endpoint failed", "metrics_listen_failed",
				logging.Error(err),
				logging.String("listen", listen),
				logging.String(logging.FieldImpact, "prometheus scrapes will fail"),
				logging.String(logging.FieldErrorHint, "choose a free address for metrics.listen"))
		}
	}()
	return srv
}

func shutdownHTTP(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func relaunch(cfg *config.Config, opts Options, logger *slog.Logger) {
	exe, err := os.Executable()
	if err == nil {
		err = daemonctl.Launch(exe, daemonctl.LaunchOptions{ConfigPath: opts.ConfigPath, LogLevel: opts.LogLevel})
	}
	if err != nil {
		logging.ErrorWithContext(logger, "daemon relaunch failed", "daemon_restart_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "daemon stays stopped after restart request"),
			logging.String(logging.FieldErrorHint, "run `dball start`"))
		return
	}
	logger.Info("daemon relaunched", logging.String("socket", cfg.Paths.SocketPath))
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
