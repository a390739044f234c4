package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"dball/internal/config"
	"dball/internal/logging"
	"dball/internal/service"
)

// ErrAlreadyRunning reports that another process holds the daemon lock.
var ErrAlreadyRunning = errors.New("another dball daemon instance is already running")

// Daemon owns the process lock and the background refresh schedule.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *service.Service

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	started time.Time
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool          `json:"running" yaml:"running"`
	Uptime          time.Duration `json:"uptime" yaml:"uptime"`
	DatabasePath    string        `json:"database_path" yaml:"database_path"`
	SocketPath      string        `json:"socket_path" yaml:"socket_path"`
	LockFilePath    string        `json:"lock_path" yaml:"lock_path"`
	RefreshInterval time.Duration `json:"refresh_interval" yaml:"refresh_interval"`
	APIAddress      string        `json:"api_address,omitempty" yaml:"api_address,omitempty"`
}

// New constructs a daemon around svc.
func New(cfg *config.Config, svc *service.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || svc == nil {
		return nil, errors.New("daemon requires config and service")
	}
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		service:  svc,
		lockPath: cfg.Paths.LockPath,
		lock:     flock.New(cfg.Paths.LockPath),
		api:      newAPIServer(cfg, svc, svc.Holder(), logger),
	}, nil
}

// Start acquires the daemon lock, publishes the initial snapshot and starts
// background refreshes.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	if _, err := d.service.Refresh(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("initial state refresh: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel
	d.started = time.Now()
	d.running.Store(true)

	if d.cfg.Daemon.RefreshOnStart {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.refresh(runCtx)
		}()
	}
	if interval := d.cfg.RefreshInterval(); interval > 0 {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.refreshLoop(runCtx, interval)
		}()
	}

	d.logger.Info("dball daemon started",
		logging.String("lock", d.lockPath),
		logging.Bool("refresh_on_start", d.cfg.Daemon.RefreshOnStart),
		logging.Duration("refresh_interval", d.cfg.RefreshInterval()))
	return nil
}

// Stop halts background work and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("dball daemon stopped")
}

// Close stops the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	st := Status{
		Running:         d.running.Load(),
		DatabasePath:    d.cfg.Paths.DatabasePath,
		SocketPath:      d.cfg.Paths.SocketPath,
		LockFilePath:    d.lockPath,
		RefreshInterval: d.cfg.RefreshInterval(),
		APIAddress:      d.api.addr(),
	}
	if st.Running {
		st.Uptime = time.Since(d.started).Truncate(time.Second)
	}
	return st
}

func (d *Daemon) refreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.refresh(ctx)
		}
	}
}

// refresh pulls the latest result and scores anything it settles.
func (d *Daemon) refresh(ctx context.Context) {
	if _, err := d.service.UpdateLatestRecord(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.WarnWithContext(d.logger, "latest record refresh failed", "refresh_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "current period may be stale"),
			logging.String(logging.FieldErrorHint, "check provider credentials and network access"))
		return
	}
	if _, err := d.service.UpdateAllPendingEntries(ctx); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(d.logger, "pending entry scoring failed", "scoring_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "some entries remain unscored"))
	}
}
