// Package reconnect retries a connection with exponential backoff and watches
// it afterwards, reconnecting whenever it drops.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted wraps the last failure once MaxAttempts is reached.
var ErrExhausted = errors.New("reconnect: attempts exhausted")

// Config describes the retry schedule. MaxAttempts zero retries forever.
type Config struct {
	MinInterval     time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
	MonitorInterval time.Duration
}

// DefaultConfig returns the standard schedule: 1s doubling to 60s, unlimited
// attempts, 5s monitor cadence.
func DefaultConfig() Config {
	return Config{
		MinInterval:     time.Second,
		MaxInterval:     time.Minute,
		Multiplier:      2.0,
		MonitorInterval: 5 * time.Second,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MinInterval <= 0 {
		c.MinInterval = def.MinInterval
	}
	if c.MaxInterval < c.MinInterval {
		c.MaxInterval = c.MinInterval
	}
	if c.Multiplier < 1 {
		c.Multiplier = def.Multiplier
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = def.MonitorInterval
	}
	return c
}

// NotifyFunc observes a failed attempt and the wait before the next one.
type NotifyFunc func(attempt int, err error, wait time.Duration)

func newBackOff(cfg Config) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.MinInterval
	b.MaxInterval = cfg.MaxInterval
	b.Multiplier = cfg.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Retry calls fn until it succeeds, ctx ends, or MaxAttempts attempts have
// failed. Waits start at MinInterval and grow by Multiplier up to MaxInterval.
func Retry(ctx context.Context, cfg Config, fn func(context.Context) error, notify NotifyFunc) error {
	cfg = cfg.normalized()
	b := newBackOff(cfg)

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
		}
		wait := b.NextBackOff()
		if notify != nil {
			notify(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Target is a connection the Manager keeps alive.
type Target interface {
	Connect(ctx context.Context) error
	Connected() bool
}

// Manager connects a Target and restores it whenever it drops.
type Manager struct {
	Target Target
	Config Config

	// OnDisconnect runs when the monitor sees the target drop.
	OnDisconnect func()
	// OnReconnect runs after every successful connect, including the first.
	OnReconnect func()
	Notify      NotifyFunc
}

// Run blocks until ctx ends or a reconnect sequence exhausts its attempts.
// A cancelled ctx returns nil.
func (m *Manager) Run(ctx context.Context) error {
	cfg := m.Config.normalized()
	connect := func() error {
		err := Retry(ctx, cfg, m.Target.Connect, m.Notify)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if m.OnReconnect != nil {
			m.OnReconnect()
		}
		return nil
	}

	if err := connect(); err != nil || ctx.Err() != nil {
		return err
	}

	ticker := time.NewTicker(cfg.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if m.Target.Connected() {
				continue
			}
			if m.OnDisconnect != nil {
				m.OnDisconnect()
			}
			if err := connect(); err != nil || ctx.Err() != nil {
				return err
			}
		}
	}
}
