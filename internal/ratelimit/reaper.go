package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aman-churiwal/projectguard/internal/metrics"
	"github.com/robfig/cron/v3"
)

const (
	DefaultReaperHorizon  = 24 * time.Hour
	DefaultReaperSchedule = "@every 1h"
)

// Reaper purges rate limit windows older than a fixed staleness horizon.
// The horizon is larger than any policy window, so live windows are never removed.
type Reaper struct {
	store    Store
	horizon  time.Duration
	schedule string
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	cron     *cron.Cron
}

type ReaperConfig struct {
	Horizon  time.Duration // Default: 24h
	Schedule string        // cron spec, default: "@every 1h"
	Timeout  time.Duration // per run, default: 1m
}

func NewReaper(store Store, cfg ReaperConfig, logger *slog.Logger, m *metrics.Metrics) *Reaper {
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultReaperHorizon
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultReaperSchedule
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Noop()
	}

	return &Reaper{
		store:    store,
		horizon:  cfg.Horizon,
		schedule: cfg.Schedule,
		timeout:  cfg.Timeout,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Cleanup deletes every window that started before now minus the horizon
func (r *Reaper) Cleanup(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.horizon)

	deleted, err := r.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return deleted, fmt.Errorf("failed to delete expired windows: %w", err)
	}

	r.metrics.RecordReaped(ctx, deleted)
	r.logger.InfoContext(ctx, "rate limit windows reaped",
		"deleted", deleted,
		"cutoff", cutoff,
	)

	return deleted, nil
}

// Start schedules Cleanup on the configured cron spec
func (r *Reaper) Start() error {
	c := cron.New()

	_, err := c.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if _, err := r.Cleanup(ctx); err != nil {
			r.logger.Error("rate limit reaper run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reaper schedule %q: %w", r.schedule, err)
	}

	r.cron = c
	c.Start()
	r.logger.Info("rate limit reaper started", "schedule", r.schedule, "horizon", r.horizon)

	return nil
}

// Stop halts scheduling and waits for a running cleanup to finish
func (r *Reaper) Stop(ctx context.Context) {
	if r.cron == nil {
		return
	}

	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}
