// Package events provides background maintenance for the event history.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/guardarr/internal/repository"
)

// Janitor prunes events older than the retention window on a cron
// schedule.
type Janitor struct {
	repo      *repository.EventRepository
	retention time.Duration
	schedule  string
	logger    *slog.Logger
	cron      *cron.Cron
}

// NewJanitor creates a retention janitor. A retention of zero disables
// pruning entirely.
func NewJanitor(repo *repository.EventRepository, retention time.Duration, schedule string, logger *slog.Logger) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	j := &Janitor{
		repo:      repo,
		retention: retention,
		schedule:  schedule,
		logger:    logger,
	}

	if retention <= 0 {
		return j, nil
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		j.Prune(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	j.cron = c

	return j, nil
}

// Start begins the cleanup schedule. No-op when pruning is disabled.
func (j *Janitor) Start() {
	if j.cron == nil {
		j.logger.Info("event retention disabled, janitor not started")
		return
	}
	j.cron.Start()
	j.logger.Info("event janitor started",
		slog.String("schedule", j.schedule),
		slog.Duration("retention", j.retention),
	)
}

// Stop halts the schedule and waits for a running prune to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

// Prune deletes events past the retention window.
func (j *Janitor) Prune(ctx context.Context) {
	if j.retention <= 0 {
		return
	}

	cutoff := time.Now().Add(-j.retention)
	deleted, err := j.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("event pruning failed", slog.String("error", err.Error()))
		return
	}
	if deleted > 0 {
		j.logger.Info("pruned old events",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", cutoff),
		)
	}
}
