package scheduler

import (
	"context"
	"time"

	"zapflow_backend/platform/logger"
)

const (
	defaultRunRetentionInterval = time.Hour
	defaultRunRetention         = 90 * 24 * time.Hour
)

// RunPruner deletes automation audit rows older than a cutoff.
type RunPruner interface {
	DeleteRunsBefore(ctx context.Context, before time.Time) (int64, error)
}

// RunRetention periodically removes old automation_runs rows.
type RunRetention struct {
	pruner    RunPruner
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewRunRetention(pruner RunPruner, log *logger.Logger, interval, retention time.Duration) *RunRetention {
	if interval <= 0 {
		interval = defaultRunRetentionInterval
	}
	if retention <= 0 {
		retention = defaultRunRetention
	}

	return &RunRetention{
		pruner:    pruner,
		log:       log,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

func (c *RunRetention) Run(ctx context.Context) {
	if c == nil || c.pruner == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *RunRetention) cleanup(ctx context.Context) {
	deleted, err := c.pruner.DeleteRunsBefore(ctx, c.now().Add(-c.retention))
	if err != nil {
		c.log.Warn("automation run cleanup failed", "error", err)
		return
	}

	if deleted > 0 {
		c.log.Info("automation run cleanup deleted old runs", "deleted", deleted)
	}
}
