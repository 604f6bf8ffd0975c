// Package janitor periodically purges soft-deleted series that have aged out
// of their retention window.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Purger removes soft-deleted series last touched before the given cutoff and
// reports how many rows were deleted.
type Purger interface {
	PurgeDeletedSeries(ctx context.Context, before time.Time) (int, error)
}

type Janitor struct {
	cron      *cron.Cron
	purger    Purger
	retention time.Duration
	spec      string
	now       func() time.Time
	logger    *slog.Logger
}

// New builds a janitor that runs the purge on the given cron spec. A zero
// retention purges every soft-deleted series regardless of age.
func New(purger Purger, spec string, retention time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		purger:    purger,
		retention: retention,
		spec:      spec,
		now:       time.Now,
		logger:    logger,
	}
}

func (j *Janitor) Start(ctx context.Context) error {
	if j == nil || j.purger == nil {
		return fmt.Errorf("janitor: purger is required")
	}

	if _, err := j.cron.AddFunc(j.spec, func() { j.runPurge(ctx) }); err != nil {
		return fmt.Errorf("janitor: add purge job: %w", err)
	}

	j.cron.Start()
	j.logger.InfoContext(ctx, "janitor started", "spec", j.spec, "retention", j.retention)
	return nil
}

func (j *Janitor) Stop() {
	if j == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.logger.Info("janitor stopped")
}

func (j *Janitor) runPurge(ctx context.Context) {
	cutoff := j.now().Add(-j.retention)
	purged, err := j.purger.PurgeDeletedSeries(ctx, cutoff)
	if err != nil {
		j.logger.ErrorContext(ctx, "purge failed", "error", err, "cutoff", cutoff)
		return
	}
	if purged > 0 {
		j.logger.InfoContext(ctx, "purged soft-deleted series", "count", purged, "cutoff", cutoff)
	}
}
