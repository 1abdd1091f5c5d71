// Package jobs runs background work on a schedule.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/room-timetable/internal/application"
	"github.com/example/room-timetable/internal/lock"
)

// MaterializationLockKey names the run lock shared by every instance.
const MaterializationLockKey = "timetable:materialize"

// Materializer performs one materialization pass.
type Materializer interface {
	Run(ctx context.Context) (application.MaterializationReport, error)
}

// MaterializationRunner triggers materialization passes periodically. The
// run lock only avoids duplicate work between instances; the storage key on
// (template, week) keeps overlapping passes idempotent.
type MaterializationRunner struct {
	job      Materializer
	locker   lock.Locker
	interval time.Duration
	lockTTL  time.Duration
	logger   *slog.Logger
}

// NewMaterializationRunner builds a runner. A nil locker falls back to an
// in-process lock.
func NewMaterializationRunner(job Materializer, locker lock.Locker, interval, lockTTL time.Duration, logger *slog.Logger) *MaterializationRunner {
	if locker == nil {
		locker = lock.NewLocalLock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &MaterializationRunner{
		job:      job,
		locker:   locker,
		interval: interval,
		lockTTL:  lockTTL,
		logger:   logger.With("component", "jobs", "job", "materialize"),
	}
}

// ErrRunInProgress is returned by RunOnce when another pass holds the lock.
var ErrRunInProgress = errors.New("jobs: materialization already running")

// RunOnce performs a single pass under the run lock.
func (r *MaterializationRunner) RunOnce(ctx context.Context) (application.MaterializationReport, error) {
	acquired, err := r.locker.Lock(ctx, MaterializationLockKey, r.lockTTL)
	if err != nil {
		return application.MaterializationReport{}, err
	}
	if !acquired {
		return application.MaterializationReport{}, ErrRunInProgress
	}
	defer func() {
		// Release even when ctx is already cancelled.
		if err := r.locker.Unlock(context.WithoutCancel(ctx), MaterializationLockKey); err != nil {
			r.logger.WarnContext(ctx, "failed to release run lock", "error", err)
		}
	}()

	started := time.Now()
	report, err := r.job.Run(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "materialization run failed", "error", err, "error_kind", application.ErrorKind(err))
		return report, err
	}

	r.logger.InfoContext(ctx, "materialization run finished",
		"weeks", len(report.Weeks),
		"created", report.Created,
		"already_materialized", report.AlreadyMaterialized,
		"cancelled", report.Cancelled,
		"not_eligible", report.NotEligible,
		"failures", len(report.Failures),
		"errors", len(report.Errors),
		"duration", time.Since(started),
	)
	return report, nil
}

// Start runs a pass immediately and then every interval until ctx is done.
// Failed passes are logged and retried on the next tick.
func (r *MaterializationRunner) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return errors.New("jobs: interval must be positive")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && errors.Is(err, ErrRunInProgress) {
			r.logger.InfoContext(ctx, "materialization skipped, another run holds the lock")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
