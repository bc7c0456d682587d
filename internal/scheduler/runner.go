package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"adlifecycle/internal/types"
)

// DefaultLockTTL covers a sweep's typical duration with margin.
const DefaultLockTTL = 15 * time.Minute

// Sweeper runs one expiration sweep.
type Sweeper interface {
	RunSweep(ctx context.Context, now time.Time) SweepResult
}

// StatsReporter computes the expiration dashboard counts.
type StatsReporter interface {
	GetExpirationStats(ctx context.Context, now time.Time) (*types.ExpirationStats, error)
}

// JobLocker abstracts the distributed lock.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID string, workerID string) error
}

// JobHistorian abstracts the job history recording.
type JobHistorian interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, err error) error
}

// Job history statuses.
const (
	JobStatusSuccess = "success"
	JobStatusPartial = "partial"
	JobStatusFailed  = "failed"
)

// TaskRunner is the maintenance multiplexer: it resolves the reference time,
// takes the hourly job lock, records job history and dispatches the task.
// JobLock and JobHistory are optional; nil skips locking or history.
type TaskRunner struct {
	Sweeper    Sweeper
	Stats      StatsReporter
	JobLock    JobLocker
	JobHistory JobHistorian
	Clock      types.Clock
	WorkerID   string
	LockTTL    time.Duration
	// ReleaseLock drops the job lock once the task finishes. The Lambda keeps
	// it until TTL so retried events are skipped; the CLI releases it so an
	// operator can re-run within the same hour.
	ReleaseLock bool
	Logger      *slog.Logger
}

// Run handles one payload. A sweep with per-item failures is recorded as
// partial and is not an error; only infrastructure failures (lock, stats
// query, unknown task) are returned.
func (r *TaskRunner) Run(ctx context.Context, payload MaintenancePayload) (string, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if payload.Task == "" {
		return "", fmt.Errorf("empty task type in maintenance payload")
	}

	now := r.now()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	taskStr := string(payload.Task)
	logger.InfoContext(ctx, "scheduled task invoked",
		"task", taskStr,
		"reference_time", now.Format(time.RFC3339),
		"worker_id", r.WorkerID,
	)

	if r.JobLock != nil {
		lockID := LockID(payload.Task, now)
		ttl := r.LockTTL
		if ttl <= 0 {
			ttl = DefaultLockTTL
		}
		acquired, err := r.JobLock.Acquire(ctx, lockID, r.WorkerID, ttl)
		if err != nil {
			logger.ErrorContext(ctx, "failed to acquire job lock", "lock_id", lockID, "error", err)
			return "", fmt.Errorf("acquiring job lock %s: %w", lockID, err)
		}
		if !acquired {
			logger.InfoContext(ctx, "job lock not acquired, another worker is processing", "lock_id", lockID)
			return fmt.Sprintf("skipped: lock %s held by another worker", lockID), nil
		}
		if r.ReleaseLock {
			defer func() {
				if err := r.JobLock.Release(ctx, lockID, r.WorkerID); err != nil {
					logger.ErrorContext(ctx, "failed to release job lock", "lock_id", lockID, "error", err)
				}
			}()
		}
	}

	var jobID int64
	if r.JobHistory != nil {
		id, err := r.JobHistory.Start(ctx, taskStr)
		if err != nil {
			// Non-fatal: run the task without history.
			logger.ErrorContext(ctx, "failed to start job history", "task", taskStr, "error", err)
		} else {
			jobID = id
		}
	}

	items, status, execErr := r.dispatch(ctx, payload.Task, now)

	if jobID != 0 {
		if err := r.JobHistory.Finish(ctx, jobID, status, items, execErr); err != nil {
			logger.ErrorContext(ctx, "failed to finish job history", "job_id", jobID, "error", err)
		}
	}

	if status == JobStatusFailed {
		return "", fmt.Errorf("task %s failed: %w", taskStr, execErr)
	}

	summary := fmt.Sprintf("task %s %s: %d items processed", taskStr, status, items)
	logger.InfoContext(ctx, summary, "task", taskStr, "items", items, "status", status)
	return summary, nil
}

// dispatch routes a task. For partial sweeps the returned error carries the
// joined item errors for job history.
func (r *TaskRunner) dispatch(ctx context.Context, task TaskType, now time.Time) (int, string, error) {
	switch task {
	case TaskExpirationSweep:
		if r.Sweeper == nil {
			return 0, JobStatusFailed, fmt.Errorf("sweeper not configured")
		}
		res := r.Sweeper.RunSweep(ctx, now)
		if len(res.Errors) > 0 {
			return res.Processed, JobStatusPartial, fmt.Errorf("%d errors: %s", len(res.Errors), strings.Join(res.Errors, "; "))
		}
		return res.Processed, JobStatusSuccess, nil

	case TaskExpirationStats:
		if r.Stats == nil {
			return 0, JobStatusFailed, fmt.Errorf("stats reporter not configured")
		}
		stats, err := r.Stats.GetExpirationStats(ctx, now)
		if err != nil {
			return 0, JobStatusFailed, err
		}
		r.logger().InfoContext(ctx, "expiration stats",
			"total_published", stats.TotalPublished,
			"expiring_within_7_days", stats.ExpiringWithin7Days,
			"total_expired", stats.TotalExpired,
			"total_with_auto_renew", stats.TotalWithAutoRenew,
		)
		return 0, JobStatusSuccess, nil

	default:
		return 0, JobStatusFailed, fmt.Errorf("unknown task type: %q", task)
	}
}

func (r *TaskRunner) now() time.Time {
	if r.Clock != nil {
		return r.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *TaskRunner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// LockID is the job lock key: one lock per task per hour.
func LockID(task TaskType, now time.Time) string {
	return fmt.Sprintf("%s:%s", task, now.UTC().Truncate(time.Hour).Format("2006-01-02T15"))
}
