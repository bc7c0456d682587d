package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// CronRunner runs tasks in-process on a cron schedule. It is the daemon mode
// of the job-runner for deployments without an external scheduler.
type CronRunner struct {
	runner  *TaskRunner
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewCronRunner creates a CronRunner dispatching to runner.
func NewCronRunner(runner *TaskRunner, logger *slog.Logger) *CronRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &CronRunner{
		runner: runner,
		cron:   cron.New(cron.WithLocation(time.UTC)),
		logger: logger.With("component", "scheduler.cron"),
	}
}

// Schedule registers task under a standard five-field cron expression,
// e.g. "0 3 * * *" for daily at 03:00 UTC.
func (c *CronRunner) Schedule(ctx context.Context, spec string, task TaskType) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.cron.AddFunc(spec, func() {
		c.fire(ctx, task)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", task, err)
	}
	c.logger.Info("task scheduled", "task", string(task), "schedule", spec)
	return nil
}

// fire runs one scheduled invocation. Errors are logged; the next tick retries.
func (c *CronRunner) fire(ctx context.Context, task TaskType) {
	summary, err := c.runner.Run(ctx, MaintenancePayload{Task: task})
	if err != nil {
		c.logger.Error("scheduled task failed", "task", string(task), "error", err)
		return
	}
	c.logger.Info("scheduled task finished", "task", string(task), "summary", summary)
}

// Start begins firing scheduled tasks. The runner stops when ctx is cancelled.
func (c *CronRunner) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.cron.Start()
	c.running = true

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
}

// Stop stops the scheduler and waits for any running task to complete.
func (c *CronRunner) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		done := c.cron.Stop()
		<-done.Done()
		c.running = false
		c.logger.Info("cron runner stopped")
	}
}

// IsRunning reports whether the scheduler is running.
func (c *CronRunner) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// NextRun returns the earliest next firing time, or nil if nothing is scheduled.
func (c *CronRunner) NextRun() *time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	for _, e := range entries[1:] {
		if !e.Next.IsZero() && e.Next.Before(next) {
			next = e.Next
		}
	}
	return &next
}
