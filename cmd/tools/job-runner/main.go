// Package main implements the job-runner CLI for invoking lifecycle tasks
// directly, bypassing the AWS Lambda shim.
//
// It is intended for local development, replaying a sweep at a past or
// future reference time, and deployments without EventBridge, where
// --schedule keeps the process running and fires the sweep on a cron
// expression.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --task=expiration_sweep
//	go run ./cmd/tools/job-runner --task=expiration_sweep --reference-time=2026-03-01T03:00:00Z
//	go run ./cmd/tools/job-runner --dry-run --task=expiration_stats
//	go run ./cmd/tools/job-runner --list
//	go run ./cmd/tools/job-runner --schedule
//	go run ./cmd/tools/job-runner --schedule --cron="*/15 * * * *"
//
// Configuration is read from the environment (or a .env file via godotenv),
// exactly as the Lambda reads it. --dry-run and --list need no configuration.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"

	"adlifecycle/internal/app"
	"adlifecycle/internal/config"
	"adlifecycle/internal/scheduler"
)

// taskDescriptions documents every task the runner dispatches.
var taskDescriptions = map[scheduler.TaskType]string{
	scheduler.TaskExpirationSweep: "Run the six lifecycle stages (delete, auto-renew, expire, warn 7d/24h, deletion warning)",
	scheduler.TaskExpirationStats: "Compute and log the expiration dashboard counts",
}

func main() {
	taskFlag := flag.String("task", "", "Task type to execute (e.g., expiration_sweep)")
	refTimeFlag := flag.String("reference-time", "", "Override reference time (RFC3339, e.g., 2026-03-01T03:00:00Z)")
	listFlag := flag.Bool("list", false, "List all available task types and exit")
	dryRunFlag := flag.Bool("dry-run", false, "Print the JSON payload without executing")
	scheduleFlag := flag.Bool("schedule", false, "Run as a daemon, firing expiration_sweep on a cron schedule")
	cronFlag := flag.String("cron", "", "Cron expression for --schedule (default: SWEEP_SCHEDULE)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Invoke ad lifecycle tasks directly, bypassing Lambda.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nUse --list to see all available task types.\n")
	}

	flag.Parse()

	if *listFlag {
		printAvailableTasks(os.Stderr)
		return
	}

	if !*scheduleFlag {
		payload, err := buildPayload(*taskFlag, *refTimeFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
			if errors.Is(err, errUnknownTask) {
				printAvailableTasks(os.Stderr)
			} else {
				flag.Usage()
			}
			os.Exit(1)
		}
		if *dryRunFlag {
			if err := printPayload(os.Stdout, payload); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		}
		if err := runOnce(payload); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := runScheduled(*cronFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var (
	errMissingTask = errors.New("--task is required")
	errUnknownTask = errors.New("unknown task type")
)

// buildPayload validates the flags and constructs the maintenance payload.
func buildPayload(task, refTime string) (scheduler.MaintenancePayload, error) {
	if task == "" {
		return scheduler.MaintenancePayload{}, errMissingTask
	}
	taskType := scheduler.TaskType(task)
	if _, ok := taskDescriptions[taskType]; !ok {
		return scheduler.MaintenancePayload{}, fmt.Errorf("%w %q", errUnknownTask, task)
	}

	payload := scheduler.MaintenancePayload{Task: taskType}
	if refTime != "" {
		t, err := time.Parse(time.RFC3339, refTime)
		if err != nil {
			return scheduler.MaintenancePayload{}, fmt.Errorf("invalid --reference-time %q (expected RFC3339, e.g., 2026-03-01T03:00:00Z): %w", refTime, err)
		}
		payload.ReferenceTime = &t
	}
	return payload, nil
}

// setup loads configuration and wires the components shared with the Lambda.
func setup(ctx context.Context) (*app.App, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	logger := app.NewLogger(cfg.LogLevel)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, logger, err
	}
	return a, logger, nil
}

// runOnce executes a single payload through the same TaskRunner the Lambda
// uses, so the job lock and history behave identically.
func runOnce(payload scheduler.MaintenancePayload) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, logger, err := setup(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	defer a.Close()

	runner := a.TaskRunner(fmt.Sprintf("job-runner-%s", uuid.New().String()))
	runner.ReleaseLock = true
	result, err := runner.Run(ctx, payload)
	if err != nil {
		logger.Error("task execution failed", "task", string(payload.Task), "error", err)
		return err
	}

	logger.Info("task execution succeeded", "task", string(payload.Task), "result", result)
	return nil
}

// runScheduled blocks until SIGINT or SIGTERM, firing the sweep on spec (or
// the configured SWEEP_SCHEDULE when spec is empty).
func runScheduled(spec string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if spec == "" {
		spec = a.Config.Sweep.Schedule
	}

	cr := scheduler.NewCronRunner(a.TaskRunner(fmt.Sprintf("job-runner-%s", uuid.New().String())), logger)
	if err := cr.Schedule(ctx, spec, scheduler.TaskExpirationSweep); err != nil {
		return err
	}
	cr.Start(ctx)

	if next := cr.NextRun(); next != nil {
		logger.Info("scheduler running", "next_run", next.Format(time.RFC3339))
	}

	<-ctx.Done()
	cr.Stop()
	logger.Info("scheduler shut down")
	return nil
}

// printAvailableTasks writes all valid task types and their descriptions,
// sorted alphabetically by task name.
func printAvailableTasks(w io.Writer) {
	fmt.Fprintf(w, "Available task types:\n\n")

	tasks := make([]scheduler.TaskType, 0, len(taskDescriptions))
	for t := range taskDescriptions {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return string(tasks[i]) < string(tasks[j])
	})

	maxLen := 0
	for _, t := range tasks {
		if len(string(t)) > maxLen {
			maxLen = len(string(t))
		}
	}

	for _, t := range tasks {
		fmt.Fprintf(w, "  %-*s  %s\n", maxLen, string(t), taskDescriptions[t])
	}
	fmt.Fprintln(w)
}

// printPayload writes the payload as indented JSON for inspection or piping
// into `aws lambda invoke`.
func printPayload(w io.Writer, payload scheduler.MaintenancePayload) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
