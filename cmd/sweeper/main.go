// Package main is the entrypoint for the Sweeper Lambda function.
//
// EventBridge invokes the function with a MaintenancePayload. The daily rule
// sends {"task":"expiration_sweep"}; an empty payload is treated the same
// way. The handler delegates to scheduler.TaskRunner, which takes the
// distributed job lock, records job history and dispatches the task.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"adlifecycle/internal/app"
	"adlifecycle/internal/config"
	"adlifecycle/internal/scheduler"
)

// taskRunner is the subset of scheduler.TaskRunner the handler calls.
type taskRunner interface {
	Run(ctx context.Context, payload scheduler.MaintenancePayload) (string, error)
}

// Handler adapts Lambda invocations to the task runner.
type Handler struct {
	Runner      taskRunner
	DefaultTask scheduler.TaskType
	Logger      *slog.Logger
}

// Handle runs one invocation. Returning an error lets Lambda's retry policy
// re-deliver the event; the job lock keeps a retry from overlapping a run
// that is still in progress.
func (h *Handler) Handle(ctx context.Context, payload scheduler.MaintenancePayload) (string, error) {
	if payload.Task == "" {
		payload.Task = h.DefaultTask
	}
	summary, err := h.Runner.Run(ctx, payload)
	if err != nil {
		h.Logger.ErrorContext(ctx, "sweeper invocation failed", "task", string(payload.Task), "error", err)
		return "", err
	}
	return summary, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("Sweeper Lambda initializing (cold start)")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = app.NewLogger(cfg.LogLevel).With("service", cfg.Service, "version", cfg.Build.Version)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize components", "error", err)
		os.Exit(1)
	}

	// Unique per Lambda instance; used for job lock ownership.
	workerID := uuid.New().String()

	handler := &Handler{
		Runner:      a.TaskRunner(workerID),
		DefaultTask: scheduler.TaskExpirationSweep,
		Logger:      logger,
	}

	logger.Info("Sweeper Lambda ready", "worker_id", workerID, "metrics_backend", cfg.Observability.MetricsBackend)
	lambda.Start(handler.Handle)
}
