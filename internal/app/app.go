// Package app assembles the lifecycle components from configuration. It is
// the cold-start wiring shared by the sweeper Lambda, the API server and the
// job-runner.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"adlifecycle/internal/config"
	"adlifecycle/internal/db"
	"adlifecycle/internal/lifecycle"
	"adlifecycle/internal/notifications"
	"adlifecycle/internal/scheduler"
	"adlifecycle/internal/telemetry"
	"adlifecycle/internal/types"
)

// App holds the wired components. Close releases the pool and broker
// connections.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Pool       *pgxpool.Pool
	Ads        *db.AdRepository
	Feed       *db.NotificationRepository
	Notifier   lifecycle.Notifier
	Service    *lifecycle.Service
	Sweeper    *scheduler.ExpirationSweeper
	Metrics    Metrics
	JobLock    *db.JobLockRepository
	JobHistory *db.JobHistoryRepository

	closers []func()
}

// Metrics is the telemetry selected by METRICS_BACKEND. Every field is nil
// for the "none" backend; Prometheus is set only for "prometheus".
type Metrics struct {
	Sweep      scheduler.SweepMetrics
	Failures   notifications.FailureRecorder
	Prometheus *telemetry.PrometheusSweepMetrics
}

// New connects to the database and builds every component. On error, any
// connection already opened is closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:               cfg.Database.URL.Unmask(),
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
	})
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)
	logger.InfoContext(ctx, "database connection established")

	a.Ads = db.NewAdRepositoryFromPool(pool)
	a.Feed = db.NewNotificationRepository(pool)
	a.JobLock = db.NewJobLockRepository(pool)
	a.JobHistory = db.NewJobHistoryRepository(pool)

	var awsCfg *aws.Config
	if needsAWS(cfg) {
		loaded, err := loadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			a.Close()
			return nil, err
		}
		awsCfg = &loaded
	}

	var cw telemetry.CloudWatchClient
	if cfg.Observability.MetricsBackend == config.MetricsCloudWatch {
		cw = cloudwatch.NewFromConfig(*awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
	}
	a.Metrics = BuildMetrics(cfg.Observability, cw, logger)

	sinks := SinkClients{Feed: a.Feed}
	if cfg.Notify.HasSink(config.SinkSQS) {
		sinks.SQS = sqs.NewFromConfig(*awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
	}
	if cfg.Notify.HasSink(config.SinkAMQP) {
		amqpSink, err := notifications.DialAMQP(cfg.Notify.AMQPURL.Unmask(), cfg.Notify.AMQPExchange, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		sinks.AMQP = amqpSink
		a.closers = append(a.closers, func() {
			if err := amqpSink.Close(); err != nil {
				logger.Warn("failed to close amqp connection", "error", err)
			}
		})
	}
	a.Notifier = BuildNotifier(cfg, sinks, a.Metrics.Failures, logger)

	messages := lifecycle.MessageBuilder{BaseURL: cfg.Server.DashboardURL}
	a.Service = lifecycle.NewService(a.Ads, a.Ads, a.Notifier, messages, logger)

	opts := []scheduler.SweeperOption{
		scheduler.WithBatchSize(cfg.Sweep.BatchSize),
		scheduler.WithMessages(messages),
	}
	if a.Metrics.Sweep != nil {
		opts = append(opts, scheduler.WithMetrics(a.Metrics.Sweep))
	}
	a.Sweeper = scheduler.NewExpirationSweeper(a.Ads, a.Notifier, logger, opts...)

	return a, nil
}

// TaskRunner returns a runner over the app's sweeper, stats and job tables.
func (a *App) TaskRunner(workerID string) *scheduler.TaskRunner {
	return &scheduler.TaskRunner{
		Sweeper:    a.Sweeper,
		Stats:      a.Service,
		JobLock:    a.JobLock,
		JobHistory: a.JobHistory,
		Clock:      types.RealClock{},
		WorkerID:   workerID,
		LockTTL:    a.Config.Sweep.LockTTL,
		Logger:     a.Logger,
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// SinkClients carries the already-constructed transports for BuildNotifier.
// A nil field disables that sink even if configured.
type SinkClients struct {
	Feed lifecycle.Notifier
	SQS  notifications.SQSSender
	AMQP lifecycle.Notifier
}

// BuildNotifier wraps each configured sink in its own circuit breaker and fans
// out across them in the order listed in NOTIFY_SINKS.
func BuildNotifier(cfg *config.Config, clients SinkClients, failures notifications.FailureRecorder, logger *slog.Logger) lifecycle.Notifier {
	var named []notifications.NamedSink
	for _, name := range cfg.Notify.Sinks {
		var sink lifecycle.Notifier
		switch name {
		case config.SinkFeed:
			sink = clients.Feed
		case config.SinkSQS:
			if clients.SQS != nil {
				sink = notifications.NewSQSSink(clients.SQS, cfg.AWS.NotificationQueue, logger)
			}
		case config.SinkAMQP:
			sink = clients.AMQP
		}
		if sink == nil {
			logger.Warn("notification sink not available, skipping", "sink", name)
			continue
		}
		named = append(named, notifications.NamedSink{
			Name: name,
			Sink: notifications.NewBreakerSink(sink, notifications.BreakerSettings{
				Name:                name,
				ConsecutiveFailures: cfg.Notify.BreakerFailures,
				OpenTimeout:         cfg.Notify.BreakerTimeout,
			}, logger),
		})
	}
	return notifications.NewFanoutSink(named, failures, logger)
}

// BuildMetrics selects the sweep metrics backend. cw is only used for the
// CloudWatch backend.
func BuildMetrics(cfg config.ObservabilityConfig, cw telemetry.CloudWatchClient, logger *slog.Logger) Metrics {
	switch cfg.MetricsBackend {
	case config.MetricsPrometheus:
		prom := telemetry.NewPrometheusSweepMetrics("", nil)
		return Metrics{Sweep: prom, Failures: prom, Prometheus: prom}
	case config.MetricsCloudWatch:
		if cw == nil {
			logger.Warn("cloudwatch metrics selected without a client, metrics disabled")
			return Metrics{}
		}
		m := telemetry.NewCloudWatchSweepMetrics(cw, cfg.MetricNamespace, logger)
		return Metrics{Sweep: m, Failures: m}
	default:
		return Metrics{}
	}
}

func needsAWS(cfg *config.Config) bool {
	return cfg.Notify.HasSink(config.SinkSQS) || cfg.Observability.MetricsBackend == config.MetricsCloudWatch
}

func loadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return awsCfg, nil
}

// NewLogger returns a JSON logger at the given level name. Unknown names
// fall back to info.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
