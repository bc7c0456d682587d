// Package config defines the configuration of the ad lifecycle services.
// Configuration is loaded once at process initialization (Lambda cold start
// or daemon start) and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the entry point to exit
// immediately on startup (fail fast).
package config

import (
	"time"

	"adlifecycle/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Notification sink names accepted in NOTIFY_SINKS.
const (
	SinkFeed = "feed"
	SinkSQS  = "sqs"
	SinkAMQP = "amqp"
)

// Metrics backends accepted in METRICS_BACKEND.
const (
	MetricsNone       = "none"
	MetricsPrometheus = "prometheus"
	MetricsCloudWatch = "cloudwatch"
)

// Config is the top-level configuration struct. Sub-components receive only
// the subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"ad-lifecycle"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Notify        NotifyConfig
	Sweep         SweepConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Root of the owner dashboard used in notification action links (no trailing slash).
	DashboardURL string `envconfig:"DASHBOARD_URL" validate:"required,url"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"2" validate:"min=0,ltefield=MaxConns"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Required when NOTIFY_SINKS contains "sqs".
	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// NotifyConfig selects and tunes the notification sinks.
type NotifyConfig struct {
	Sinks []string `envconfig:"NOTIFY_SINKS" default:"feed" validate:"min=1,dive,oneof=feed sqs amqp"`

	// Required when Sinks contains "amqp".
	AMQPURL      SecretString `envconfig:"AMQP_URL"`
	AMQPExchange string       `envconfig:"AMQP_EXCHANGE" default:"ad-lifecycle"`

	BreakerFailures uint32        `envconfig:"NOTIFY_BREAKER_FAILURES" default:"5" validate:"min=1"`
	BreakerTimeout  time.Duration `envconfig:"NOTIFY_BREAKER_TIMEOUT" default:"30s"`
}

// HasSink reports whether name is among the configured sinks.
func (n NotifyConfig) HasSink(name string) bool {
	for _, s := range n.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// SweepConfig tunes the expiration sweep and its scheduling.
type SweepConfig struct {
	BatchSize int           `envconfig:"SWEEP_BATCH_SIZE" default:"100" validate:"min=1,max=10000"`
	Schedule  string        `envconfig:"SWEEP_SCHEDULE" default:"0 3 * * *" validate:"required"`
	LockTTL   time.Duration `envconfig:"SWEEP_LOCK_TTL" default:"15m"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricsBackend  string `envconfig:"METRICS_BACKEND" default:"none" validate:"oneof=none prometheus cloudwatch"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"AdLifecycle"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
