// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator, then the
//     cross-field sink requirements.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid debugging.
// It wraps a ConfigErrorType and an underlying error message.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig loads and validates the configuration from the environment and
// an optional .env file in the working directory.
func LoadConfig() (*Config, error) {
	return loadConfig(func() error {
		_ = godotenv.Load()
		return nil
	})
}

// LoadConfigFrom is LoadConfig with explicit dotenv files. A missing file is
// an error here, unlike the implicit .env.
func LoadConfigFrom(files ...string) (*Config, error) {
	return loadConfig(func() error {
		if err := godotenv.Load(files...); err != nil {
			return &ConfigError{Type: ErrParsing, Message: "failed to load dotenv file", Err: err}
		}
		return nil
	})
}

func loadConfig(loadDotenv func() error) (*Config, error) {
	time.Local = time.UTC

	// godotenv never overrides variables already present in the environment.
	if err := loadDotenv(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	if err := validateCrossField(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateCrossField checks requirements that depend on other fields.
func validateCrossField(cfg *Config) error {
	if cfg.Notify.HasSink(SinkSQS) && cfg.AWS.NotificationQueue == "" {
		return &ConfigError{Type: ErrValidation, Message: "SQS_NOTIFICATIONS is required when NOTIFY_SINKS contains sqs"}
	}
	if cfg.Notify.HasSink(SinkAMQP) && cfg.Notify.AMQPURL.Unmask() == "" {
		return &ConfigError{Type: ErrValidation, Message: "AMQP_URL is required when NOTIFY_SINKS contains amqp"}
	}
	if _, err := cron.ParseStandard(cfg.Sweep.Schedule); err != nil {
		return &ConfigError{Type: ErrValidation, Message: "SWEEP_SCHEDULE is not a valid cron expression", Err: err}
	}
	return nil
}
