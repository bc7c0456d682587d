package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"adlifecycle/internal/lifecycle"
	"adlifecycle/internal/types"
)

// FailureRecorder counts failed deliveries per sink.
type FailureRecorder interface {
	RecordNotificationFailure(ctx context.Context, sink string)
}

// NamedSink pairs a sink with the name used in logs and metrics.
type NamedSink struct {
	Name string
	Sink lifecycle.Notifier
}

// FanoutSink emits every notification to all configured sinks. A failing
// sink does not stop delivery to the others; the failures are joined.
type FanoutSink struct {
	sinks    []NamedSink
	failures FailureRecorder
	logger   *slog.Logger
}

// NewFanoutSink creates a FanoutSink. failures may be nil.
func NewFanoutSink(sinks []NamedSink, failures FailureRecorder, logger *slog.Logger) *FanoutSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &FanoutSink{sinks: sinks, failures: failures, logger: logger}
}

// Emit delivers n to each sink in order.
func (f *FanoutSink) Emit(ctx context.Context, n types.OwnerNotification) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Sink.Emit(ctx, n); err != nil {
			f.logger.WarnContext(ctx, "notification delivery failed",
				"sink", s.Name,
				"notification_id", n.ID,
				"ad_id", n.AdID,
				"error", err,
			)
			if f.failures != nil {
				f.failures.RecordNotificationFailure(ctx, s.Name)
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of configured sinks.
func (f *FanoutSink) Len() int { return len(f.sinks) }
