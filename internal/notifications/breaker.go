package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"adlifecycle/internal/lifecycle"
	"adlifecycle/internal/types"
)

// BreakerSettings configures BreakerSink.
type BreakerSettings struct {
	// Name identifies the breaker in logs, usually the sink name.
	Name string
	// ConsecutiveFailures trips the breaker once exceeded.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before a half-open probe.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings returns the defaults for a named sink.
func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:                name,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

// BreakerSink wraps a sink in a circuit breaker. While open, Emit fails
// immediately without calling the wrapped sink.
type BreakerSink struct {
	next    lifecycle.Notifier
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerSink wraps next.
func NewBreakerSink(next lifecycle.Notifier, cfg BreakerSettings, logger *slog.Logger) *BreakerSink {
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = DefaultBreakerSettings(cfg.Name).ConsecutiveFailures
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("notification sink breaker state changed",
				"sink", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &BreakerSink{next: next, breaker: cb}
}

// Emit forwards n unless the breaker is open.
func (b *BreakerSink) Emit(ctx context.Context, n types.OwnerNotification) error {
	_, err := b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Emit(ctx, n)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			"notification sink "+b.breaker.Name()+" unavailable", err)
	}
	return err
}

// State reports the breaker state, for health output.
func (b *BreakerSink) State() gobreaker.State {
	return b.breaker.State()
}
