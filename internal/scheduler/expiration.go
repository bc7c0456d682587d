package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"adlifecycle/internal/lifecycle"
	"adlifecycle/internal/types"
)

// DefaultSweepBatchSize is the page size of each stage's candidate query.
const DefaultSweepBatchSize = 100

// StageReport summarizes one stage of a sweep.
type StageReport struct {
	Stage     string `json:"stage"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// SweepResult is the best-effort outcome of one sweep. Errors holds one entry
// per failed item plus one per stage whose candidate query failed.
type SweepResult struct {
	Processed        int           `json:"processed"`
	Expired          int           `json:"expired"`
	Deleted          int           `json:"deleted"`
	AutoRenewed      int           `json:"auto_renewed"`
	Notified7d       int           `json:"notified_7d"`
	Notified24h      int           `json:"notified_24h"`
	NotifiedDeletion int           `json:"notified_deletion"`
	Errors           []string      `json:"errors"`
	Stages           []StageReport `json:"stages"`
}

// count adds one committed transition of stage to the matching counter.
func (r *SweepResult) count(stage lifecycle.Stage) {
	r.Processed++
	switch stage {
	case lifecycle.StageDeletion:
		r.Deleted++
	case lifecycle.StageAutoRenewal:
		r.AutoRenewed++
	case lifecycle.StageExpiration:
		r.Expired++
	case lifecycle.StageWarning7d:
		r.Notified7d++
	case lifecycle.StageWarning24h:
		r.Notified24h++
	case lifecycle.StageDeletionWarning:
		r.NotifiedDeletion++
	}
}

// SweepMetrics receives the outcome of every sweep. Implementations live in
// internal/telemetry.
type SweepMetrics interface {
	RecordSweep(ctx context.Context, result SweepResult, duration time.Duration)
}

// ExpirationSweeper runs the six lifecycle stages over the ad store.
type ExpirationSweeper struct {
	store     lifecycle.AdStore
	notifier  lifecycle.Notifier
	messages  lifecycle.MessageBuilder
	metrics   SweepMetrics
	batchSize int
	logger    *slog.Logger
}

// SweeperOption configures an ExpirationSweeper.
type SweeperOption func(*ExpirationSweeper)

// WithBatchSize sets the candidate page size. Non-positive values are ignored.
func WithBatchSize(n int) SweeperOption {
	return func(s *ExpirationSweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m SweepMetrics) SweeperOption {
	return func(s *ExpirationSweeper) { s.metrics = m }
}

// WithMessages sets the notification message builder.
func WithMessages(b lifecycle.MessageBuilder) SweeperOption {
	return func(s *ExpirationSweeper) { s.messages = b }
}

// NewExpirationSweeper creates a sweeper. notifier may be nil.
func NewExpirationSweeper(store lifecycle.AdStore, notifier lifecycle.Notifier, logger *slog.Logger, opts ...SweeperOption) *ExpirationSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ExpirationSweeper{
		store:     store,
		notifier:  notifier,
		batchSize: DefaultSweepBatchSize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunSweep executes the stages in order against a single snapshot of now.
// It never returns an error: per-item and per-stage failures are reported in
// the result so an unattended scheduler always makes progress.
func (s *ExpirationSweeper) RunSweep(ctx context.Context, now time.Time) SweepResult {
	now = now.UTC()
	start := time.Now()
	result := SweepResult{Errors: []string{}}

	s.logger.InfoContext(ctx, "expiration sweep started", "now", now.Format(time.RFC3339))

	for _, stage := range lifecycle.Stages {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: sweep cancelled: %v", stage, err))
			break
		}
		result.Stages = append(result.Stages, s.runStage(ctx, stage, now, &result))
	}

	duration := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordSweep(ctx, result, duration)
	}

	s.logger.InfoContext(ctx, "expiration sweep complete",
		"processed", result.Processed,
		"expired", result.Expired,
		"deleted", result.Deleted,
		"auto_renewed", result.AutoRenewed,
		"notified_7d", result.Notified7d,
		"notified_24h", result.Notified24h,
		"notified_deletion", result.NotifiedDeletion,
		"errors", len(result.Errors),
		"duration_ms", duration.Milliseconds(),
	)
	return result
}

// runStage pages through the stage's candidates by id. Failed items are
// never re-listed within the run because the cursor moves past them.
func (s *ExpirationSweeper) runStage(ctx context.Context, stage lifecycle.Stage, now time.Time, result *SweepResult) StageReport {
	report := StageReport{Stage: stage.String()}
	cursor := ""

	for {
		ids, err := s.store.ListDue(ctx, stage, now, cursor, s.batchSize)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to list due ads",
				"stage", stage.String(),
				"error", err,
			)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: listing due ads: %v", stage, err))
			return report
		}
		if len(ids) == 0 {
			return report
		}

		for _, id := range ids {
			applied, err := s.applyEligible(ctx, stage, id, now)
			switch {
			case applied:
				report.Processed++
				result.count(stage)
			case err == nil:
				report.Skipped++
			default:
				report.Failed++
			}
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s ad %s: %v", stage, id, err))
				s.logger.ErrorContext(ctx, "lifecycle transition failed",
					"stage", stage.String(),
					"ad_id", id,
					"committed", applied,
					"error", err,
				)
			}
		}

		cursor = ids[len(ids)-1]
		if len(ids) < s.batchSize {
			return report
		}
	}
}

// applyEligible locks the ad, re-checks the stage guard, applies the
// mutation (and cascade for deletions), commits, then notifies. It returns
// false without error when the ad is no longer due, which is how an
// overlapping sweep becomes a no-op.
func (s *ExpirationSweeper) applyEligible(ctx context.Context, stage lifecycle.Stage, adID string, now time.Time) (bool, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ad, err := tx.LockAd(ctx, adID)
	if err != nil {
		return false, fmt.Errorf("locking ad: %w", err)
	}
	if !stage.Due(ad, now) {
		return false, nil
	}

	stage.Apply(ad, now)

	var cascade types.CascadeResult
	if stage.Cascades() {
		cascade, err = tx.PurgeDependents(ctx, ad.ID)
		if err != nil {
			return false, fmt.Errorf("purging dependents: %w", err)
		}
	}
	if err := lifecycle.Validate(ad); err != nil {
		return false, err
	}
	if err := tx.SaveLifecycle(ctx, ad); err != nil {
		return false, fmt.Errorf("saving ad: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing: %w", err)
	}

	if stage.Cascades() {
		s.logger.InfoContext(ctx, "ad soft-deleted",
			"ad_id", ad.ID,
			"messages", cascade.Messages,
			"conversations", cascade.Conversations,
			"favorites", cascade.Favorites,
			"alerts", cascade.Alerts,
		)
	}

	if s.notifier != nil {
		if err := s.notifier.Emit(ctx, s.messages.ForStage(stage, ad, now)); err != nil {
			// The transition is committed and stays counted.
			return true, &notifyError{err: err}
		}
	}
	return true, nil
}

type notifyError struct{ err error }

func (e *notifyError) Error() string { return "notify: " + e.err.Error() }
func (e *notifyError) Unwrap() error { return e.err }
