package lifecycle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"adlifecycle/internal/types"
)

// GetExpirationStats aggregates dashboard counts. The four queries are
// independent reads and run concurrently.
func (s *Service) GetExpirationStats(ctx context.Context, now time.Time) (*types.ExpirationStats, error) {
	now = now.UTC()
	stats := &types.ExpirationStats{GeneratedAt: now}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.stats.CountByStatus(gCtx, types.StatusPublished)
		if err != nil {
			return fmt.Errorf("counting published ads: %w", err)
		}
		stats.TotalPublished = n
		return nil
	})
	g.Go(func() error {
		n, err := s.stats.CountExpiringBetween(gCtx, now, now.Add(Warning7dLead))
		if err != nil {
			return fmt.Errorf("counting expiring ads: %w", err)
		}
		stats.ExpiringWithin7Days = n
		return nil
	})
	g.Go(func() error {
		n, err := s.stats.CountByStatus(gCtx, types.StatusExpired)
		if err != nil {
			return fmt.Errorf("counting expired ads: %w", err)
		}
		stats.TotalExpired = n
		return nil
	})
	g.Go(func() error {
		n, err := s.stats.CountAutoRenewPublished(gCtx)
		if err != nil {
			return fmt.Errorf("counting auto-renew ads: %w", err)
		}
		stats.TotalWithAutoRenew = n
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}
