package lifecycle_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adlifecycle/internal/lifecycle"
	"adlifecycle/internal/lifecycle/lifecycletest"
	"adlifecycle/internal/types"
)

var t0 = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func ptr(t time.Time) *time.Time { return &t }

func expiredAd(id string, expiredAt time.Time) *types.Ad {
	ad := lifecycletest.PublishedAd(id, "owner-1", expiredAt.Add(-lifecycle.Lifetime))
	lifecycle.ApplyExpiration(ad, expiredAt)
	return ad
}

func TestPublishSetsLifetime(t *testing.T) {
	ad := lifecycletest.PublishedAd("ad-1", "owner-1", t0)

	assert.Equal(t, types.StatusPublished, ad.Status)
	require.NotNil(t, ad.ExpiresAt)
	assert.Equal(t, t0.Add(days(60)), *ad.ExpiresAt)
	assert.Equal(t, t0, *ad.PublishedAt)
	assert.NoError(t, lifecycle.Validate(ad))
}

func TestPredicates(t *testing.T) {
	pub := func(mod func(*types.Ad)) *types.Ad {
		ad := lifecycletest.PublishedAd("ad-1", "owner-1", t0)
		if mod != nil {
			mod(ad)
		}
		return ad
	}
	exp := func(mod func(*types.Ad)) *types.Ad {
		ad := expiredAd("ad-1", t0.Add(days(60)))
		if mod != nil {
			mod(ad)
		}
		return ad
	}
	deleted := func(ad *types.Ad) { ad.DeletedAt = ptr(t0) }

	tests := []struct {
		name  string
		ad    *types.Ad
		now   time.Time
		stage lifecycle.Stage
		want  bool
	}{
		{"deletion at schedule boundary", exp(nil), t0.Add(days(67)), lifecycle.StageDeletion, true},
		{"deletion before schedule", exp(nil), t0.Add(days(67) - time.Second), lifecycle.StageDeletion, false},
		{"deletion ignores soft-deleted", exp(deleted), t0.Add(days(90)), lifecycle.StageDeletion, false},
		{"deletion ignores published", pub(nil), t0.Add(days(90)), lifecycle.StageDeletion, false},

		{"auto-renew at expiry", pub(func(a *types.Ad) { a.AutoRenew = true }), t0.Add(days(60)), lifecycle.StageAutoRenewal, true},
		{"auto-renew before expiry", pub(func(a *types.Ad) { a.AutoRenew = true }), t0.Add(days(59)), lifecycle.StageAutoRenewal, false},
		{"auto-renew needs flag", pub(nil), t0.Add(days(60)), lifecycle.StageAutoRenewal, false},

		{"expiration at expiry", pub(nil), t0.Add(days(60)), lifecycle.StageExpiration, true},
		{"expiration overdue", pub(nil), t0.Add(days(75)), lifecycle.StageExpiration, true},
		{"expiration skips auto-renew", pub(func(a *types.Ad) { a.AutoRenew = true }), t0.Add(days(60)), lifecycle.StageExpiration, false},
		{"expiration ignores soft-deleted", pub(deleted), t0.Add(days(75)), lifecycle.StageExpiration, false},

		{"7d warning exactly 7 days out", pub(nil), t0.Add(days(53)), lifecycle.StageWarning7d, true},
		{"7d warning 8 days out", pub(nil), t0.Add(days(52)), lifecycle.StageWarning7d, false},
		{"7d warning exactly 1 day out", pub(nil), t0.Add(days(59)), lifecycle.StageWarning7d, false},
		{"7d warning already sent", pub(func(a *types.Ad) { a.ExpirationWarning7d = true }), t0.Add(days(55)), lifecycle.StageWarning7d, false},

		{"24h warning exactly 1 day out", pub(nil), t0.Add(days(59)), lifecycle.StageWarning24h, true},
		{"24h warning 2 days out", pub(nil), t0.Add(days(58)), lifecycle.StageWarning24h, false},
		{"24h warning already sent", pub(func(a *types.Ad) { a.ExpirationWarning24h = true }), t0.Add(days(59)), lifecycle.StageWarning24h, false},

		{"deletion warning 1 day before", exp(nil), t0.Add(days(66)), lifecycle.StageDeletionWarning, true},
		{"deletion warning 2 days before", exp(nil), t0.Add(days(65)), lifecycle.StageDeletionWarning, false},
		{"deletion warning already sent", exp(func(a *types.Ad) { a.DeletionWarning = true }), t0.Add(days(66)), lifecycle.StageDeletionWarning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stage.Due(tt.ad, tt.now))
		})
	}
}

func TestDecideFollowsSweepOrder(t *testing.T) {
	ad := lifecycletest.PublishedAd("ad-1", "owner-1", t0)

	_, ok := lifecycle.Decide(ad, t0.Add(days(10)))
	assert.False(t, ok, "nothing is due mid-lifetime")

	s, ok := lifecycle.Decide(ad, t0.Add(days(54)))
	require.True(t, ok)
	assert.Equal(t, lifecycle.StageWarning7d, s)

	s, ok = lifecycle.Decide(ad, t0.Add(days(60)))
	require.True(t, ok)
	assert.Equal(t, lifecycle.StageExpiration, s, "expiration wins over the 24h warning")

	ad.AutoRenew = true
	s, ok = lifecycle.Decide(ad, t0.Add(days(60)))
	require.True(t, ok)
	assert.Equal(t, lifecycle.StageAutoRenewal, s)
}

// Walking an ad through its whole lifetime hour by hour, applying whichever
// stage is due, must keep the state invariants and never skip the warnings.
func TestLifecycleWalkKeepsInvariants(t *testing.T) {
	ad := lifecycletest.PublishedAd("ad-1", "owner-1", t0)
	var seen []lifecycle.Stage

	for now := t0; now.Before(t0.Add(days(70))); now = now.Add(time.Hour) {
		for {
			s, ok := lifecycle.Decide(ad, now)
			if !ok {
				break
			}
			s.Apply(ad, now)
			seen = append(seen, s)
			require.NoError(t, lifecycle.Validate(ad), "after %s at %s", s, now)
		}
	}

	assert.Equal(t, []lifecycle.Stage{
		lifecycle.StageWarning7d,
		lifecycle.StageWarning24h,
		lifecycle.StageExpiration,
		lifecycle.StageDeletionWarning,
		lifecycle.StageDeletion,
	}, seen)
	assert.Equal(t, lifecycle.StateDeleted, lifecycle.StateOf(ad))
}

func TestApplyRenewalResetsLifecycle(t *testing.T) {
	ad := expiredAd("ad-1", t0.Add(days(60)))
	ad.ExpirationWarning7d = true
	ad.ExpirationWarning24h = true
	ad.DeletionWarning = true
	now := t0.Add(days(63))

	lifecycle.ApplyRenewal(ad, now)

	assert.Equal(t, types.StatusPublished, ad.Status)
	assert.Equal(t, now.Add(days(60)), *ad.ExpiresAt)
	assert.Nil(t, ad.ExpiredAt)
	assert.Nil(t, ad.DeletionScheduledAt)
	assert.Equal(t, 1, ad.RenewalCount)
	assert.Equal(t, now, *ad.LastRenewalAt)
	assert.False(t, ad.ExpirationWarning7d)
	assert.False(t, ad.ExpirationWarning24h)
	assert.False(t, ad.DeletionWarning)
	assert.NoError(t, lifecycle.Validate(ad))
}

func TestApplyExpirationSchedulesDeletion(t *testing.T) {
	ad := lifecycletest.PublishedAd("ad-1", "owner-1", t0)
	ad.DeletionWarning = true
	now := t0.Add(days(60))

	lifecycle.ApplyExpiration(ad, now)

	assert.Equal(t, types.StatusExpired, ad.Status)
	assert.Equal(t, now, *ad.ExpiredAt)
	assert.Equal(t, t0.Add(days(67)), *ad.DeletionScheduledAt)
	assert.False(t, ad.DeletionWarning)
}

func TestValidate(t *testing.T) {
	pub := lifecycletest.PublishedAd("ad-1", "owner-1", t0)
	pub.DeletionScheduledAt = ptr(t0)
	assert.Error(t, lifecycle.Validate(pub))

	noExpiry := &types.Ad{ID: "ad-2", Status: types.StatusPublished}
	assert.Error(t, lifecycle.Validate(noExpiry))

	exp := &types.Ad{ID: "ad-3", Status: types.StatusExpired}
	err := lifecycle.Validate(exp)
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalInvariant, appErr.Code)

	gone := &types.Ad{ID: "ad-4", Status: types.StatusExpired, DeletedAt: ptr(t0)}
	assert.NoError(t, lifecycle.Validate(gone))

	draft := &types.Ad{ID: "ad-5", Status: types.StatusDraft}
	assert.NoError(t, lifecycle.Validate(draft))
}

func TestStageNames(t *testing.T) {
	for _, s := range lifecycle.Stages {
		parsed, err := lifecycle.ParseStage(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := lifecycle.ParseStage("purge")
	assert.Error(t, err)
	assert.Equal(t, "stage(42)", lifecycle.Stage(42).String())
}

func TestMessageBuilder(t *testing.T) {
	b := lifecycle.MessageBuilder{BaseURL: "https://ads.example.com/"}
	ad := lifecycletest.PublishedAd("ad-1", "owner-1", t0)
	now := t0.Add(days(53))

	n := b.ForStage(lifecycle.StageWarning7d, ad, now)
	assert.Equal(t, types.KindWarning, n.Kind)
	assert.Equal(t, types.EventAdExpiring7d, n.Event)
	assert.Equal(t, "owner-1", n.OwnerID)
	assert.Equal(t, "https://ads.example.com/dashboard/ads/ad-1", n.ActionURL)
	assert.Contains(t, n.Message, "7 days")
	assert.NotEmpty(t, n.ID)

	del := b.ForStage(lifecycle.StageDeletion, ad, now)
	assert.Equal(t, types.KindAlert, del.Kind)
	assert.Empty(t, del.ActionURL, "deleted ads have nothing to link to")

	exp := b.ForStage(lifecycle.StageExpiration, ad, now)
	assert.Contains(t, exp.Message, "7 days")

	r := b.Renewed(ad, now)
	assert.Equal(t, types.KindInfo, r.Kind)
	assert.Equal(t, types.EventAdRenewed, r.Event)
}
