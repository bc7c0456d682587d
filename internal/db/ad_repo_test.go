package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"adlifecycle/internal/lifecycle"
	"adlifecycle/internal/types"
)

var testNow = time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)

// adScan returns a scanFn that fills the adColumns destinations from ad.
func adScan(ad *types.Ad) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = ad.ID
		*dest[1].(*string) = ad.OwnerID
		*dest[2].(*string) = ad.Title
		*dest[3].(*types.AdStatus) = ad.Status
		*dest[4].(**time.Time) = ad.PublishedAt
		*dest[5].(**time.Time) = ad.ExpiresAt
		*dest[6].(**time.Time) = ad.ExpiredAt
		*dest[7].(**time.Time) = ad.DeletionScheduledAt
		*dest[8].(*bool) = ad.AutoRenew
		*dest[9].(*int) = ad.RenewalCount
		*dest[10].(**time.Time) = ad.LastRenewalAt
		*dest[11].(*bool) = ad.ExpirationWarning7d
		*dest[12].(*bool) = ad.ExpirationWarning24h
		*dest[13].(*bool) = ad.DeletionWarning
		*dest[14].(**time.Time) = ad.DeletedAt
		*dest[15].(*time.Time) = ad.CreatedAt
		*dest[16].(*time.Time) = ad.UpdatedAt
		return nil
	}
}

func sampleAd() *types.Ad {
	exp := testNow.Add(5 * 24 * time.Hour)
	pub := exp.Add(-lifecycle.Lifetime)
	return &types.Ad{
		ID:          "ad_1",
		OwnerID:     "owner_1",
		Title:       "Bike",
		Status:      types.StatusPublished,
		PublishedAt: &pub,
		ExpiresAt:   &exp,
		CreatedAt:   pub,
		UpdatedAt:   pub,
	}
}

func TestStageFilter_EveryStageHasAFilter(t *testing.T) {
	for _, s := range lifecycle.Stages {
		filter, args, err := stageFilter(s, testNow)
		require.NoError(t, err, s.String())
		assert.NotEmpty(t, filter)
		assert.NotEmpty(t, args)
	}
	_, _, err := stageFilter(lifecycle.Stage(99), testNow)
	assert.Error(t, err)
}

func TestStageFilter_WarningWindows(t *testing.T) {
	_, args, err := stageFilter(lifecycle.StageWarning7d, testNow)
	require.NoError(t, err)
	assert.Equal(t, []any{testNow.Add(7 * 24 * time.Hour), testNow.Add(24 * time.Hour)}, args)

	_, args, err = stageFilter(lifecycle.StageDeletionWarning, testNow)
	require.NoError(t, err)
	assert.Equal(t, []any{testNow.Add(24 * time.Hour)}, args)
}

func TestAdRepository_ListDue_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAdRepository(db, nil)
	ctx := context.Background()

	rows := newMockRows([][]any{{"ad_1"}, {"ad_2"}})
	db.On("Query", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "status = 'expired' AND deletion_scheduled_at <= $1") &&
			strings.Contains(sql, "deleted_at IS NULL") &&
			strings.Contains(sql, "id > $2") &&
			strings.Contains(sql, "LIMIT $3")
	}), []any{testNow, "ad_0", 50}).Return(rows, nil)

	ids, err := repo.ListDue(ctx, lifecycle.StageDeletion, testNow, "ad_0", 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"ad_1", "ad_2"}, ids)
	assert.True(t, rows.closed)
	db.AssertExpectations(t)
}

func TestAdRepository_ListDue_PlaceholdersFollowFilterArgs(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAdRepository(db, nil)
	ctx := context.Background()

	db.On("Query", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "id > $3") && strings.Contains(sql, "LIMIT $4")
	}), mock.Anything).Return(newMockRows(nil), nil)

	ids, err := repo.ListDue(ctx, lifecycle.StageWarning7d, testNow, "", 100)
	require.NoError(t, err)
	assert.Empty(t, ids)
	db.AssertExpectations(t)
}

func TestAdRepository_ListDue_QueryError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAdRepository(db, nil)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := repo.ListDue(ctx, lifecycle.StageExpiration, testNow, "", 10)
	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestAdRepository_ListDue_RowsError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAdRepository(db, nil)
	ctx := context.Background()

	rows := newMockRows([][]any{{"ad_1"}})
	rows.errVal = errors.New("stream broken")
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	_, err := repo.ListDue(ctx, lifecycle.StageExpiration, testNow, "", 10)
	require.Error(t, err)
}

func TestAdRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	want := sampleAd()

	t.Run("found", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"ad_1"}).
			Return(&mockRow{scanFn: adScan(want)})

		got, err := NewAdRepository(db, nil).GetByID(ctx, "ad_1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("not found", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
			Return(&mockRow{scanErr: pgx.ErrNoRows})

		_, err := NewAdRepository(db, nil).GetByID(ctx, "ad_x")
		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeNotFoundAd, appErr.Code)
	})
}

func TestAdRepository_Counts(t *testing.T) {
	ctx := context.Background()
	db := new(mockDBTX)
	repo := NewAdRepository(db, nil)

	countRow := func(n int64) *mockRow {
		return &mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*int64) = n
			return nil
		}}
	}

	db.On("QueryRow", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "status = $1")
	}), []any{"expired"}).Return(countRow(4))
	db.On("QueryRow", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "expires_at > $1 AND expires_at <= $2")
	}), []any{testNow, testNow.Add(7 * 24 * time.Hour)}).Return(countRow(2))
	db.On("QueryRow", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "auto_renew = TRUE")
	}), mock.Anything).Return(countRow(9))

	n, err := repo.CountByStatus(ctx, types.StatusExpired)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	n, err = repo.CountExpiringBetween(ctx, testNow, testNow.Add(7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.CountAutoRenewPublished(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	db.AssertExpectations(t)
}

func TestAdRepository_CountByStatus_Error(t *testing.T) {
	ctx := context.Background()
	db := new(mockDBTX)
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("timeout")})

	_, err := NewAdRepository(db, nil).CountByStatus(ctx, types.StatusPublished)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestAdRepository_BeginTx(t *testing.T) {
	ctx := context.Background()

	t.Run("no beginner", func(t *testing.T) {
		_, err := NewAdRepository(new(mockDBTX), nil).BeginTx(ctx)
		assert.Error(t, err)
	})

	t.Run("begin error", func(t *testing.T) {
		repo := NewAdRepository(new(mockDBTX), &mockBeginner{err: errors.New("pool exhausted")})
		_, err := repo.BeginTx(ctx)
		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	})

	t.Run("statements run on the transaction", func(t *testing.T) {
		txDB := new(mockDBTX)
		mtx := &mockTx{db: txDB}
		repo := NewAdRepository(new(mockDBTX), &mockBeginner{tx: mtx})

		txDB.On("QueryRow", ctx, mock.MatchedBy(func(sql string) bool {
			return strings.Contains(sql, "FOR UPDATE")
		}), []any{"ad_1"}).Return(&mockRow{scanFn: adScan(sampleAd())})

		tx, err := repo.BeginTx(ctx)
		require.NoError(t, err)
		ad, err := tx.LockAd(ctx, "ad_1")
		require.NoError(t, err)
		assert.Equal(t, "ad_1", ad.ID)

		require.NoError(t, tx.Commit(ctx))
		assert.True(t, mtx.committed)
		assert.NoError(t, tx.Rollback(ctx), "rollback after commit is a no-op")
		assert.False(t, mtx.rolledBack)
		txDB.AssertExpectations(t)
	})
}

func TestAdTx_LockAd_NotFound(t *testing.T) {
	ctx := context.Background()
	db := new(mockDBTX)
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := newAdTx(db, &mockTx{}).LockAd(ctx, "ad_missing")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundAd, appErr.Code)
}

func TestAdTx_SaveLifecycle(t *testing.T) {
	ctx := context.Background()
	ad := sampleAd()
	ad.RenewalCount = 3

	t.Run("success", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
			return strings.HasPrefix(strings.TrimSpace(sql), "UPDATE ads SET")
		}), mock.MatchedBy(func(args []any) bool {
			return len(args) == 14 && args[0] == "ad_1" && args[1] == "published" && args[6] == 3
		})).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

		require.NoError(t, newAdTx(db, &mockTx{}).SaveLifecycle(ctx, ad))
		db.AssertExpectations(t)
	})

	t.Run("row vanished", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.NewCommandTag("UPDATE 0"), nil)

		err := newAdTx(db, &mockTx{}).SaveLifecycle(ctx, ad)
		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeNotFoundAd, appErr.Code)
	})
}

func TestAdTx_PurgeDependents_Order(t *testing.T) {
	ctx := context.Background()
	db := new(mockDBTX)

	var order []string
	record := func(table string, n string) {
		db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
			return strings.HasPrefix(sql, "DELETE FROM "+table+" ")
		}), []any{"ad_1"}).
			Run(func(mock.Arguments) { order = append(order, table) }).
			Return(pgconn.NewCommandTag("DELETE "+n), nil)
	}
	record("messages", "12")
	record("conversations", "3")
	record("favorites", "5")
	record("alerts", "1")

	res, err := newAdTx(db, &mockTx{}).PurgeDependents(ctx, "ad_1")
	require.NoError(t, err)
	assert.Equal(t, types.CascadeResult{Messages: 12, Conversations: 3, Favorites: 5, Alerts: 1}, res)
	assert.Equal(t, []string{"messages", "conversations", "favorites", "alerts"}, order)
	db.AssertExpectations(t)
}

func TestAdTx_PurgeDependents_StopsOnError(t *testing.T) {
	ctx := context.Background()
	db := new(mockDBTX)
	db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.HasPrefix(sql, "DELETE FROM messages")
	}), mock.Anything).Return(pgconn.NewCommandTag("DELETE 2"), nil)
	db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.HasPrefix(sql, "DELETE FROM conversations")
	}), mock.Anything).Return(pgconn.CommandTag{}, errors.New("deadlock detected"))

	_, err := newAdTx(db, &mockTx{}).PurgeDependents(ctx, "ad_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conversations")
	db.AssertNotCalled(t, "Exec", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.HasPrefix(sql, "DELETE FROM favorites")
	}), mock.Anything)
}

func TestAdTx_RollbackError(t *testing.T) {
	ctx := context.Background()
	tx := newAdTx(new(mockDBTX), &mockTx{rollbackErr: errors.New("conn closed")})
	assert.Error(t, tx.Rollback(ctx))

	tx = newAdTx(new(mockDBTX), &mockTx{commitErr: errors.New("serialization failure")})
	var appErr *types.AppError
	require.ErrorAs(t, tx.Commit(ctx), &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
