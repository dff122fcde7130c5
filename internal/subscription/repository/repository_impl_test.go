package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	subscriptiondomain "github.com/smallbiznis/entitlement/internal/subscription/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&subscriptiondomain.Subscription{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func insertSub(t *testing.T, db *gorm.DB, repo subscriptiondomain.Repository, id, userID snowflake.ID, externalID string, status subscriptiondomain.SubscriptionStatus, endDate *time.Time) {
	t.Helper()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Insert(context.Background(), db, &subscriptiondomain.Subscription{
		ID:         id,
		ExternalID: externalID,
		UserID:     userID,
		Tier:       "PRO",
		Period:     "MONTHLY",
		Status:     status,
		StartDate:  now,
		EndDate:    endDate,
		ProductID:  "pro_monthly",
		WillRenew:  true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
}

func TestFindByExternalID(t *testing.T) {
	db := setupTestDB(t)
	repo := Provide()
	ctx := context.Background()

	insertSub(t, db, repo, 1, 10, "sub_a", subscriptiondomain.SubscriptionStatusActive, nil)

	found, err := repo.FindByExternalID(ctx, db, " sub_a ")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, snowflake.ID(1), found.ID)

	missing, err := repo.FindByExternalID(ctx, db, "sub_missing")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestCountActiveByUser(t *testing.T) {
	db := setupTestDB(t)
	repo := Provide()
	ctx := context.Background()

	insertSub(t, db, repo, 1, 10, "sub_a", subscriptiondomain.SubscriptionStatusActive, nil)
	insertSub(t, db, repo, 2, 10, "sub_b", subscriptiondomain.SubscriptionStatusExpired, nil)
	insertSub(t, db, repo, 3, 11, "sub_c", subscriptiondomain.SubscriptionStatusActive, nil)

	count, err := repo.CountActiveByUser(ctx, db, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestExpireAllByUser(t *testing.T) {
	db := setupTestDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	insertSub(t, db, repo, 1, 10, "sub_a", subscriptiondomain.SubscriptionStatusActive, nil)
	insertSub(t, db, repo, 2, 10, "sub_b", subscriptiondomain.SubscriptionStatusCancelled, nil)
	insertSub(t, db, repo, 3, 10, "sub_c", subscriptiondomain.SubscriptionStatusExpired, nil)
	insertSub(t, db, repo, 4, 11, "sub_d", subscriptiondomain.SubscriptionStatusActive, nil)

	affected, err := repo.ExpireAllByUser(ctx, db, 10, now)
	require.NoError(t, err)
	require.EqualValues(t, 2, affected)

	subs, err := repo.ListByUser(ctx, db, 10)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	for _, sub := range subs {
		require.Equal(t, subscriptiondomain.SubscriptionStatusExpired, sub.Status)
		if sub.ExternalID == "sub_c" {
			// Already expired before the call; the update only moves
			// rows forward and leaves it untouched.
			require.True(t, sub.WillRenew)
			continue
		}
		require.False(t, sub.WillRenew)
	}

	// Another user's subscriptions are untouched.
	other, err := repo.FindByExternalID(ctx, db, "sub_d")
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.SubscriptionStatusActive, other.Status)
}

func TestFindLapsedAndExpireByIDs(t *testing.T) {
	db := setupTestDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	insertSub(t, db, repo, 1, 10, "sub_past", subscriptiondomain.SubscriptionStatusActive, &past)
	insertSub(t, db, repo, 2, 11, "sub_future", subscriptiondomain.SubscriptionStatusActive, &future)
	insertSub(t, db, repo, 3, 12, "sub_open_ended", subscriptiondomain.SubscriptionStatusActive, nil)
	insertSub(t, db, repo, 4, 13, "sub_cancelled_past", subscriptiondomain.SubscriptionStatusCancelled, &past)

	lapsed, err := repo.FindLapsed(ctx, db, now, 50)
	require.NoError(t, err)
	require.Len(t, lapsed, 1)
	require.Equal(t, "sub_past", lapsed[0].ExternalID)

	affected, err := repo.ExpireByIDs(ctx, db, []snowflake.ID{lapsed[0].ID}, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	// A second expiry of the same ids moves nothing.
	affected, err = repo.ExpireByIDs(ctx, db, []snowflake.ID{lapsed[0].ID}, now)
	require.NoError(t, err)
	require.EqualValues(t, 0, affected)
}
