package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/entitlement/internal/clock"
	subscriptiondomain "github.com/smallbiznis/entitlement/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/entitlement/internal/subscription/repository"
	userdomain "github.com/smallbiznis/entitlement/internal/user/domain"
	userrepo "github.com/smallbiznis/entitlement/internal/user/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	err = db.AutoMigrate(
		&userdomain.User{},
		&subscriptiondomain.Subscription{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func newTestSweeper(t *testing.T, db *gorm.DB, fake *clock.FakeClock) *Sweeper {
	t.Helper()
	s, err := New(Params{
		DB:           db,
		Log:          zap.NewNop(),
		Clock:        fake,
		Subscription: subscriptionrepo.Provide(),
		User:         userrepo.Provide(),
		Config:       Config{BatchSize: 2},
	})
	require.NoError(t, err)
	return s
}

func seedSubscription(t *testing.T, db *gorm.DB, id, userID snowflake.ID, externalID string, status subscriptiondomain.SubscriptionStatus, endDate time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&subscriptiondomain.Subscription{
		ID:         id,
		ExternalID: externalID,
		UserID:     userID,
		Tier:       "PRO",
		Period:     "MONTHLY",
		Status:     status,
		StartDate:  endDate.Add(-30 * 24 * time.Hour),
		EndDate:    &endDate,
		ProductID:  "pro_monthly",
		WillRenew:  true,
	}).Error)
}

func TestSweepExpiresLapsedSubscriptions(t *testing.T) {
	db := setupTestDB(t)
	fake := clock.NewFakeClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	sweeper := newTestSweeper(t, db, fake)

	lapsedUser := snowflake.ID(3001)
	currentUser := snowflake.ID(3002)
	require.NoError(t, db.Create(&userdomain.User{ID: lapsedUser, ProfileType: userdomain.ProfileTypeBusiness, Tier: "PRO", IsVerified: true}).Error)
	require.NoError(t, db.Create(&userdomain.User{ID: currentUser, ProfileType: userdomain.ProfileTypeIndividual, Tier: "PRO"}).Error)

	seedSubscription(t, db, 1, lapsedUser, "sub_lapsed", subscriptiondomain.SubscriptionStatusActive, fake.Now().Add(-48*time.Hour))
	seedSubscription(t, db, 2, currentUser, "sub_current", subscriptiondomain.SubscriptionStatusActive, fake.Now().Add(48*time.Hour))

	require.NoError(t, sweeper.RunOnce(context.Background()))

	var lapsed subscriptiondomain.Subscription
	require.NoError(t, db.First(&lapsed, "external_id = ?", "sub_lapsed").Error)
	require.Equal(t, subscriptiondomain.SubscriptionStatusExpired, lapsed.Status)
	require.False(t, lapsed.WillRenew)

	var current subscriptiondomain.Subscription
	require.NoError(t, db.First(&current, "external_id = ?", "sub_current").Error)
	require.Equal(t, subscriptiondomain.SubscriptionStatusActive, current.Status)

	var downgraded userdomain.User
	require.NoError(t, db.First(&downgraded, "id = ?", lapsedUser).Error)
	require.Equal(t, "FREE", string(downgraded.Tier))
	require.False(t, downgraded.IsVerified)

	// The user whose subscription is still current is untouched.
	var untouched userdomain.User
	require.NoError(t, db.First(&untouched, "id = ?", currentUser).Error)
	require.Equal(t, "PRO", string(untouched.Tier))
}

func TestSweepSecondRunIsNoOp(t *testing.T) {
	db := setupTestDB(t)
	fake := clock.NewFakeClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	sweeper := newTestSweeper(t, db, fake)

	userID := snowflake.ID(3003)
	require.NoError(t, db.Create(&userdomain.User{ID: userID, ProfileType: userdomain.ProfileTypeIndividual, Tier: "PRO"}).Error)
	seedSubscription(t, db, 3, userID, "sub_once", subscriptiondomain.SubscriptionStatusActive, fake.Now().Add(-time.Hour))

	require.NoError(t, sweeper.RunOnce(context.Background()))

	var first subscriptiondomain.Subscription
	require.NoError(t, db.First(&first, "external_id = ?", "sub_once").Error)

	require.NoError(t, sweeper.RunOnce(context.Background()))

	var second subscriptiondomain.Subscription
	require.NoError(t, db.First(&second, "external_id = ?", "sub_once").Error)
	require.Equal(t, first.Status, second.Status)
	require.True(t, first.UpdatedAt.Equal(second.UpdatedAt))
}

func TestSweepDrainsBeyondBatchSize(t *testing.T) {
	db := setupTestDB(t)
	fake := clock.NewFakeClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	sweeper := newTestSweeper(t, db, fake)

	for i := 0; i < 5; i++ {
		id := snowflake.ID(3100 + i)
		require.NoError(t, db.Create(&userdomain.User{ID: id, ProfileType: userdomain.ProfileTypeIndividual, Tier: "BASIC"}).Error)
		seedSubscription(t, db, snowflake.ID(100+i), id, "sub_batch_"+id.String(), subscriptiondomain.SubscriptionStatusActive, fake.Now().Add(-time.Minute))
	}

	require.NoError(t, sweeper.RunOnce(context.Background()))

	var active int64
	require.NoError(t, db.Model(&subscriptiondomain.Subscription{}).
		Where("status = ?", subscriptiondomain.SubscriptionStatusActive).
		Count(&active).Error)
	require.EqualValues(t, 0, active)

	var downgraded int64
	require.NoError(t, db.Model(&userdomain.User{}).Where("tier = ?", "FREE").Count(&downgraded).Error)
	require.EqualValues(t, 5, downgraded)
}

func TestSweepWallClockAdvance(t *testing.T) {
	db := setupTestDB(t)
	fake := clock.NewFakeClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	sweeper := newTestSweeper(t, db, fake)

	userID := snowflake.ID(3004)
	require.NoError(t, db.Create(&userdomain.User{ID: userID, ProfileType: userdomain.ProfileTypeIndividual, Tier: "PRO"}).Error)
	seedSubscription(t, db, 4, userID, "sub_future", subscriptiondomain.SubscriptionStatusActive, fake.Now().Add(12*time.Hour))

	require.NoError(t, sweeper.RunOnce(context.Background()))
	var sub subscriptiondomain.Subscription
	require.NoError(t, db.First(&sub, "external_id = ?", "sub_future").Error)
	require.Equal(t, subscriptiondomain.SubscriptionStatusActive, sub.Status)

	fake.Advance(24 * time.Hour)

	require.NoError(t, sweeper.RunOnce(context.Background()))
	require.NoError(t, db.First(&sub, "external_id = ?", "sub_future").Error)
	require.Equal(t, subscriptiondomain.SubscriptionStatusExpired, sub.Status)
}
