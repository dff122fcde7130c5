package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogservice "github.com/smallbiznis/entitlement/internal/catalog/service"
	"github.com/smallbiznis/entitlement/internal/config"
	reconcilerdomain "github.com/smallbiznis/entitlement/internal/reconciler/domain"
	subscriptiondomain "github.com/smallbiznis/entitlement/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/entitlement/internal/subscription/repository"
	transactiondomain "github.com/smallbiznis/entitlement/internal/transaction/domain"
	transactionrepo "github.com/smallbiznis/entitlement/internal/transaction/repository"
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
		&transactiondomain.Transaction{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) reconcilerdomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	catalog := catalogservice.NewService(catalogservice.Params{
		Log:    zap.NewNop(),
		Holder: config.NewStaticCatalogHolder(config.DefaultCatalogConfig()),
	})
	return NewService(Params{
		Log:          zap.NewNop(),
		DB:           db,
		Node:         node,
		Catalog:      catalog,
		Subscription: subscriptionrepo.Provide(),
		Transaction:  transactionrepo.Provide(),
		User:         userrepo.Provide(),
	})
}

func seedUser(t *testing.T, db *gorm.DB, id snowflake.ID, profileType userdomain.ProfileType) {
	t.Helper()
	err := db.Create(&userdomain.User{
		ID:          id,
		DisplayName: "test user",
		ProfileType: profileType,
		Tier:        "FREE",
	}).Error
	require.NoError(t, err)
}

func loadUser(t *testing.T, db *gorm.DB, id snowflake.ID) userdomain.User {
	t.Helper()
	var user userdomain.User
	require.NoError(t, db.First(&user, "id = ?", id).Error)
	return user
}

func loadSubscription(t *testing.T, db *gorm.DB, externalID string) subscriptiondomain.Subscription {
	t.Helper()
	var sub subscriptiondomain.Subscription
	require.NoError(t, db.First(&sub, "external_id = ?", externalID).Error)
	return sub
}

func countTransactions(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&transactiondomain.Transaction{}).Count(&count).Error)
	return count
}

const dayMs = int64(24 * 60 * 60 * 1000)

func purchaseEvent(userID snowflake.ID, subID string) reconcilerdomain.WebhookEvent {
	purchasedAt := int64(1700000000000)
	expiresAt := purchasedAt + 365*dayMs
	price := 99.99
	return reconcilerdomain.WebhookEvent{
		Type:             reconcilerdomain.EventInitialPurchase,
		AppUserID:        userID.String(),
		SubscriptionID:   subID,
		ProductID:        "pro_annual",
		PurchasedAtMs:    purchasedAt,
		ExpirationAtMs:   &expiresAt,
		EventTimestampMs: purchasedAt,
		Price:            &price,
		Currency:         "USD",
		Store:            "app_store",
	}
}

func TestInitialPurchaseProAnnual(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	userID := snowflake.ID(1001)
	seedUser(t, db, userID, userdomain.ProfileTypeBusiness)

	event := purchaseEvent(userID, "sub_001")
	result, err := svc.ProcessEvent(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, reconcilerdomain.OutcomeApplied, result.Outcome)

	sub := loadSubscription(t, db, "sub_001")
	require.Equal(t, "PRO", string(sub.Tier))
	require.Equal(t, "ANNUAL", string(sub.Period))
	require.Equal(t, subscriptiondomain.SubscriptionStatusActive, sub.Status)
	require.True(t, sub.StartDate.Equal(event.PurchasedAt()))
	require.NotNil(t, sub.RenewalDate)
	require.True(t, sub.RenewalDate.Equal(event.PurchasedAt().Add(365*24*time.Hour)))
	require.True(t, sub.WillRenew)

	var txn transactiondomain.Transaction
	require.NoError(t, db.First(&txn, "user_id = ?", userID).Error)
	require.InDelta(t, 99.99, txn.Amount, 0.0001)
	require.Equal(t, transactiondomain.TransactionTypeSubscription, txn.Type)

	user := loadUser(t, db, userID)
	require.Equal(t, "PRO", string(user.Tier))
	require.True(t, user.IsVerified)
}

func TestRenewalSelfHealsMissingRecord(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	userID := snowflake.ID(1002)
	seedUser(t, db, userID, userdomain.ProfileTypeIndividual)

	event := purchaseEvent(userID, "sub_002")
	event.Type = reconcilerdomain.EventRenewal
	event.ProductID = "basic_6mo"

	result, err := svc.ProcessEvent(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, reconcilerdomain.OutcomeApplied, result.Outcome)

	sub := loadSubscription(t, db, "sub_002")
	require.Equal(t, "BASIC", string(sub.Tier))
	require.Equal(t, "SIX_MONTHS", string(sub.Period))
	require.Equal(t, subscriptiondomain.SubscriptionStatusActive, sub.Status)
	require.True(t, sub.WillRenew)
	require.EqualValues(t, 1, countTransactions(t, db))

	user := loadUser(t, db, userID)
	require.Equal(t, "BASIC", string(user.Tier))
	// Verification never applies to individual profiles.
	require.False(t, user.IsVerified)
}

func TestExpirationForcesFreeTier(t *testing.T) {
	for _, initial := range []reconcilerdomain.EventType{
		reconcilerdomain.EventInitialPurchase,
		reconcilerdomain.EventCancellation,
	} {
		t.Run(string(initial), func(t *testing.T) {
			db := setupTestDB(t)
			svc := newTestService(t, db)
			userID := snowflake.ID(1003)
			seedUser(t, db, userID, userdomain.ProfileTypeBusiness)

			_, err := svc.ProcessEvent(context.Background(), purchaseEvent(userID, "sub_003"))
			require.NoError(t, err)

			if initial == reconcilerdomain.EventCancellation {
				cancel := purchaseEvent(userID, "sub_003")
				cancel.Type = reconcilerdomain.EventCancellation
				_, err = svc.ProcessEvent(context.Background(), cancel)
				require.NoError(t, err)
				require.Equal(t, subscriptiondomain.SubscriptionStatusCancelled, loadSubscription(t, db, "sub_003").Status)
			}

			expire := purchaseEvent(userID, "sub_003")
			expire.Type = reconcilerdomain.EventExpiration
			result, err := svc.ProcessEvent(context.Background(), expire)
			require.NoError(t, err)
			require.Equal(t, reconcilerdomain.OutcomeApplied, result.Outcome)

			sub := loadSubscription(t, db, "sub_003")
			require.Equal(t, subscriptiondomain.SubscriptionStatusExpired, sub.Status)
			require.False(t, sub.WillRenew)

			user := loadUser(t, db, userID)
			require.Equal(t, "FREE", string(user.Tier))
			require.False(t, user.IsVerified)
		})
	}
}

func TestCancellationKeepsTier(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	userID := snowflake.ID(1004)
	seedUser(t, db, userID, userdomain.ProfileTypeIndividual)

	_, err := svc.ProcessEvent(context.Background(), purchaseEvent(userID, "sub_004"))
	require.NoError(t, err)

	cancel := purchaseEvent(userID, "sub_004")
	cancel.Type = reconcilerdomain.EventCancellation
	result, err := svc.ProcessEvent(context.Background(), cancel)
	require.NoError(t, err)
	require.Equal(t, reconcilerdomain.OutcomeApplied, result.Outcome)

	sub := loadSubscription(t, db, "sub_004")
	require.Equal(t, subscriptiondomain.SubscriptionStatusCancelled, sub.Status)
	require.False(t, sub.WillRenew)
	require.NotNil(t, sub.CancellationDate)

	// Entitlement persists through the remaining paid interval.
	user := loadUser(t, db, userID)
	require.Equal(t, "PRO", string(user.Tier))
}

func TestUncancellationRestoresActive(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	userID := snowflake.ID(1005)
	seedUser(t, db, userID, userdomain.ProfileTypeBusiness)

	_, err := svc.ProcessEvent(context.Background(), purchaseEvent(userID, "sub_005"))
	require.NoError(t, err)

	cancel := purchaseEvent(userID, "sub_005")
	cancel.Type = reconcilerdomain.EventCancellation
	_, err = svc.ProcessEvent(context.Background(), cancel)
	require.NoError(t, err)

	uncancel := purchaseEvent(userID, "sub_005")
	uncancel.Type = reconcilerdomain.EventUncancellation
	result, err := svc.ProcessEvent(context.Background(), uncancel)
	require.NoError(t, err)
	require.Equal(t, reconcilerdomain.OutcomeApplied, result.Outcome)

	sub := loadSubscription(t, db, "sub_005")
	require.Equal(t, subscriptiondomain.SubscriptionStatusActive, sub.Status)
	require.Nil(t, sub.CancellationDate)
	require.True(t, sub.WillRenew)

	require.True(t, loadUser(t, db, userID).IsVerified)
}

func TestPauseStopsRenewal(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	userID := snowflake.ID(1006)
	seedUser(t, db, userID, userdomain.ProfileTypeIndividual)

	_, err := svc.ProcessEvent(context.Background(), purchaseEvent(userID, "sub_006"))
	require.NoError(t, err)

	pause := purchaseEvent(userID, "sub_006")
	pause.Type = reconcilerdomain.EventSubscriptionPaused
	result, err := svc.ProcessEvent(context.Background(), pause)
	require.NoError(t, err)
	require.Equal(t, reconcilerdomain.OutcomeApplied, result.Outcome)

	sub := loadSubscription(t, db, "sub_006")
	require.Equal(t, subscriptiondomain.SubscriptionStatusPaused, sub.Status)
	require.False(t, sub.WillRenew)
}

func TestBillingIssueIsNoOpSuccess(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	userID := snowflake.ID(1007)
	seedUser(t, db, userID, userdomain.ProfileTypeBusiness)

	_, err := svc.ProcessEvent(context.Background(), purchaseEvent(userID, "sub_007"))
	require.NoError(t, err)
	before := loadSubscription(t, db, "sub_007")

	issue := purchaseEvent(userID, "sub_007")
	issue.Type = reconcilerdomain.EventBillingIssue
	result, err := svc.ProcessEvent(context.Background(), issue)
	require.NoError(t, err)
	require.Equal(t, reconcilerdomain.OutcomeIgnored, result.Outcome)

	after := loadSubscription(t, db, "sub_007")
	require.Equal(t, before.Status, after.Status)
	require.Equal(t, before.WillRenew, after.WillRenew)
	require.EqualValues(t, 1, countTransactions(t, db))
	require.Equal(t, "PRO", string(loadUser(t, db, userID).Tier))
}

func TestDuplicateDeliveryAppendsOneTransaction(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	userID := snowflake.ID(1008)
	seedUser(t, db, userID, userdomain.ProfileTypeIndividual)

	event := purchaseEvent(userID, "sub_008")
	for i := 0; i < 3; i++ {
		_, err := svc.ProcessEvent(context.Background(), event)
		require.NoError(t, err)
	}

	require.EqualValues(t, 1, countTransactions(t, db))

	sub := loadSubscription(t, db, "sub_008")
	require.Equal(t, subscriptiondomain.SubscriptionStatusActive, sub.Status)
	require.Equal(t, "PRO", string(sub.Tier))
}

func TestUnknownProductRejectedWithoutState(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	userID := snowflake.ID(1009)
	seedUser(t, db, userID, userdomain.ProfileTypeIndividual)

	event := purchaseEvent(userID, "sub_009")
	event.ProductID = "gold_monthly"
	_, err := svc.ProcessEvent(context.Background(), event)
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&subscriptiondomain.Subscription{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
	require.EqualValues(t, 0, countTransactions(t, db))
	require.Equal(t, "FREE", string(loadUser(t, db, userID).Tier))
}

func TestLateEventCannotResurrectExpiredSubscription(t *testing.T) {
	for _, late := range []reconcilerdomain.EventType{
		reconcilerdomain.EventSubscriptionPaused,
		reconcilerdomain.EventUncancellation,
		reconcilerdomain.EventCancellation,
	} {
		t.Run(string(late), func(t *testing.T) {
			db := setupTestDB(t)
			svc := newTestService(t, db)
			userID := snowflake.ID(1011)
			seedUser(t, db, userID, userdomain.ProfileTypeBusiness)

			_, err := svc.ProcessEvent(context.Background(), purchaseEvent(userID, "sub_011"))
			require.NoError(t, err)

			expire := purchaseEvent(userID, "sub_011")
			expire.Type = reconcilerdomain.EventExpiration
			_, err = svc.ProcessEvent(context.Background(), expire)
			require.NoError(t, err)

			// A redelivered lifecycle event arriving after the expiration
			// must not reopen the subscription or re-grant entitlement.
			stale := purchaseEvent(userID, "sub_011")
			stale.Type = late
			result, err := svc.ProcessEvent(context.Background(), stale)
			require.NoError(t, err)
			require.Equal(t, reconcilerdomain.OutcomeDropped, result.Outcome)

			sub := loadSubscription(t, db, "sub_011")
			require.Equal(t, subscriptiondomain.SubscriptionStatusExpired, sub.Status)
			require.False(t, sub.WillRenew)

			user := loadUser(t, db, userID)
			require.Equal(t, "FREE", string(user.Tier))
			require.False(t, user.IsVerified)
		})
	}
}

func TestPausedSubscriptionCannotBeCancelled(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	userID := snowflake.ID(1012)
	seedUser(t, db, userID, userdomain.ProfileTypeIndividual)

	_, err := svc.ProcessEvent(context.Background(), purchaseEvent(userID, "sub_012"))
	require.NoError(t, err)

	pause := purchaseEvent(userID, "sub_012")
	pause.Type = reconcilerdomain.EventSubscriptionPaused
	_, err = svc.ProcessEvent(context.Background(), pause)
	require.NoError(t, err)

	cancel := purchaseEvent(userID, "sub_012")
	cancel.Type = reconcilerdomain.EventCancellation
	result, err := svc.ProcessEvent(context.Background(), cancel)
	require.NoError(t, err)
	require.Equal(t, reconcilerdomain.OutcomeDropped, result.Outcome)

	require.Equal(t, subscriptiondomain.SubscriptionStatusPaused, loadSubscription(t, db, "sub_012").Status)
}

func TestLifecycleEventForUnknownSubscriptionIsDropped(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	userID := snowflake.ID(1010)
	seedUser(t, db, userID, userdomain.ProfileTypeIndividual)

	for _, eventType := range []reconcilerdomain.EventType{
		reconcilerdomain.EventCancellation,
		reconcilerdomain.EventExpiration,
		reconcilerdomain.EventUncancellation,
		reconcilerdomain.EventSubscriptionPaused,
	} {
		event := purchaseEvent(userID, "sub_missing")
		event.Type = eventType
		result, err := svc.ProcessEvent(context.Background(), event)
		require.NoError(t, err)
		require.Equal(t, reconcilerdomain.OutcomeDropped, result.Outcome)
	}
}
