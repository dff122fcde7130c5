package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/entitlement/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, external_id, user_id, tier, period, status, start_date, end_date,
			renewal_date, cancellation_date, expiration_date, product_id, store,
			will_renew, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.ExternalID,
		subscription.UserID,
		subscription.Tier,
		subscription.Period,
		subscription.Status,
		subscription.StartDate,
		subscription.EndDate,
		subscription.RenewalDate,
		subscription.CancellationDate,
		subscription.ExpirationDate,
		subscription.ProductID,
		subscription.Store,
		subscription.WillRenew,
		subscription.Metadata,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET tier = ?, period = ?, status = ?, start_date = ?, end_date = ?,
		     renewal_date = ?, cancellation_date = ?, expiration_date = ?,
		     product_id = ?, store = ?, will_renew = ?, updated_at = ?
		 WHERE id = ?`,
		subscription.Tier,
		subscription.Period,
		subscription.Status,
		subscription.StartDate,
		subscription.EndDate,
		subscription.RenewalDate,
		subscription.CancellationDate,
		subscription.ExpirationDate,
		subscription.ProductID,
		subscription.Store,
		subscription.WillRenew,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*subscriptiondomain.Subscription, error) {
	externalID = strings.TrimSpace(externalID)
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, external_id, user_id, tier, period, status, start_date, end_date,
		 renewal_date, cancellation_date, expiration_date, product_id, store,
		 will_renew, metadata, created_at, updated_at
		 FROM subscriptions WHERE external_id = ?`,
		externalID,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, external_id, user_id, tier, period, status, start_date, end_date,
		 renewal_date, cancellation_date, expiration_date, product_id, store,
		 will_renew, metadata, created_at, updated_at
		 FROM subscriptions WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) CountActiveByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM subscriptions WHERE user_id = ? AND status = ?`,
		userID,
		subscriptiondomain.SubscriptionStatusActive,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) ExpireAllByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, end_date = ?, expiration_date = ?, will_renew = ?, updated_at = ?
		 WHERE user_id = ? AND status <> ?`,
		subscriptiondomain.SubscriptionStatusExpired,
		now,
		now,
		false,
		now,
		userID,
		subscriptiondomain.SubscriptionStatusExpired,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) FindLapsed(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, external_id, user_id, tier, period, status, start_date, end_date,
		 renewal_date, cancellation_date, expiration_date, product_id, store,
		 will_renew, metadata, created_at, updated_at
		 FROM subscriptions
		 WHERE status = ? AND end_date IS NOT NULL AND end_date < ?
		 ORDER BY end_date ASC
		 LIMIT ?`,
		subscriptiondomain.SubscriptionStatusActive,
		before,
		limit,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) ExpireByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	// The status predicate keeps the bulk update strictly forward-moving,
	// so concurrent sweeps and event processing cannot conflict.
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, end_date = ?, expiration_date = ?, will_renew = ?, updated_at = ?
		 WHERE id IN ? AND status = ?`,
		subscriptiondomain.SubscriptionStatusExpired,
		now,
		now,
		false,
		now,
		ids,
		subscriptiondomain.SubscriptionStatusActive,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
