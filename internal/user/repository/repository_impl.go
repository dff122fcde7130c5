package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/entitlement/internal/catalog/domain"
	userdomain "github.com/smallbiznis/entitlement/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() userdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*userdomain.User, error) {
	var user userdomain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, display_name, profile_type, tier, is_verified, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) UpdateTier(ctx context.Context, db *gorm.DB, id snowflake.ID, tier catalogdomain.Tier, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET tier = ?, updated_at = ? WHERE id = ?`,
		tier,
		now,
		id,
	).Error
}

func (r *repo) UpdateTierByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID, tier catalogdomain.Tier, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE users SET tier = ?, updated_at = ? WHERE id IN ?`,
		tier,
		now,
		ids,
	).Error
}

func (r *repo) MarkVerifiedBusiness(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET is_verified = ?, updated_at = ? WHERE id = ? AND profile_type = ?`,
		true,
		now,
		id,
		userdomain.ProfileTypeBusiness,
	).Error
}

func (r *repo) MarkUnverified(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET is_verified = ?, updated_at = ? WHERE id = ?`,
		false,
		now,
		id,
	).Error
}
