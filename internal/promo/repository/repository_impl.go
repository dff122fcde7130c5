package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	promodomain "github.com/smallbiznis/entitlement/internal/promo/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() promodomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, code *promodomain.PromoCode) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO promo_codes (code, status, redeemed_by, redeemed_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		code.Code,
		code.Status,
		code.RedeemedBy,
		code.RedeemedAt,
		code.CreatedAt,
	).Error
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*promodomain.PromoCode, error) {
	code = strings.TrimSpace(code)
	var promo promodomain.PromoCode
	err := db.WithContext(ctx).Raw(
		`SELECT code, status, redeemed_by, redeemed_at, created_at
		 FROM promo_codes WHERE code = ?`,
		code,
	).Scan(&promo).Error
	if err != nil {
		return nil, err
	}
	if promo.Code == "" {
		return nil, nil
	}
	return &promo, nil
}

// Claim is a compare-and-set on the status column. Two concurrent
// redemptions of the same code race on this single UPDATE and only one
// observes an affected row.
func (r *repo) Claim(ctx context.Context, db *gorm.DB, code string, userID snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE promo_codes
		 SET status = ?, redeemed_by = ?, redeemed_at = ?
		 WHERE code = ? AND status = ?`,
		promodomain.PromoStatusUsed,
		userID,
		now,
		code,
		promodomain.PromoStatusActive,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
