// Package domain models single-use promotional codes granting lifetime
// PRO entitlement.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type PromoStatus string

const (
	PromoStatusActive PromoStatus = "ACTIVE"
	PromoStatusUsed   PromoStatus = "USED"
)

// PromoCode is a single-use redemption token. A code moves from ACTIVE to
// USED exactly once and never back.
type PromoCode struct {
	Code       string        `gorm:"primaryKey;type:text"`
	Status     PromoStatus   `gorm:"type:text;not null;default:ACTIVE"`
	RedeemedBy *snowflake.ID `gorm:""`
	RedeemedAt *time.Time    `gorm:""`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PromoCode) TableName() string { return "promo_codes" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, code *PromoCode) error
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*PromoCode, error)
	// Claim atomically flips an ACTIVE code to USED for the given user.
	// The returned bool reports whether this caller won the claim.
	Claim(ctx context.Context, db *gorm.DB, code string, userID snowflake.ID, now time.Time) (bool, error)
}

type RedeemRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

type RedeemResponse struct {
	Code       string    `json:"code"`
	UserID     string    `json:"user_id"`
	Tier       string    `json:"tier"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

type CreateRequest struct {
	Count int `json:"count" binding:"required,min=1,max=500"`
}

type CreateResponse struct {
	Codes []string `json:"codes"`
}

type Service interface {
	Redeem(context.Context, RedeemRequest) (RedeemResponse, error)
	Create(context.Context, CreateRequest) (CreateResponse, error)
}

var (
	ErrCodeNotFound    = errors.New("promo_code_not_found")
	ErrCodeAlreadyUsed = errors.New("promo_code_already_used")
	ErrInvalidUser     = errors.New("invalid_user")
)
