// Package domain models the user aggregate as seen by the entitlement
// engine: the cached tier, the business verification flag and nothing else.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/entitlement/internal/catalog/domain"
	"gorm.io/gorm"
)

type ProfileType string

const (
	ProfileTypeIndividual ProfileType = "individual"
	ProfileTypeBusiness   ProfileType = "business"
)

// User is the external aggregate; this engine only ever writes Tier and
// IsVerified and reads ProfileType.
type User struct {
	ID          snowflake.ID       `gorm:"primaryKey"`
	DisplayName string             `gorm:"type:text"`
	ProfileType ProfileType        `gorm:"type:text;not null"`
	Tier        catalogdomain.Tier `gorm:"type:text;not null;default:FREE"`
	IsVerified  bool               `gorm:"not null;default:false"`
	CreatedAt   time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

func (u *User) IsBusiness() bool {
	return u.ProfileType == ProfileTypeBusiness
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	UpdateTier(ctx context.Context, db *gorm.DB, id snowflake.ID, tier catalogdomain.Tier, now time.Time) error
	UpdateTierByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID, tier catalogdomain.Tier, now time.Time) error
	MarkVerifiedBusiness(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	MarkUnverified(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
}

var (
	ErrUserNotFound = errors.New("user_not_found")
	ErrInvalidUser  = errors.New("invalid_user")
)
