package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Subscription, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Subscription, error)
	CountActiveByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error)
	ExpireAllByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) (int64, error)
	FindLapsed(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]Subscription, error)
	ExpireByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error)
}
