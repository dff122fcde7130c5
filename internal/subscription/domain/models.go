// Package domain contains persistence models for the subscription ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/entitlement/internal/catalog/domain"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionStatusExpired   SubscriptionStatus = "EXPIRED"
	SubscriptionStatusPaused    SubscriptionStatus = "PAUSED"
)

// Subscription is one row per subscription lifecycle. Rows are created on
// purchase (or defensively on a renewal with no prior record), mutated on
// every subsequent lifecycle event and never hard-deleted.
type Subscription struct {
	ID               snowflake.ID                `gorm:"primaryKey"`
	ExternalID       string                      `gorm:"type:text;not null;uniqueIndex:ux_subscriptions_external_id"`
	UserID           snowflake.ID                `gorm:"not null;index"`
	Tier             catalogdomain.Tier          `gorm:"type:text;not null"`
	Period           catalogdomain.BillingPeriod `gorm:"type:text;not null"`
	Status           SubscriptionStatus          `gorm:"type:text;not null;index"`
	StartDate        time.Time                   `gorm:"not null"`
	EndDate          *time.Time                  `gorm:"index"`
	RenewalDate      *time.Time                  `gorm:""`
	CancellationDate *time.Time                  `gorm:""`
	ExpirationDate   *time.Time                  `gorm:""`
	ProductID        string                      `gorm:"type:text;not null"`
	Store            string                      `gorm:"type:text"`
	WillRenew        bool                        `gorm:"not null;default:true"`
	Metadata         datatypes.JSONMap           `gorm:"type:jsonb"`
	CreatedAt        time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}
