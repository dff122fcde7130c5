// Package domain contains the append-only transaction ledger models.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/entitlement/internal/catalog/domain"
	"gorm.io/gorm"
)

// TransactionType distinguishes recurring subscription revenue from
// one-off purchases.
type TransactionType string

const (
	TransactionTypeSubscription TransactionType = "SUBSCRIPTION"
	TransactionTypeBoost        TransactionType = "BOOST"
)

// Transaction is one immutable ledger row per monetary event. Rows are
// inserted exactly once and never updated or deleted.
type Transaction struct {
	ID             snowflake.ID       `gorm:"primaryKey"`
	DedupeKey      string             `gorm:"type:text;not null;uniqueIndex:ux_transactions_dedupe_key"`
	UserID         snowflake.ID       `gorm:"not null;index"`
	Type           TransactionType    `gorm:"type:text;not null"`
	Tier           catalogdomain.Tier `gorm:"type:text;not null"`
	Amount         float64            `gorm:"not null"`
	Currency       string             `gorm:"type:text;not null"`
	CurrencyAmount float64            `gorm:"not null"`
	Store          string             `gorm:"type:text"`
	ProductID      string             `gorm:"type:text;not null"`
	OccurredAt     time.Time          `gorm:"not null;index"`
	CreatedAt      time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "transactions" }

type Repository interface {
	// Insert appends the transaction if its dedupe key has not been seen.
	// The returned bool reports whether a row was actually written.
	Insert(ctx context.Context, db *gorm.DB, transaction *Transaction) (bool, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Transaction, error)
	SumAmountByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (float64, error)
}
