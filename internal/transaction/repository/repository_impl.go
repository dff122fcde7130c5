package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	transactiondomain "github.com/smallbiznis/entitlement/internal/transaction/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() transactiondomain.Repository {
	return &repo{}
}

// Insert relies on the unique dedupe key index instead of a read-then-write
// check, so retried webhook deliveries collapse to a single row even under
// concurrent processing.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, transaction *transactiondomain.Transaction) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO transactions (
			id, dedupe_key, user_id, type, tier, amount, currency,
			currency_amount, store, product_id, occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dedupe_key) DO NOTHING`,
		transaction.ID,
		transaction.DedupeKey,
		transaction.UserID,
		transaction.Type,
		transaction.Tier,
		transaction.Amount,
		transaction.Currency,
		transaction.CurrencyAmount,
		transaction.Store,
		transaction.ProductID,
		transaction.OccurredAt,
		transaction.CreatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]transactiondomain.Transaction, error) {
	var transactions []transactiondomain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, dedupe_key, user_id, type, tier, amount, currency,
		 currency_amount, store, product_id, occurred_at, created_at
		 FROM transactions WHERE user_id = ? ORDER BY occurred_at DESC`,
		userID,
	).Scan(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

func (r *repo) SumAmountByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (float64, error) {
	var total float64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = ?`,
		userID,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
