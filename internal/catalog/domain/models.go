// Package domain defines entitlement tiers, billing periods and the
// product classification contract.
package domain

import "errors"

// Tier is the cached entitlement level on the user profile.
type Tier string

const (
	TierFree  Tier = "FREE"
	TierBasic Tier = "BASIC"
	TierPro   Tier = "PRO"
)

// BillingPeriod is the purchased subscription length.
type BillingPeriod string

const (
	PeriodMonthly   BillingPeriod = "MONTHLY"
	PeriodSixMonths BillingPeriod = "SIX_MONTHS"
	PeriodAnnual    BillingPeriod = "ANNUAL"
	PeriodAllTime   BillingPeriod = "ALL_TIME"
)

// Classification is the entitlement a provider product grants.
type Classification struct {
	Tier   Tier
	Period BillingPeriod
}

type Service interface {
	// Classify resolves a raw provider product identifier to its tier
	// and billing period. Failing to classify is fatal for the event
	// carrying the product: entitlement cannot be inferred.
	Classify(productID string) (Classification, error)
}

var (
	ErrUnknownProduct = errors.New("unknown_product")
	ErrInvalidTier    = errors.New("invalid_tier")
	ErrInvalidPeriod  = errors.New("invalid_period")
)

func ParseTier(value string) (Tier, error) {
	switch Tier(value) {
	case TierFree, TierBasic, TierPro:
		return Tier(value), nil
	default:
		return "", ErrInvalidTier
	}
}

func ParsePeriod(value string) (BillingPeriod, error) {
	switch BillingPeriod(value) {
	case PeriodMonthly, PeriodSixMonths, PeriodAnnual, PeriodAllTime:
		return BillingPeriod(value), nil
	default:
		return "", ErrInvalidPeriod
	}
}
