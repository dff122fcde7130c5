// Package domain defines the normalized billing webhook event and the
// reconciliation contract that folds it into persistent state.
package domain

import (
	"context"
	"errors"
	"time"
)

// EventType enumerates the provider's webhook event types. Only six of
// them drive a state transition; the rest are accepted and dropped.
type EventType string

const (
	EventInitialPurchase     EventType = "INITIAL_PURCHASE"
	EventRenewal             EventType = "RENEWAL"
	EventCancellation        EventType = "CANCELLATION"
	EventUncancellation      EventType = "UNCANCELLATION"
	EventExpiration          EventType = "EXPIRATION"
	EventSubscriptionPaused  EventType = "SUBSCRIPTION_PAUSED"
	EventBillingIssue        EventType = "BILLING_ISSUE"
	EventProductChange       EventType = "PRODUCT_CHANGE"
	EventTransfer            EventType = "TRANSFER"
	EventNonRenewingPurchase EventType = "NON_RENEWING_PURCHASE"
)

// WebhookEvent is the normalized provider payload. Timestamps are Unix
// epoch milliseconds as delivered on the wire.
type WebhookEvent struct {
	Type                     EventType `json:"type" binding:"required"`
	AppUserID                string    `json:"app_user_id" binding:"required"`
	SubscriptionID           string    `json:"id" binding:"required"`
	ProductID                string    `json:"product_id"`
	PurchasedAtMs            int64     `json:"purchased_at_ms"`
	ExpirationAtMs           *int64    `json:"expiration_at_ms"`
	EventTimestampMs         int64     `json:"event_timestamp_ms"`
	Price                    *float64  `json:"price"`
	Currency                 string    `json:"currency"`
	PriceInPurchasedCurrency *float64  `json:"price_in_purchased_currency"`
	Store                    string    `json:"store"`
	WillRenew                *bool     `json:"will_renew"`
}

// PurchasedAt converts the purchase timestamp to UTC time.
func (e *WebhookEvent) PurchasedAt() time.Time {
	return time.UnixMilli(e.PurchasedAtMs).UTC()
}

// ExpirationAt converts the optional expiration timestamp to UTC time.
func (e *WebhookEvent) ExpirationAt() *time.Time {
	if e.ExpirationAtMs == nil {
		return nil
	}
	t := time.UnixMilli(*e.ExpirationAtMs).UTC()
	return &t
}

// OccurredAt converts the event timestamp to UTC time.
func (e *WebhookEvent) OccurredAt() time.Time {
	return time.UnixMilli(e.EventTimestampMs).UTC()
}

// Outcome describes what the reconciler did with an event.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeIgnored Outcome = "ignored"
	OutcomeDropped Outcome = "dropped"
)

type ProcessResult struct {
	Outcome Outcome `json:"outcome"`
}

type Service interface {
	// ProcessEvent folds one webhook event into the subscription ledger,
	// the transaction ledger and the cached user tier. Store failures
	// propagate so the caller can signal a retryable failure to the
	// provider.
	ProcessEvent(context.Context, WebhookEvent) (ProcessResult, error)
}

var (
	ErrInvalidEvent = errors.New("invalid_event")
	ErrInvalidUser  = errors.New("invalid_user")
)
