package domain

import (
	"context"
	"errors"
)

type ListByUserRequest struct {
	UserID string
	Status string
}

type ListByUserResponse struct {
	Subscriptions []Subscription `json:"subscriptions"`
}

type Service interface {
	ListByUser(context.Context, ListByUserRequest) (ListByUserResponse, error)
	GetByExternalID(context.Context, string) (Subscription, error)
}

var (
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
)

func ParseStatus(value string) (SubscriptionStatus, error) {
	switch SubscriptionStatus(value) {
	case SubscriptionStatusActive,
		SubscriptionStatusCancelled,
		SubscriptionStatusExpired,
		SubscriptionStatusPaused:
		return SubscriptionStatus(value), nil
	default:
		return "", ErrInvalidStatus
	}
}
