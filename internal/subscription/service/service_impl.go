package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/entitlement/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log          *zap.Logger
	DB           *gorm.DB
	Subscription subscriptiondomain.Repository
}

type service struct {
	log          *zap.Logger
	db           *gorm.DB
	subscription subscriptiondomain.Repository
}

func NewService(p Params) subscriptiondomain.Service {
	return &service{
		log:          p.Log.Named("subscription.service"),
		db:           p.DB,
		subscription: p.Subscription,
	}
}

func (s *service) ListByUser(ctx context.Context, req subscriptiondomain.ListByUserRequest) (resp subscriptiondomain.ListByUserResponse, err error) {
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil {
		return resp, subscriptiondomain.ErrInvalidUser
	}

	subscriptions, err := s.subscription.ListByUser(ctx, s.db, userID)
	if err != nil {
		s.log.Error("failed to list subscriptions", zap.String("user_id", userID.String()), zap.Error(err))
		return resp, err
	}

	if req.Status != "" {
		status, err := subscriptiondomain.ParseStatus(req.Status)
		if err != nil {
			return resp, err
		}
		filtered := subscriptions[:0]
		for _, sub := range subscriptions {
			if sub.Status == status {
				filtered = append(filtered, sub)
			}
		}
		subscriptions = filtered
	}

	resp.Subscriptions = subscriptions
	if resp.Subscriptions == nil {
		resp.Subscriptions = []subscriptiondomain.Subscription{}
	}
	return resp, nil
}

func (s *service) GetByExternalID(ctx context.Context, externalID string) (subscriptiondomain.Subscription, error) {
	sub, err := s.subscription.FindByExternalID(ctx, s.db, externalID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if sub == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *sub, nil
}
