package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	catalogdomain "github.com/smallbiznis/entitlement/internal/catalog/domain"
	"github.com/smallbiznis/entitlement/internal/clock"
	"github.com/smallbiznis/entitlement/internal/config"
	"github.com/smallbiznis/entitlement/internal/observability/metrics"
	promodomain "github.com/smallbiznis/entitlement/internal/promo/domain"
	subscriptiondomain "github.com/smallbiznis/entitlement/internal/subscription/domain"
	userdomain "github.com/smallbiznis/entitlement/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const promoStore = "promo"

type Params struct {
	fx.In

	Log          *zap.Logger
	DB           *gorm.DB
	Config       config.Config
	Clock        clock.Clock
	Node         *snowflake.Node
	Promo        promodomain.Repository
	Subscription subscriptiondomain.Repository
	User         userdomain.Repository
}

type service struct {
	log          *zap.Logger
	db           *gorm.DB
	cfg          config.Config
	clock        clock.Clock
	node         *snowflake.Node
	promo        promodomain.Repository
	subscription subscriptiondomain.Repository
	user         userdomain.Repository
}

func NewService(p Params) promodomain.Service {
	return &service{
		log:          p.Log.Named("promo.service"),
		db:           p.DB,
		cfg:          p.Config,
		clock:        p.Clock,
		node:         p.Node,
		promo:        p.Promo,
		subscription: p.Subscription,
		user:         p.User,
	}
}

// Redeem grants a lifetime PRO subscription in exchange for a single-use
// code. All writes happen inside one database transaction: losing the
// claim race rolls back everything.
func (s *service) Redeem(ctx context.Context, req promodomain.RedeemRequest) (resp promodomain.RedeemResponse, err error) {
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil {
		metrics.IncPromoRedemption("invalid")
		return resp, promodomain.ErrInvalidUser
	}
	code := strings.TrimSpace(req.Code)

	now := s.clock.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.user.FindByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return userdomain.ErrUserNotFound
		}

		existing, err := s.promo.FindByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if existing == nil {
			return promodomain.ErrCodeNotFound
		}

		claimed, err := s.promo.Claim(ctx, tx, code, userID, now)
		if err != nil {
			return err
		}
		if !claimed {
			return promodomain.ErrCodeAlreadyUsed
		}

		if _, err := s.subscription.ExpireAllByUser(ctx, tx, userID, now); err != nil {
			return err
		}

		sub := &subscriptiondomain.Subscription{
			ID:         s.node.Generate(),
			ExternalID: promoStore + ":" + code,
			UserID:     userID,
			Tier:       catalogdomain.TierPro,
			Period:     catalogdomain.PeriodAllTime,
			Status:     subscriptiondomain.SubscriptionStatusActive,
			StartDate:  now,
			ProductID:  s.cfg.PromoProductID,
			Store:      promoStore,
			WillRenew:  false,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.subscription.Insert(ctx, tx, sub); err != nil {
			return err
		}

		if err := s.user.UpdateTier(ctx, tx, userID, catalogdomain.TierPro, now); err != nil {
			return err
		}
		if user.IsBusiness() {
			if err := s.user.MarkVerifiedBusiness(ctx, tx, userID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		metrics.IncPromoRedemption("rejected")
		s.log.Warn("promo redemption failed",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return resp, err
	}

	metrics.IncPromoRedemption("redeemed")
	s.log.Info("promo code redeemed",
		zap.String("user_id", userID.String()),
		zap.String("code", code),
	)

	return promodomain.RedeemResponse{
		Code:       code,
		UserID:     userID.String(),
		Tier:       string(catalogdomain.TierPro),
		RedeemedAt: now,
	}, nil
}

// Create mints a batch of fresh single-use codes.
func (s *service) Create(ctx context.Context, req promodomain.CreateRequest) (resp promodomain.CreateResponse, err error) {
	now := s.clock.Now()

	codes := make([]string, 0, req.Count)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := 0; i < req.Count; i++ {
			code := uuid.NewString()
			promo := &promodomain.PromoCode{
				Code:      code,
				Status:    promodomain.PromoStatusActive,
				CreatedAt: now,
			}
			if err := s.promo.Insert(ctx, tx, promo); err != nil {
				return err
			}
			codes = append(codes, code)
		}
		return nil
	})
	if err != nil {
		return resp, err
	}

	s.log.Info("promo codes minted", zap.Int("count", len(codes)))
	resp.Codes = codes
	return resp, nil
}
