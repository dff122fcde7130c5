package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/entitlement/internal/catalog/domain"
	"github.com/smallbiznis/entitlement/internal/observability/metrics"
	reconcilerdomain "github.com/smallbiznis/entitlement/internal/reconciler/domain"
	subscriptiondomain "github.com/smallbiznis/entitlement/internal/subscription/domain"
	transactiondomain "github.com/smallbiznis/entitlement/internal/transaction/domain"
	userdomain "github.com/smallbiznis/entitlement/internal/user/domain"
	"github.com/smallbiznis/entitlement/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log          *zap.Logger
	DB           *gorm.DB
	Node         *snowflake.Node
	Catalog      catalogdomain.Service
	Subscription subscriptiondomain.Repository
	Transaction  transactiondomain.Repository
	User         userdomain.Repository
}

type service struct {
	log          *zap.Logger
	db           *gorm.DB
	node         *snowflake.Node
	catalog      catalogdomain.Service
	subscription subscriptiondomain.Repository
	transaction  transactiondomain.Repository
	user         userdomain.Repository
}

func NewService(p Params) reconcilerdomain.Service {
	return &service{
		log:          p.Log.Named("reconciler.service"),
		db:           p.DB,
		node:         p.Node,
		catalog:      p.Catalog,
		subscription: p.Subscription,
		transaction:  p.Transaction,
		user:         p.User,
	}
}

// ProcessEvent applies one provider event against the subscription ledger,
// the transaction ledger and the cached user tier in a single database
// transaction, so a redelivered or interleaved event never observes a
// half-applied write sequence.
func (s *service) ProcessEvent(ctx context.Context, event reconcilerdomain.WebhookEvent) (reconcilerdomain.ProcessResult, error) {
	userID, err := snowflake.ParseString(strings.TrimSpace(event.AppUserID))
	if err != nil {
		metrics.IncWebhookEvent(string(event.Type), "invalid")
		return reconcilerdomain.ProcessResult{}, reconcilerdomain.ErrInvalidUser
	}

	var outcome reconcilerdomain.Outcome

	switch event.Type {
	case reconcilerdomain.EventInitialPurchase, reconcilerdomain.EventRenewal:
		outcome, err = s.applyPurchase(ctx, userID, event)
	case reconcilerdomain.EventCancellation:
		outcome, err = s.applyCancellation(ctx, userID, event)
	case reconcilerdomain.EventExpiration:
		outcome, err = s.applyExpiration(ctx, userID, event)
	case reconcilerdomain.EventUncancellation:
		outcome, err = s.applyUncancellation(ctx, userID, event)
	case reconcilerdomain.EventSubscriptionPaused:
		outcome, err = s.applyPause(ctx, userID, event)
	default:
		// Non-transition event types are accepted and dropped without
		// touching any state.
		s.log.Info("ignoring non-transition event",
			zap.String("type", string(event.Type)),
			zap.String("subscription_id", event.SubscriptionID),
		)
		outcome = reconcilerdomain.OutcomeIgnored
	}
	if err != nil {
		metrics.IncWebhookEvent(string(event.Type), "error")
		return reconcilerdomain.ProcessResult{}, err
	}

	metrics.IncWebhookEvent(string(event.Type), string(outcome))
	return reconcilerdomain.ProcessResult{Outcome: outcome}, nil
}

// allowedFrom lists the states each lifecycle event may fire from. The
// provider redelivers and reorders events, so a transition arriving
// against any other state is stale and must not move the row backwards
// (a PAUSE or UNCANCELLATION after EXPIRATION would otherwise resurrect
// a terminal subscription).
var allowedFrom = map[reconcilerdomain.EventType][]subscriptiondomain.SubscriptionStatus{
	reconcilerdomain.EventCancellation: {
		subscriptiondomain.SubscriptionStatusActive,
	},
	reconcilerdomain.EventExpiration: {
		subscriptiondomain.SubscriptionStatusActive,
		subscriptiondomain.SubscriptionStatusCancelled,
	},
	reconcilerdomain.EventUncancellation: {
		subscriptiondomain.SubscriptionStatusCancelled,
	},
	reconcilerdomain.EventSubscriptionPaused: {
		subscriptiondomain.SubscriptionStatusActive,
	},
}

func isTransitionAllowed(eventType reconcilerdomain.EventType, from subscriptiondomain.SubscriptionStatus) bool {
	for _, status := range allowedFrom[eventType] {
		if status == from {
			return true
		}
	}
	return false
}

// applyPurchase handles INITIAL_PURCHASE and RENEWAL. A renewal with no
// prior subscription record self-heals by synthesizing one, so a missed
// purchase event converges on the next cycle.
func (s *service) applyPurchase(ctx context.Context, userID snowflake.ID, event reconcilerdomain.WebhookEvent) (reconcilerdomain.Outcome, error) {
	classification, err := s.catalog.Classify(event.ProductID)
	if err != nil {
		s.log.Warn("rejecting event with unclassifiable product",
			zap.String("type", string(event.Type)),
			zap.String("product_id", event.ProductID),
		)
		return "", err
	}

	now := event.OccurredAt()
	expiresAt := event.ExpirationAt()
	willRenew := true
	if event.WillRenew != nil {
		willRenew = *event.WillRenew
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.subscription.FindByExternalID(ctx, tx, event.SubscriptionID)
		if err != nil {
			return err
		}

		if existing == nil {
			sub := &subscriptiondomain.Subscription{
				ID:          s.node.Generate(),
				ExternalID:  event.SubscriptionID,
				UserID:      userID,
				Tier:        classification.Tier,
				Period:      classification.Period,
				Status:      subscriptiondomain.SubscriptionStatusActive,
				StartDate:   event.PurchasedAt(),
				EndDate:     expiresAt,
				RenewalDate: expiresAt,
				ProductID:   event.ProductID,
				Store:       event.Store,
				WillRenew:   willRenew,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := s.subscription.Insert(ctx, tx, sub); err != nil {
				// A concurrent delivery created the row first; state
				// converges via the update branch on redelivery.
				if !db.IsDuplicateKeyErr(err) {
					return err
				}
			}
		} else {
			existing.Tier = classification.Tier
			existing.Period = classification.Period
			existing.Status = subscriptiondomain.SubscriptionStatusActive
			existing.EndDate = expiresAt
			existing.RenewalDate = expiresAt
			existing.CancellationDate = nil
			existing.ProductID = event.ProductID
			if event.Store != "" {
				existing.Store = event.Store
			}
			if event.Type == reconcilerdomain.EventRenewal {
				existing.WillRenew = true
			} else {
				existing.WillRenew = willRenew
			}
			existing.UpdatedAt = now
			if err := s.subscription.Update(ctx, tx, existing); err != nil {
				return err
			}
		}

		inserted, err := s.transaction.Insert(ctx, tx, s.buildTransaction(userID, classification.Tier, event))
		if err != nil {
			return err
		}
		if !inserted {
			s.log.Info("duplicate delivery, transaction already recorded",
				zap.String("subscription_id", event.SubscriptionID),
				zap.Int64("event_timestamp_ms", event.EventTimestampMs),
			)
		}

		if err := s.user.UpdateTier(ctx, tx, userID, classification.Tier, now); err != nil {
			return err
		}
		return s.reconcileVerification(ctx, tx, userID, now)
	})
	if err != nil {
		return "", err
	}
	return reconcilerdomain.OutcomeApplied, nil
}

func (s *service) applyCancellation(ctx context.Context, userID snowflake.ID, event reconcilerdomain.WebhookEvent) (reconcilerdomain.Outcome, error) {
	now := event.OccurredAt()

	var outcome reconcilerdomain.Outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.subscription.FindByExternalID(ctx, tx, event.SubscriptionID)
		if err != nil {
			return err
		}
		if existing == nil {
			s.log.Warn("cancellation for unknown subscription, dropping",
				zap.String("subscription_id", event.SubscriptionID),
			)
			outcome = reconcilerdomain.OutcomeDropped
			return s.reconcileVerification(ctx, tx, userID, now)
		}
		if !isTransitionAllowed(event.Type, existing.Status) {
			s.log.Warn("dropping out-of-order cancellation",
				zap.String("subscription_id", event.SubscriptionID),
				zap.String("status", string(existing.Status)),
			)
			outcome = reconcilerdomain.OutcomeDropped
			return s.reconcileVerification(ctx, tx, userID, now)
		}

		// Entitlement survives until the paid-for period lapses; only
		// the renewal intent changes here.
		existing.Status = subscriptiondomain.SubscriptionStatusCancelled
		existing.WillRenew = false
		existing.CancellationDate = &now
		existing.EndDate = &now
		existing.UpdatedAt = now
		if err := s.subscription.Update(ctx, tx, existing); err != nil {
			return err
		}

		outcome = reconcilerdomain.OutcomeApplied
		return s.reconcileVerification(ctx, tx, userID, now)
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *service) applyExpiration(ctx context.Context, userID snowflake.ID, event reconcilerdomain.WebhookEvent) (reconcilerdomain.Outcome, error) {
	now := event.OccurredAt()
	expiredAt := event.ExpirationAt()
	if expiredAt == nil {
		expiredAt = &now
	}

	var outcome reconcilerdomain.Outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.subscription.FindByExternalID(ctx, tx, event.SubscriptionID)
		if err != nil {
			return err
		}
		if existing == nil {
			s.log.Warn("expiration for unknown subscription, dropping",
				zap.String("subscription_id", event.SubscriptionID),
			)
			outcome = reconcilerdomain.OutcomeDropped
			return s.reconcileVerification(ctx, tx, userID, now)
		}
		if !isTransitionAllowed(event.Type, existing.Status) {
			s.log.Warn("dropping out-of-order expiration",
				zap.String("subscription_id", event.SubscriptionID),
				zap.String("status", string(existing.Status)),
			)
			outcome = reconcilerdomain.OutcomeDropped
			return s.reconcileVerification(ctx, tx, userID, now)
		}

		existing.Status = subscriptiondomain.SubscriptionStatusExpired
		existing.ExpirationDate = expiredAt
		existing.EndDate = expiredAt
		existing.WillRenew = false
		existing.UpdatedAt = now
		if err := s.subscription.Update(ctx, tx, existing); err != nil {
			return err
		}

		if err := s.user.UpdateTier(ctx, tx, userID, catalogdomain.TierFree, now); err != nil {
			return err
		}

		outcome = reconcilerdomain.OutcomeApplied
		return s.reconcileVerification(ctx, tx, userID, now)
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *service) applyUncancellation(ctx context.Context, userID snowflake.ID, event reconcilerdomain.WebhookEvent) (reconcilerdomain.Outcome, error) {
	now := event.OccurredAt()
	expiresAt := event.ExpirationAt()

	var outcome reconcilerdomain.Outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.subscription.FindByExternalID(ctx, tx, event.SubscriptionID)
		if err != nil {
			return err
		}
		if existing == nil {
			s.log.Warn("uncancellation for unknown subscription, dropping",
				zap.String("subscription_id", event.SubscriptionID),
			)
			outcome = reconcilerdomain.OutcomeDropped
			return s.reconcileVerification(ctx, tx, userID, now)
		}
		if !isTransitionAllowed(event.Type, existing.Status) {
			s.log.Warn("dropping out-of-order uncancellation",
				zap.String("subscription_id", event.SubscriptionID),
				zap.String("status", string(existing.Status)),
			)
			outcome = reconcilerdomain.OutcomeDropped
			return s.reconcileVerification(ctx, tx, userID, now)
		}

		existing.Status = subscriptiondomain.SubscriptionStatusActive
		existing.CancellationDate = nil
		existing.WillRenew = true
		if expiresAt != nil {
			existing.RenewalDate = expiresAt
			existing.EndDate = expiresAt
		}
		existing.UpdatedAt = now
		if err := s.subscription.Update(ctx, tx, existing); err != nil {
			return err
		}

		outcome = reconcilerdomain.OutcomeApplied
		return s.reconcileVerification(ctx, tx, userID, now)
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *service) applyPause(ctx context.Context, userID snowflake.ID, event reconcilerdomain.WebhookEvent) (reconcilerdomain.Outcome, error) {
	now := event.OccurredAt()

	var outcome reconcilerdomain.Outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.subscription.FindByExternalID(ctx, tx, event.SubscriptionID)
		if err != nil {
			return err
		}
		if existing == nil {
			s.log.Warn("pause for unknown subscription, dropping",
				zap.String("subscription_id", event.SubscriptionID),
			)
			outcome = reconcilerdomain.OutcomeDropped
			return s.reconcileVerification(ctx, tx, userID, now)
		}
		if !isTransitionAllowed(event.Type, existing.Status) {
			s.log.Warn("dropping out-of-order pause",
				zap.String("subscription_id", event.SubscriptionID),
				zap.String("status", string(existing.Status)),
			)
			outcome = reconcilerdomain.OutcomeDropped
			return s.reconcileVerification(ctx, tx, userID, now)
		}

		existing.Status = subscriptiondomain.SubscriptionStatusPaused
		existing.WillRenew = false
		existing.UpdatedAt = now
		if err := s.subscription.Update(ctx, tx, existing); err != nil {
			return err
		}

		outcome = reconcilerdomain.OutcomeApplied
		return s.reconcileVerification(ctx, tx, userID, now)
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// reconcileVerification re-derives the business verification flag from the
// current subscription ledger, so the flag self-corrects even when an
// individual transition missed it.
func (s *service) reconcileVerification(ctx context.Context, tx *gorm.DB, userID snowflake.ID, now time.Time) error {
	user, err := s.user.FindByID(ctx, tx, userID)
	if err != nil {
		return err
	}
	if user == nil || !user.IsBusiness() {
		return nil
	}

	active, err := s.subscription.CountActiveByUser(ctx, tx, userID)
	if err != nil {
		return err
	}
	if active > 0 {
		return s.user.MarkVerifiedBusiness(ctx, tx, userID, now)
	}
	return s.user.MarkUnverified(ctx, tx, userID, now)
}

func (s *service) buildTransaction(userID snowflake.ID, tier catalogdomain.Tier, event reconcilerdomain.WebhookEvent) *transactiondomain.Transaction {
	var amount, currencyAmount float64
	if event.Price != nil {
		amount = *event.Price
	}
	if event.PriceInPurchasedCurrency != nil {
		currencyAmount = *event.PriceInPurchasedCurrency
	}

	now := event.OccurredAt()
	return &transactiondomain.Transaction{
		ID:             s.node.Generate(),
		DedupeKey:      fmt.Sprintf("%s:%d", event.SubscriptionID, event.EventTimestampMs),
		UserID:         userID,
		Type:           transactiondomain.TransactionTypeSubscription,
		Tier:           tier,
		Amount:         amount,
		Currency:       event.Currency,
		CurrencyAmount: currencyAmount,
		Store:          event.Store,
		ProductID:      event.ProductID,
		OccurredAt:     now,
		CreatedAt:      now,
	}
}
