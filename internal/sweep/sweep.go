// Package sweep contains the expiry backstop: a periodic batch job that
// forces lapsed ACTIVE subscriptions to EXPIRED and downgrades their
// owners when the provider never delivered a terminal event.
package sweep

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	catalogdomain "github.com/smallbiznis/entitlement/internal/catalog/domain"
	"github.com/smallbiznis/entitlement/internal/clock"
	"github.com/smallbiznis/entitlement/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/entitlement/internal/subscription/domain"
	userdomain "github.com/smallbiznis/entitlement/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Subscription subscriptiondomain.Repository
	User         userdomain.Repository
	Redis        *redis.Client `optional:"true"`
	Config       Config        `optional:"true"`
}

type Sweeper struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          Config
	clock        clock.Clock
	subscription subscriptiondomain.Repository
	user         userdomain.Repository
	lock         *lock
}

func New(p Params) (*Sweeper, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Subscription == nil || p.User == nil {
		return nil, ErrInvalidConfig
	}
	return &Sweeper{
		db:           p.DB,
		log:          p.Log.Named("sweep").With(zap.String("component", "sweep")),
		cfg:          p.Config.withDefaults(),
		clock:        p.Clock,
		subscription: p.Subscription,
		user:         p.User,
		lock:         newLock(p.Redis),
	}, nil
}

// RunOnce performs one full sweep pass. It drains lapsed subscriptions in
// batches until none remain, so a second consecutive run on unchanged
// data touches nothing.
func (s *Sweeper) RunOnce(parent context.Context) error {
	// Bound the pass by the lock TTL so a slow sweep never outlives its
	// own lock.
	ctx, cancel := context.WithTimeout(parent, s.cfg.LockTTL)
	defer cancel()

	held, err := s.lock.Acquire(ctx, s.cfg.LockTTL)
	if err != nil {
		metrics.IncSweepRun("error")
		return err
	}
	if !held {
		s.log.Info("sweep lock held elsewhere, skipping tick")
		metrics.IncSweepRun("skipped")
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.log.Warn("failed to release sweep lock", zap.Error(err))
		}
	}()

	now := s.clock.Now()
	total := 0

	for {
		if ctx.Err() != nil {
			metrics.IncSweepRun("error")
			return ctx.Err()
		}

		expired, err := s.sweepBatch(ctx, now)
		if err != nil {
			metrics.IncSweepRun("error")
			return err
		}
		total += expired
		if expired == 0 {
			break
		}
	}

	if total > 0 {
		s.log.Info("sweep expired lapsed subscriptions",
			zap.Int("count", total),
			zap.Time("cutoff", now),
		)
	}
	metrics.AddSweepExpired(total)
	metrics.IncSweepRun("ok")
	return nil
}

// sweepBatch expires one batch of lapsed subscriptions, downgrades the
// owning users to FREE and re-derives business verification, all inside
// one database transaction.
func (s *Sweeper) sweepBatch(ctx context.Context, now time.Time) (int, error) {
	var expired int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lapsed, err := s.subscription.FindLapsed(ctx, tx, now, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(lapsed) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(lapsed))
		userIDs := make([]snowflake.ID, 0, len(lapsed))
		seen := make(map[snowflake.ID]struct{}, len(lapsed))
		for _, sub := range lapsed {
			ids = append(ids, sub.ID)
			if _, ok := seen[sub.UserID]; !ok {
				seen[sub.UserID] = struct{}{}
				userIDs = append(userIDs, sub.UserID)
			}
		}

		affected, err := s.subscription.ExpireByIDs(ctx, tx, ids, now)
		if err != nil {
			return err
		}
		expired = int(affected)

		if err := s.user.UpdateTierByIDs(ctx, tx, userIDs, catalogdomain.TierFree, now); err != nil {
			return err
		}

		for _, userID := range userIDs {
			if err := s.reconcileVerification(ctx, tx, userID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}

// reconcileVerification mirrors the event-path re-derivation: a business
// user keeps the verified badge only while an ACTIVE subscription exists.
func (s *Sweeper) reconcileVerification(ctx context.Context, tx *gorm.DB, userID snowflake.ID, now time.Time) error {
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

// RunForever ticks the sweep until the context is cancelled.
func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
