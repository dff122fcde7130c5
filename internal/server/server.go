package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/entitlement/internal/catalog"
	"github.com/smallbiznis/entitlement/internal/config"
	"github.com/smallbiznis/entitlement/internal/promo"
	promodomain "github.com/smallbiznis/entitlement/internal/promo/domain"
	"github.com/smallbiznis/entitlement/internal/reconciler"
	reconcilerdomain "github.com/smallbiznis/entitlement/internal/reconciler/domain"
	"github.com/smallbiznis/entitlement/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/entitlement/internal/subscription/domain"
	"github.com/smallbiznis/entitlement/internal/transaction"
	"github.com/smallbiznis/entitlement/internal/user"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	catalog.Module,
	user.Module,
	subscription.Module,
	transaction.Module,
	reconciler.Module,
	promo.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	reconcilerSvc   reconcilerdomain.Service
	promoSvc        promodomain.Service
	subscriptionSvc subscriptiondomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	ReconcilerSvc   reconcilerdomain.Service
	PromoSvc        promodomain.Service
	SubscriptionSvc subscriptiondomain.Service
}

func NewServer(p ServerParams) *Server {
	srv := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("server"),
		reconcilerSvc:   p.ReconcilerSvc,
		promoSvc:        p.PromoSvc,
		subscriptionSvc: p.SubscriptionSvc,
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) registerRoutes() {
	s.engine.POST("/webhooks/billing", s.handleBillingWebhook)

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/promo/redeem", s.handlePromoRedeem)
		v1.POST("/promo/codes", s.handlePromoCreate)
		v1.GET("/users/:id/subscriptions", s.handleListSubscriptions)
	}
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
