package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitlement/internal/clock"
	"github.com/smallbiznis/entitlement/internal/config"
	"github.com/smallbiznis/entitlement/internal/logger"
	"github.com/smallbiznis/entitlement/internal/subscription"
	"github.com/smallbiznis/entitlement/internal/sweep"
	"github.com/smallbiznis/entitlement/internal/user"
	"github.com/smallbiznis/entitlement/pkg/db"
	"go.uber.org/fx"
)

// The sweeper binary only runs the expiry backstop.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		subscription.Module,
		user.Module,
		sweep.Module,

		// No server module!
		fx.Invoke(StartSweeper),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func StartSweeper(lc fx.Lifecycle, s *sweep.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.RunForever(context.Background())
			return nil
		},
	})
}
