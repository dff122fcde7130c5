package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitlement/internal/clock"
	"github.com/smallbiznis/entitlement/internal/config"
	"github.com/smallbiznis/entitlement/internal/logger"
	"github.com/smallbiznis/entitlement/internal/migration"
	"github.com/smallbiznis/entitlement/internal/server"
	"github.com/smallbiznis/entitlement/pkg/db"
	"go.uber.org/fx"
)

// The api binary serves webhooks, promo redemption and subscription
// reads. The expiry sweep runs in the sweeper binary.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
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
