package sweep

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/entitlement/internal/config"
	"go.uber.org/fx"
)

func NewConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.SweepInterval,
		BatchSize:   cfg.SweepBatchSize,
	}.withDefaults()
}

// NewRedisClient returns nil when no redis address is configured; the
// sweep then runs unlocked, which is safe for a single replica.
func NewRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

var Module = fx.Module("sweep",
	fx.Provide(NewConfig),
	fx.Provide(NewRedisClient),
	fx.Provide(New),
)
