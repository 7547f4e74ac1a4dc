package batchlock

import (
	"context"
	"strings"

	"github.com/harvardinformatics/ifxbilling-sub000/internal/clock"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("batch.lock",
	fx.Provide(NewLocker),
)

// NewLocker uses redis when REDIS_ADDR is set and an in-process lock otherwise.
func NewLocker(lc fx.Lifecycle, cfg config.Config, c clock.Clock, log *zap.Logger) Locker {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		log.Info("batch lock is process local; set REDIS_ADDR to share it")
		return NewLocalLocker(c)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return NewRedisLocker(client)
}
