package queue

import (
	"context"
	"time"

	"github.com/edgepulse/edgepulse/internal/config"
	"github.com/edgepulse/edgepulse/internal/pipelineconfig"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("queue",
	fx.Provide(
		NewRedisClient,
		provideRedisQueue,
		func(q *RedisQueue) Dispatcher { return q },
		func(q *RedisQueue) Consumer { return q },
	),
	fx.Invoke(func(lc fx.Lifecycle, client *redis.Client, q *RedisQueue) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					return err
				}
				return q.EnsureGroup(ctx)
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
	}),
)

func NewRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func provideRedisQueue(cfg config.Config, tuning *pipelineconfig.Holder, client *redis.Client, log *zap.Logger) *RedisQueue {
	return NewRedisQueue(client, RedisQueueConfig{
		Stream:         cfg.QueueStream,
		Group:          cfg.QueueGroup,
		DeadStream:     cfg.QueueDeadStream,
		ReclaimMinIdle: func() time.Duration { return tuning.Get().ReclaimMinIdle },
	}, log)
}
