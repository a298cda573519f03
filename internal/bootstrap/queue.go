package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/queue"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/retry"
)

// SetupQueue connects the Redis Streams queue client, retrying while Redis comes up.
func SetupQueue(ctx context.Context, deps *CommandDeps) (*queue.Client, error) {
	redisCfg := deps.Config.Redis
	queueCfg := deps.Config.Queue
	log := deps.Logger.With(logger.String("component", "queue"))

	client := queue.NewClient(queue.Config{
		Address:          redisCfg.Address,
		Password:         redisCfg.Password,
		DB:               redisCfg.DB,
		Prefix:           queueCfg.StreamPrefix,
		Group:            queueCfg.ConsumerGroup,
		BlockTimeout:     queueCfg.BlockTimeout,
		ClaimMinIdle:     queueCfg.ClaimMinIdle,
		DeadLetterSuffix: queueCfg.DeadLetterSuffix,
	}, log)

	retryCfg := retry.DefaultConfig()
	retryCfg.OnRetry = func(attempt int, err error, next time.Duration) {
		log.Warn("Redis not ready, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("next", next),
			logger.Error(err),
		)
	}

	if err := retry.Do(ctx, retryCfg, client.Connect); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", redisCfg.Address, err)
	}

	return client, nil
}
