package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publish declares queueName if needed and appends payload as a new entry.
// Each call is independent: a failure never affects entries published earlier.
func (c *Client) Publish(ctx context.Context, queueName, payload string) (string, error) {
	rdb, err := c.conn()
	if err != nil {
		return "", err
	}

	if err = c.declare(ctx, rdb, queueName); err != nil {
		return "", err
	}

	id, err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.StreamKey(queueName),
		Values: map[string]any{
			fieldPayload:     payload,
			fieldAttempt:     1,
			fieldPublishedAt: time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", queueName, err)
	}

	return id, nil
}
