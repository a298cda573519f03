package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Stats summarises a queue.
type Stats struct {
	Queue       string `json:"queue"`
	Length      int64  `json:"length"`
	Pending     int64  `json:"pending"`
	DeadLetters int64  `json:"dead_letters"`
}

// Stats returns entry counts for queueName. Length includes pending entries.
func (c *Client) Stats(ctx context.Context, queueName string) (Stats, error) {
	rdb, err := c.conn()
	if err != nil {
		return Stats{}, err
	}

	st := Stats{Queue: queueName}

	if st.Length, err = rdb.XLen(ctx, c.StreamKey(queueName)).Result(); err != nil {
		return st, fmt.Errorf("length of %s: %w", queueName, err)
	}
	if st.DeadLetters, err = rdb.XLen(ctx, c.DeadLetterKey(queueName)).Result(); err != nil {
		return st, fmt.Errorf("dead-letter length of %s: %w", queueName, err)
	}

	// Settled entries are deleted, so an empty stream has nothing pending.
	if st.Length == 0 {
		return st, nil
	}

	summary, err := rdb.XPending(ctx, c.StreamKey(queueName), c.cfg.Group).Result()
	switch {
	case err == nil:
		st.Pending = summary.Count
	case errors.Is(err, redis.Nil), strings.HasPrefix(err.Error(), noGroupPrefix):
	default:
		return st, fmt.Errorf("pending of %s: %w", queueName, err)
	}

	return st, nil
}

// DeadLetters returns up to limit dead-lettered entries of queueName, oldest first.
func (c *Client) DeadLetters(ctx context.Context, queueName string, limit int64) ([]DeadLetter, error) {
	rdb, err := c.conn()
	if err != nil {
		return nil, err
	}

	msgs, err := rdb.XRangeN(ctx, c.DeadLetterKey(queueName), "-", "+", limit).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead letters of %s: %w", queueName, err)
	}

	out := make([]DeadLetter, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, newDeadLetter(msg))
	}
	return out, nil
}
