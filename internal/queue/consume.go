package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
)

const (
	readErrorBackoff    = time.Second
	maxReadErrorBackoff = 30 * time.Second
)

// Handler processes one delivery and settles it through the Client.
type Handler func(ctx context.Context, d *Delivery)

// Consume delivers entries of queueName to handler one at a time until ctx is cancelled.
//
// Deliveries still unsettled when ctx ends stay pending and are redelivered after
// ClaimMinIdle. Consume returns nil on cancellation.
func (c *Client) Consume(ctx context.Context, queueName string, handler Handler) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	if err = c.declare(ctx, rdb, queueName); err != nil {
		return err
	}

	consumer := c.nextConsumerName()
	log := c.log.With(logger.String("queue", queueName), logger.String("consumer", consumer))
	log.Info("Queue consumer started")
	defer log.Info("Queue consumer stopped")

	rc := &reclaimCursor{start: cursorStart}
	backoff := readErrorBackoff
	for ctx.Err() == nil {
		d, fetchErr := c.next(ctx, rdb, queueName, consumer, rc)
		if fetchErr != nil {
			if ctx.Err() != nil {
				break
			}
			if c.redeclare(ctx, rdb, queueName, fetchErr, log) {
				continue
			}
			log.Warn("Queue read failed", logger.Error(fetchErr), logger.Duration("backoff", backoff))
			if !sleepOrCancel(ctx, backoff) {
				break
			}
			backoff = min(backoff*2, maxReadErrorBackoff)
			continue
		}
		backoff = readErrorBackoff

		if d != nil {
			handler(ctx, d)
		}
	}

	return nil
}

// redeclare recreates the stream and group after a failed read. It reports whether the read
// failed for a missing group and the group exists again, in which case the read is retried at once.
func (c *Client) redeclare(ctx context.Context, rdb *redis.Client, queueName string, readErr error, log logger.Logger) bool {
	c.declared.Delete(queueName)
	if err := c.declare(ctx, rdb, queueName); err != nil {
		log.Warn("Failed to redeclare queue", logger.Error(err))
		return false
	}
	if !isNoGroup(readErr) {
		return false
	}
	log.Warn("Consumer group was missing, recreated it", logger.Error(readErr))
	return true
}

func isNoGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), noGroupPrefix)
}

// next returns a reclaimed delivery if one is idle long enough, otherwise blocks for a new one.
// A nil delivery with a nil error means the block timeout elapsed.
func (c *Client) next(ctx context.Context, rdb *redis.Client, queueName, consumer string, rc *reclaimCursor) (*Delivery, error) {
	d, err := c.reclaim(ctx, rdb, queueName, consumer, rc)
	if err != nil || d != nil {
		return d, err
	}

	streams, err := rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: consumer,
		Streams:  []string{c.StreamKey(queueName), ">"},
		Count:    1,
		Block:    c.cfg.BlockTimeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", queueName, err)
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}
	return newDelivery(queueName, streams[0].Messages[0], 0), nil
}

// cursorStart is the XAUTOCLAIM cursor that begins a pass over the pending entries list,
// and the cursor Redis returns once a pass is complete.
const cursorStart = "0-0"

// reclaimCursor tracks one consumer's walk over the pending entries list. A pass pages
// through the whole list with XAUTOCLAIM; after a pass that claims nothing the next one
// waits for half of ClaimMinIdle.
type reclaimCursor struct {
	start    string
	nextPass time.Time
}

func (c *Client) reclaim(ctx context.Context, rdb *redis.Client, queueName, consumer string, rc *reclaimCursor) (*Delivery, error) {
	if time.Now().Before(rc.nextPass) {
		return nil, nil
	}
	stream := c.StreamKey(queueName)

	for ctx.Err() == nil {
		claimed, next, err := rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    c.cfg.Group,
			Consumer: consumer,
			MinIdle:  c.cfg.ClaimMinIdle,
			Start:    rc.start,
			Count:    1,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				rc.start = cursorStart
				return nil, nil
			}
			return nil, fmt.Errorf("reclaim pending %s: %w", queueName, err)
		}
		rc.start = next

		for _, msg := range claimed {
			if len(msg.Values) == 0 {
				// The entry was deleted while still pending.
				_ = rdb.XAck(ctx, stream, c.cfg.Group, msg.ID).Err()
				continue
			}

			prior := c.priorDeliveries(ctx, rdb, stream, msg.ID)
			c.log.Info("Reclaimed idle delivery",
				logger.String("queue", queueName),
				logger.String("message_id", msg.ID),
				logger.Int64("previous_deliveries", prior),
			)
			return newDelivery(queueName, msg, prior), nil
		}

		if next == "" || next == cursorStart {
			rc.start = cursorStart
			rc.nextPass = time.Now().Add(c.cfg.ClaimMinIdle / 2)
			return nil, nil
		}
	}

	return nil, nil
}

// priorDeliveries returns how many times msgID was delivered before the claim that just
// took it. A lookup failure counts the one delivery that must have happened.
func (c *Client) priorDeliveries(ctx context.Context, rdb *redis.Client, stream, msgID string) int64 {
	pending, err := rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  c.cfg.Group,
		Start:  msgID,
		End:    msgID,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 || pending[0].RetryCount < 2 {
		return 1
	}
	return pending[0].RetryCount - 1
}

func sleepOrCancel(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
