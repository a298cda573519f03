package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ack removes the delivery from the queue for good.
func (c *Client) Ack(ctx context.Context, d *Delivery) error {
	return c.settle(ctx, d, "ack", nil)
}

// Nack settles a delivery that failed. With requeue set the payload is published again with
// the attempt counter incremented. Without it the delivery is dead-lettered.
func (c *Client) Nack(ctx context.Context, d *Delivery, requeue bool) error {
	if !requeue {
		return c.DeadLetter(ctx, d, "rejected")
	}

	stream := c.StreamKey(d.Queue)
	return c.settle(ctx, d, "nack", func(p redis.Pipeliner) {
		p.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			Values: map[string]any{
				fieldPayload:     d.Payload,
				fieldAttempt:     d.Attempt + 1,
				fieldPublishedAt: publishedAt(d),
			},
		})
	})
}

// DeadLetter moves the delivery to the queue's dead-letter stream with reason attached.
func (c *Client) DeadLetter(ctx context.Context, d *Delivery, reason string) error {
	deadKey := c.DeadLetterKey(d.Queue)
	return c.settle(ctx, d, "dead-letter", func(p redis.Pipeliner) {
		p.XAdd(ctx, &redis.XAddArgs{
			Stream: deadKey,
			Values: map[string]any{
				fieldPayload:      d.Payload,
				fieldAttempt:      d.Attempt,
				fieldSourceID:     d.ID,
				fieldReason:       reason,
				fieldPublishedAt:  publishedAt(d),
				fieldDeadLettered: time.Now().UTC().Format(time.RFC3339Nano),
			},
		})
	})
}

// settle runs extra (if any) together with XACK and XDEL of the original entry in one
// MULTI/EXEC, so a requeue or dead-letter can never duplicate or lose the payload.
func (c *Client) settle(ctx context.Context, d *Delivery, op string, extra func(redis.Pipeliner)) error {
	if d == nil {
		return fmt.Errorf("%s: nil delivery", op)
	}

	rdb, err := c.conn()
	if err != nil {
		return err
	}

	if !d.claim() {
		return fmt.Errorf("%s %s: %w", op, d.ID, ErrAlreadySettled)
	}

	stream := c.StreamKey(d.Queue)
	_, err = rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if extra != nil {
			extra(p)
		}
		p.XAck(ctx, stream, c.cfg.Group, d.ID)
		p.XDel(ctx, stream, d.ID)
		return nil
	})
	if err != nil {
		d.release()
		return fmt.Errorf("%s %s: %w", op, d.ID, err)
	}

	return nil
}

func publishedAt(d *Delivery) string {
	if d.PublishedAt.IsZero() {
		return time.Now().UTC().Format(time.RFC3339Nano)
	}
	return d.PublishedAt.UTC().Format(time.RFC3339Nano)
}
