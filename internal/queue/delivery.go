package queue

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream entry fields.
const (
	fieldPayload      = "payload"
	fieldAttempt      = "attempt"
	fieldPublishedAt  = "published_at"
	fieldSourceID     = "source_id"
	fieldReason       = "reason"
	fieldDeadLettered = "dead_lettered_at"
)

// Delivery is one message handed to a consumer. It must be passed to exactly one of
// Client.Ack, Client.Nack or Client.DeadLetter and must not be kept after that.
type Delivery struct {
	ID          string
	Queue       string
	Payload     string
	Attempt     int
	PublishedAt time.Time

	settled atomic.Bool
}

// Settled reports whether the delivery has been acked or nacked.
func (d *Delivery) Settled() bool { return d.settled.Load() }

func (d *Delivery) claim() bool { return d.settled.CompareAndSwap(false, true) }

func (d *Delivery) release() { d.settled.Store(false) }

// newDelivery decodes a stream entry. priorDeliveries counts deliveries of this entry that
// ended without settlement, which happens when a consumer dies mid-handling.
func newDelivery(queueName string, msg redis.XMessage, priorDeliveries int64) *Delivery {
	d := &Delivery{
		ID:      msg.ID,
		Queue:   queueName,
		Attempt: 1,
	}

	if payload, ok := msg.Values[fieldPayload].(string); ok {
		d.Payload = payload
	}
	if raw, ok := msg.Values[fieldAttempt].(string); ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			d.Attempt = n
		}
	}
	if raw, ok := msg.Values[fieldPublishedAt].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			d.PublishedAt = ts
		}
	}

	d.Attempt += int(priorDeliveries)
	return d
}

// DeadLetter is an entry in a dead-letter stream.
type DeadLetter struct {
	ID             string    `json:"id"`
	SourceID       string    `json:"source_id"`
	Payload        string    `json:"payload"`
	Attempts       int       `json:"attempts"`
	Reason         string    `json:"reason"`
	DeadLetteredAt time.Time `json:"dead_lettered_at"`
}

func newDeadLetter(msg redis.XMessage) DeadLetter {
	dl := DeadLetter{ID: msg.ID}
	dl.SourceID, _ = msg.Values[fieldSourceID].(string)
	dl.Payload, _ = msg.Values[fieldPayload].(string)
	dl.Reason, _ = msg.Values[fieldReason].(string)
	if raw, ok := msg.Values[fieldAttempt].(string); ok {
		dl.Attempts, _ = strconv.Atoi(raw)
	}
	if raw, ok := msg.Values[fieldDeadLettered].(string); ok {
		dl.DeadLetteredAt, _ = time.Parse(time.RFC3339Nano, raw)
	}
	return dl
}
