// Package queue implements a durable at-least-once work queue on Redis Streams.
//
// Each queue is a stream read through one consumer group. A delivery stays in the group's
// pending entries list until it is settled. Ack removes the entry. Nack re-publishes it with
// an incremented attempt counter. DeadLetter moves it to a side stream for inspection.
// Entries left pending by a consumer that died are reclaimed once they have been idle for
// ClaimMinIdle.
package queue

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
)

const (
	connectTimeout          = 5 * time.Second
	defaultPrefix           = "news-ingestor"
	defaultGroup            = "ingestors"
	defaultBlockTimeout     = 5 * time.Second
	defaultClaimMinIdle     = 5 * time.Minute
	defaultDeadLetterSuffix = ":dead"
	busyGroupPrefix         = "BUSYGROUP"
	noGroupPrefix           = "NOGROUP"
)

// Config configures a Client.
type Config struct {
	Address  string
	Password string
	DB       int

	// Prefix namespaces stream keys as "<Prefix>:<queue>".
	Prefix string
	// Group is the consumer group every Consume call joins.
	Group string
	// ConsumerID names this process inside the group. Defaults to hostname plus a random suffix.
	ConsumerID       string
	BlockTimeout     time.Duration
	ClaimMinIdle     time.Duration
	DeadLetterSuffix string
}

func (c *Config) setDefaults() {
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
	if c.Group == "" {
		c.Group = defaultGroup
	}
	if c.ConsumerID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "ingestor"
		}
		c.ConsumerID = host + "-" + uuid.NewString()[:8]
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = defaultBlockTimeout
	}
	if c.ClaimMinIdle <= 0 {
		c.ClaimMinIdle = defaultClaimMinIdle
	}
	if c.DeadLetterSuffix == "" {
		c.DeadLetterSuffix = defaultDeadLetterSuffix
	}
}

// Client is a queue connection owned by the application lifecycle.
type Client struct {
	cfg Config
	log logger.Logger

	mu  sync.RWMutex
	rdb *redis.Client

	declared  sync.Map
	consumers atomic.Int64
}

// NewClient creates an unconnected Client.
func NewClient(cfg Config, log logger.Logger) *Client {
	cfg.setDefaults()
	return &Client{cfg: cfg, log: log}
}

// NewClientFromRedis wraps an existing connection. Connect becomes a no-op.
func NewClientFromRedis(rdb *redis.Client, cfg Config, log logger.Logger) *Client {
	c := NewClient(cfg, log)
	c.rdb = rdb
	return c
}

// Connect opens the broker connection. Calling it again once connected does nothing.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rdb != nil {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     c.cfg.Address,
		Password: c.cfg.Password,
		DB:       c.cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return &ConnectionError{Address: c.cfg.Address, Cause: err}
	}

	c.rdb = rdb
	c.log.Info("Queue broker connected", logger.String("address", c.cfg.Address))
	return nil
}

// Close releases the connection. The client may be connected again afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rdb == nil {
		return nil
	}
	err := c.rdb.Close()
	c.rdb = nil
	c.declared.Clear()
	return err
}

// Ping checks that the broker answers.
func (c *Client) Ping(ctx context.Context) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	return rdb.Ping(ctx).Err()
}

// StreamKey returns the stream holding queueName.
func (c *Client) StreamKey(queueName string) string {
	return c.cfg.Prefix + ":" + queueName
}

// DeadLetterKey returns the stream receiving dead-lettered entries of queueName.
func (c *Client) DeadLetterKey(queueName string) string {
	return c.StreamKey(queueName) + c.cfg.DeadLetterSuffix
}

func (c *Client) conn() (*redis.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.rdb == nil {
		return nil, ErrNotConnected
	}
	return c.rdb, nil
}

// declare creates the stream and consumer group once per queue. Stream entries survive a
// broker restart as far as the Redis persistence settings allow.
func (c *Client) declare(ctx context.Context, rdb *redis.Client, queueName string) error {
	if _, ok := c.declared.Load(queueName); ok {
		return nil
	}

	err := rdb.XGroupCreateMkStream(ctx, c.StreamKey(queueName), c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), busyGroupPrefix) {
		return fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	c.declared.Store(queueName, struct{}{})
	return nil
}

func (c *Client) nextConsumerName() string {
	return fmt.Sprintf("%s-%d", c.cfg.ConsumerID, c.consumers.Add(1))
}
