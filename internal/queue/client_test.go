package queue_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testQueue = "news_urls"

func newTestClient(t *testing.T, mr *miniredis.Miniredis, claimMinIdle time.Duration) *queue.Client {
	t.Helper()

	c := queue.NewClient(queue.Config{
		Address:      mr.Addr(),
		Prefix:       "test",
		Group:        "ingestors",
		ConsumerID:   "unit",
		BlockTimeout: 20 * time.Millisecond,
		ClaimMinIdle: claimMinIdle,
	}, logger.NewNop())
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// startConsumer runs Consume in the background. When hold is set the handler keeps the
// delivery in flight until the consumer is stopped.
func startConsumer(t *testing.T, c *queue.Client, hold bool) (<-chan *queue.Delivery, func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan *queue.Delivery, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.Consume(ctx, testQueue, func(hctx context.Context, d *queue.Delivery) {
			out <- d
			if hold {
				<-hctx.Done()
			}
		})
	}()

	stop := func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not stop")
		}
	}
	return out, stop
}

func receive(t *testing.T, ch <-chan *queue.Delivery) *queue.Delivery {
	t.Helper()

	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery received")
		return nil
	}
}

func TestConnect_IsIdempotent(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, 0)

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Ping(context.Background()))
}

func TestConnect_FailureIsConnectionError(t *testing.T) {
	t.Parallel()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()

	c := queue.NewClient(queue.Config{Address: addr}, logger.NewNop())
	err := c.Connect(context.Background())

	var connErr *queue.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, addr, connErr.Address)
}

func TestPublish_RequiresConnection(t *testing.T) {
	t.Parallel()

	c := queue.NewClient(queue.Config{Address: "127.0.0.1:1"}, logger.NewNop())
	_, err := c.Publish(context.Background(), testQueue, "https://abcnews.go.com/a")
	require.ErrorIs(t, err, queue.ErrNotConnected)
}

func TestAck_RemovesMessage(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, 0)
	ctx := context.Background()

	_, err := c.Publish(ctx, testQueue, "https://abcnews.go.com/US/story?id=1")
	require.NoError(t, err)

	deliveries, stop := startConsumer(t, c, false)
	d := receive(t, deliveries)
	stop()

	assert.Equal(t, "https://abcnews.go.com/US/story?id=1", d.Payload)
	assert.Equal(t, 1, d.Attempt)
	assert.False(t, d.PublishedAt.IsZero())

	require.NoError(t, c.Ack(ctx, d))
	assert.True(t, d.Settled())
	require.ErrorIs(t, c.Ack(ctx, d), queue.ErrAlreadySettled)

	stats, err := c.Stats(ctx, testQueue)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{Queue: testQueue}, stats)
}

func TestConsume_PreservesPublishOrder(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, 0)
	ctx := context.Background()

	urls := []string{"https://abcnews.go.com/1", "https://abcnews.go.com/2", "https://abcnews.go.com/3"}
	for _, u := range urls {
		_, err := c.Publish(ctx, testQueue, u)
		require.NoError(t, err)
	}

	deliveries, stop := startConsumer(t, c, false)
	defer stop()

	for _, want := range urls {
		d := receive(t, deliveries)
		assert.Equal(t, want, d.Payload)
		require.NoError(t, c.Ack(ctx, d))
	}
}

func TestNack_RequeuesWithIncrementedAttempt(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, 0)
	ctx := context.Background()

	_, err := c.Publish(ctx, testQueue, "https://abcnews.go.com/retry")
	require.NoError(t, err)

	deliveries, stop := startConsumer(t, c, false)
	defer stop()

	first := receive(t, deliveries)
	require.NoError(t, c.Nack(ctx, first, true))

	second := receive(t, deliveries)
	assert.Equal(t, first.Payload, second.Payload)
	assert.Equal(t, 2, second.Attempt)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.PublishedAt.UTC(), second.PublishedAt.UTC())

	require.NoError(t, c.Ack(ctx, second))
}

func TestDeadLetter_MovesMessageAside(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, 0)
	ctx := context.Background()

	_, err := c.Publish(ctx, testQueue, "https://abcnews.go.com/broken")
	require.NoError(t, err)

	deliveries, stop := startConsumer(t, c, false)
	d := receive(t, deliveries)
	stop()

	require.NoError(t, c.DeadLetter(ctx, d, "extract article: malformed json"))

	stats, err := c.Stats(ctx, testQueue)
	require.NoError(t, err)
	assert.Zero(t, stats.Length)
	assert.Zero(t, stats.Pending)
	assert.EqualValues(t, 1, stats.DeadLetters)

	dead, err := c.DeadLetters(ctx, testQueue, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "https://abcnews.go.com/broken", dead[0].Payload)
	assert.Equal(t, d.ID, dead[0].SourceID)
	assert.Equal(t, "extract article: malformed json", dead[0].Reason)
	assert.Equal(t, 1, dead[0].Attempts)
}

func TestNackWithoutRequeue_DeadLetters(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, 0)
	ctx := context.Background()

	_, err := c.Publish(ctx, testQueue, "https://abcnews.go.com/x")
	require.NoError(t, err)

	deliveries, stop := startConsumer(t, c, false)
	d := receive(t, deliveries)
	stop()

	require.NoError(t, c.Nack(ctx, d, false))

	stats, err := c.Stats(ctx, testQueue)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.DeadLetters)
}

func TestShutdown_LeavesInFlightForRedelivery(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, 10*time.Millisecond)
	ctx := context.Background()

	_, err := c.Publish(ctx, testQueue, "https://abcnews.go.com/in-flight")
	require.NoError(t, err)

	deliveries, stop := startConsumer(t, c, true)
	inFlight := receive(t, deliveries)
	stop()

	assert.False(t, inFlight.Settled())
	stats, err := c.Stats(ctx, testQueue)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Pending)

	time.Sleep(30 * time.Millisecond)

	redeliveries, stopAgain := startConsumer(t, c, false)
	defer stopAgain()

	again := receive(t, redeliveries)
	assert.Equal(t, inFlight.ID, again.ID)
	assert.Equal(t, inFlight.Payload, again.Payload)
	assert.Equal(t, 2, again.Attempt)
	require.NoError(t, c.Ack(ctx, again))
}

func TestStats_UnknownQueue(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, 0)

	stats, err := c.Stats(context.Background(), "never_declared")
	require.NoError(t, err)
	assert.Zero(t, stats.Length)
	assert.Zero(t, stats.Pending)
}

func TestConsume_RecoversAfterBrokerDataLoss(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, time.Minute)
	ctx := context.Background()

	_, err := c.Publish(ctx, testQueue, "https://abcnews.go.com/lost")
	require.NoError(t, err)

	mr.FlushAll()

	_, err = c.Publish(ctx, testQueue, "https://abcnews.go.com/after-flush")
	require.NoError(t, err)

	deliveries, stop := startConsumer(t, c, false)
	defer stop()

	d := receive(t, deliveries)
	assert.Equal(t, "https://abcnews.go.com/after-flush", d.Payload)
	require.NoError(t, c.Ack(ctx, d))
}

func TestConsume_ReclaimsWholePendingList(t *testing.T) {
	t.Parallel()

	const total = 60

	mr := miniredis.RunT(t)
	c := newTestClient(t, mr, 10*time.Millisecond)
	ctx := context.Background()

	for i := range total {
		_, err := c.Publish(ctx, testQueue, fmt.Sprintf("https://abcnews.go.com/story-%d", i))
		require.NoError(t, err)
	}

	// A consumer that read everything and then died without settling.
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	streams, err := rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    "ingestors",
		Consumer: "crashed",
		Streams:  []string{c.StreamKey(testQueue), ">"},
		Count:    total,
	}).Result()
	require.NoError(t, err)
	require.Len(t, streams[0].Messages, total)

	time.Sleep(30 * time.Millisecond)

	deliveries, stop := startConsumer(t, c, false)
	defer stop()

	seen := make(map[string]bool, total)
	for range total {
		d := receive(t, deliveries)
		assert.Equal(t, 2, d.Attempt)
		seen[d.ID] = true
		require.NoError(t, c.Ack(ctx, d))
	}
	assert.Len(t, seen, total)

	stats, err := c.Stats(ctx, testQueue)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
}
