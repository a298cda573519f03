// Package ingest turns queued article URLs into stored articles.
//
// Each delivery moves through dispatch, scrape, validate and store, and is settled exactly once:
// acked when it is done or can never succeed, requeued when the failure is transient, and
// dead-lettered once it has used up its deliveries. A delivery whose context ends mid-handling
// is left unsettled so the queue hands it out again.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/metrics"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/queue"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/scraper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxDeliveries = 5
	tracerName           = "news-ingestor/ingest"
)

// Outcome is the terminal state of one delivery.
type Outcome string

const (
	OutcomeStored           Outcome = "stored"
	OutcomeSkipped          Outcome = "skipped"
	OutcomeUnknownPublisher Outcome = "unknown_publisher"
	OutcomeRequeued         Outcome = "requeued"
	OutcomeDeadLettered     Outcome = "dead_lettered"
	// OutcomeAbandoned means shutdown interrupted handling and the delivery stays pending.
	OutcomeAbandoned Outcome = "abandoned"
	// OutcomeSettleFailed means the queue rejected the ack or nack. The delivery stays pending.
	OutcomeSettleFailed Outcome = "settle_failed"
)

// Resolver picks the scraper for a URL.
type Resolver interface {
	Resolve(rawURL string) (scraper.Registration, error)
}

// ArticleStore persists drafts keyed by publisher URL.
type ArticleStore interface {
	Upsert(ctx context.Context, draft domain.ArticleDraft) (*domain.Article, error)
}

// Acknowledger settles deliveries.
type Acknowledger interface {
	Ack(ctx context.Context, d *queue.Delivery) error
	Nack(ctx context.Context, d *queue.Delivery, requeue bool) error
	DeadLetter(ctx context.Context, d *queue.Delivery, reason string) error
}

// Config tunes the consumer.
type Config struct {
	Policy domain.ViabilityPolicy
	// MaxDeliveries is the attempt on which a transient failure is dead-lettered instead of requeued.
	MaxDeliveries int
}

// Consumer handles deliveries from the article URL queue.
type Consumer struct {
	resolver Resolver
	store    ArticleStore
	acker    Acknowledger
	cfg      Config
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	log      logger.Logger
}

// NewConsumer creates a Consumer. m may be nil.
func NewConsumer(
	resolver Resolver,
	store ArticleStore,
	acker Acknowledger,
	cfg Config,
	m *metrics.Metrics,
	log logger.Logger,
) *Consumer {
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = defaultMaxDeliveries
	}
	if cfg.Policy == "" {
		cfg.Policy = domain.PolicyRequireImage
	}

	return &Consumer{
		resolver: resolver,
		store:    store,
		acker:    acker,
		cfg:      cfg,
		metrics:  m,
		tracer:   otel.Tracer(tracerName),
		log:      log,
	}
}

// Handler adapts Handle to queue.Client.Consume.
func (c *Consumer) Handler() queue.Handler {
	return func(ctx context.Context, d *queue.Delivery) {
		c.Handle(ctx, d)
	}
}

// Handle processes one delivery and settles it.
func (c *Consumer) Handle(ctx context.Context, d *queue.Delivery) Outcome {
	articleURL := strings.TrimSpace(d.Payload)
	log := c.log.With(
		logger.String("message_id", d.ID),
		logger.String("url", articleURL),
		logger.Int("attempt", d.Attempt),
	)

	ctx, span := c.tracer.Start(ctx, "ingest.handle",
		trace.WithAttributes(
			attribute.String("message_id", d.ID),
			attribute.String("url", articleURL),
			attribute.Int("attempt", d.Attempt),
		))
	defer span.End()

	outcome := c.safeHandle(logger.WithContext(ctx, log), d, articleURL, log)

	span.SetAttributes(attribute.String("outcome", string(outcome)))
	switch outcome {
	case OutcomeDeadLettered, OutcomeSettleFailed:
		span.SetStatus(codes.Error, string(outcome))
	}
	c.metrics.RecordOutcome(string(outcome))
	return outcome
}

// safeHandle settles a delivery whose pipeline panicked as a failed attempt.
func (c *Consumer) safeHandle(ctx context.Context, d *queue.Delivery, articleURL string, log logger.Logger) (outcome Outcome) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		cause := fmt.Errorf("ingest panicked: %v", r)
		if d.Settled() {
			log.Error("Panic after delivery was settled", logger.Error(cause))
			trace.SpanFromContext(ctx).RecordError(cause)
			outcome = OutcomeSettleFailed
			return
		}
		outcome = c.fail(ctx, d, cause, log)
	}()

	return c.handle(ctx, d, articleURL, log)
}

func (c *Consumer) handle(ctx context.Context, d *queue.Delivery, articleURL string, log logger.Logger) Outcome {
	reg, err := c.resolver.Resolve(articleURL)
	if err != nil {
		log.Warn("Unsupported publisher, dropping message", logger.Error(err))
		return c.ack(ctx, d, OutcomeUnknownPublisher, log)
	}
	log = log.With(logger.String("publisher", reg.Name))

	draft, err := c.scrape(ctx, reg, articleURL)
	if err != nil {
		return c.fail(ctx, d, fmt.Errorf("scrape: %w", err), log)
	}

	if draft == nil {
		draft = &domain.ArticleDraft{}
	}
	if checkErr := c.cfg.Policy.Check(*draft); checkErr != nil {
		log.Info("Skipping article without usable data", logger.String("reason", checkErr.Error()))
		return c.ack(ctx, d, OutcomeSkipped, log)
	}

	article, err := c.store.Upsert(ctx, *draft)
	if err != nil {
		c.metrics.RecordStoreError()
		return c.fail(ctx, d, fmt.Errorf("store: %w", err), log)
	}

	log.Info("Article stored",
		logger.Int64("article_id", article.ID),
		logger.String("title", article.Title),
	)
	return c.ack(ctx, d, OutcomeStored, log)
}

// scrape runs the scraper and turns a panic into an error.
func (c *Consumer) scrape(
	ctx context.Context,
	reg scraper.Registration,
	articleURL string,
) (draft *domain.ArticleDraft, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			draft = nil
			err = fmt.Errorf("scraper %s panicked: %v", reg.Name, r)
		}
		c.metrics.ObserveScrape(reg.Name, time.Since(start))
	}()

	return reg.Scraper.Scrape(ctx, articleURL)
}

// fail requeues a transient failure, or dead-letters it on the last allowed delivery.
func (c *Consumer) fail(ctx context.Context, d *queue.Delivery, cause error, log logger.Logger) Outcome {
	trace.SpanFromContext(ctx).RecordError(cause)

	if ctx.Err() != nil {
		log.Warn("Handling interrupted, leaving message pending", logger.Error(cause))
		return OutcomeAbandoned
	}

	if d.Attempt >= c.cfg.MaxDeliveries {
		log.Error("Giving up on message", logger.Error(cause), logger.Int("max_deliveries", c.cfg.MaxDeliveries))
		if err := c.acker.DeadLetter(ctx, d, cause.Error()); err != nil {
			log.Error("Failed to dead-letter message", logger.Error(err))
			return OutcomeSettleFailed
		}
		return OutcomeDeadLettered
	}

	log.Warn("Transient failure, requeueing", logger.Error(cause))
	if err := c.acker.Nack(ctx, d, true); err != nil {
		log.Error("Failed to requeue message", logger.Error(err))
		return OutcomeSettleFailed
	}
	return OutcomeRequeued
}

func (c *Consumer) ack(ctx context.Context, d *queue.Delivery, outcome Outcome, log logger.Logger) Outcome {
	if err := c.acker.Ack(ctx, d); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Ack interrupted by shutdown, message stays pending")
			return OutcomeAbandoned
		}
		log.Error("Failed to ack message", logger.Error(err))
		return OutcomeSettleFailed
	}
	return outcome
}
