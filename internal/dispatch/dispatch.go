// Package dispatch publishes the article URLs of a feed to the ingest queue.
package dispatch

import (
	"context"
	"fmt"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/metrics"
)

// Extractor lists the article URLs of a feed.
type Extractor interface {
	Extract(ctx context.Context, feedURL string) ([]string, error)
}

// Publisher enqueues one payload.
type Publisher interface {
	Publish(ctx context.Context, queueName, payload string) (string, error)
}

// Result reports one dispatch run.
type Result struct {
	FeedURL   string   `json:"feed_url"`
	URLs      []string `json:"urls"`
	Published int      `json:"published"`
	Failed    int      `json:"failed"`
}

// Service extracts feeds and publishes their URLs.
type Service struct {
	extractor Extractor
	publisher Publisher
	queueName string
	metrics   *metrics.Metrics
	log       logger.Logger
}

// NewService creates a Service publishing to queueName. m may be nil.
func NewService(extractor Extractor, publisher Publisher, queueName string, m *metrics.Metrics, log logger.Logger) *Service {
	return &Service{
		extractor: extractor,
		publisher: publisher,
		queueName: queueName,
		metrics:   m,
		log:       log,
	}
}

// Extract lists the URLs of feedURL without publishing them.
func (s *Service) Extract(ctx context.Context, feedURL string) (Result, error) {
	urls, err := s.extractor.Extract(ctx, feedURL)
	if err != nil {
		return Result{FeedURL: feedURL, URLs: []string{}}, err
	}
	return Result{FeedURL: feedURL, URLs: urls}, nil
}

// Dispatch extracts feedURL and publishes one message per URL, in feed order. A failed
// publish is counted and does not stop or undo the others. Extraction errors are returned
// unchanged so callers can classify them.
func (s *Service) Dispatch(ctx context.Context, feedURL string) (Result, error) {
	res, err := s.Extract(ctx, feedURL)
	if err != nil {
		return res, err
	}

	log := s.log.With(logger.String("feed_url", feedURL), logger.String("queue", s.queueName))

	for _, u := range res.URLs {
		if ctx.Err() != nil {
			res.Failed += len(res.URLs) - res.Published - res.Failed
			break
		}
		if _, pubErr := s.publisher.Publish(ctx, s.queueName, u); pubErr != nil {
			res.Failed++
			log.Warn("Failed to publish article url", logger.String("url", u), logger.Error(pubErr))
			continue
		}
		res.Published++
	}

	s.metrics.RecordFeedURLs(res.Published, res.Failed)
	log.Info("Feed dispatched",
		logger.Int("urls", len(res.URLs)),
		logger.Int("published", res.Published),
		logger.Int("failed", res.Failed),
	)

	if ctx.Err() != nil {
		return res, fmt.Errorf("dispatch %s: %w", feedURL, ctx.Err())
	}
	return res, nil
}
