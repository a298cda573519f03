package bootstrap

import (
	"fmt"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/dispatch"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/feed"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/httpclient"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/ingest"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/metrics"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/queue"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/scheduler"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/scraper"
)

// Services are the long-lived components built on the database and queue.
type Services struct {
	Metrics    *metrics.Metrics
	Registry   *scraper.Registry
	Dispatcher *dispatch.Service
	Consumer   *ingest.Consumer
	Runner     *ingest.Runner
	// Scheduler is nil when feed polling is disabled.
	Scheduler *scheduler.Scheduler
}

// SetupServices builds the scraper registry, the ingestion consumer and its workers, the
// feed dispatcher and the feed scheduler.
func SetupServices(deps *CommandDeps, db *DatabaseComponents, q *queue.Client) (*Services, error) {
	cfg := deps.Config
	m := metrics.New()

	registry := scraper.NewRegistry()
	scraper.RegisterABCNews(registry, scraper.NewCollyFetcher(scraper.FetcherConfig{
		Timeout:           cfg.Scraper.Timeout,
		UserAgent:         cfg.Scraper.UserAgent,
		RequestsPerSecond: cfg.Scraper.RequestsPerSecond,
		Burst:             cfg.Scraper.Burst,
	}))

	consumer := ingest.NewConsumer(registry, db.Articles, q, ingest.Config{
		Policy:        cfg.ViabilityPolicy(),
		MaxDeliveries: cfg.Queue.MaxDeliveries,
	}, m, deps.Logger.With(logger.String("component", "consumer")))

	runner := ingest.NewRunner(q, cfg.Queue.Name, cfg.Queue.Workers, consumer, deps.Logger)

	dispatcher := dispatch.NewService(newFeedExtractor(deps), q, cfg.Queue.Name, m,
		deps.Logger.With(logger.String("component", "dispatch")))

	s := &Services{
		Metrics:    m,
		Registry:   registry,
		Dispatcher: dispatcher,
		Consumer:   consumer,
		Runner:     runner,
	}

	if cfg.Feeds.Enabled {
		sched, err := scheduler.New(dispatcher, scheduler.Config{
			Schedule:   cfg.Feeds.Schedule,
			Feeds:      cfg.Feeds.URLs,
			RunOnStart: cfg.Feeds.RunOnStart,
		}, deps.Logger.With(logger.String("component", "scheduler")))
		if err != nil {
			return nil, fmt.Errorf("create feed scheduler: %w", err)
		}
		s.Scheduler = sched
	}

	deps.Logger.Info("Services ready",
		logger.Strings("scrapers", registry.Names()),
		logger.Int("workers", cfg.Queue.Workers),
		logger.String("viability", string(cfg.ViabilityPolicy())),
		logger.Bool("feeds_enabled", cfg.Feeds.Enabled),
	)

	return s, nil
}

func newFeedExtractor(deps *CommandDeps) *feed.Extractor {
	client := httpclient.New(httpclient.Config{
		Timeout:   deps.Config.Scraper.Timeout,
		UserAgent: deps.Config.Scraper.UserAgent,
	})
	return feed.NewExtractor(feed.NewHTTPFetcher(client), deps.Logger.With(logger.String("component", "feed")))
}
