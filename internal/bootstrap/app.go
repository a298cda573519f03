// Package bootstrap wires news-ingestor together and owns its lifecycle.
//
// Serve runs in phases:
//   - Phase 1: Config and logger
//   - Phase 2: Database, with connection retry and migrations
//   - Phase 3: Queue, with connection retry
//   - Phase 4: Services (feed extractor, scraper registry, consumer, dispatcher, scheduler)
//   - Phase 5: HTTP server
//   - Phase 6: Run until interrupted, then shut down in reverse order
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/dispatch"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
)

// Options are the command-line inputs every entry point shares.
type Options struct {
	ConfigPath string
	Debug      bool
}

// Serve starts the HTTP API, the queue consumers and, when enabled, the feed scheduler.
// It blocks until ctx ends, SIGINT or SIGTERM arrives, or the server fails.
func Serve(ctx context.Context, opts Options) error {
	return run(ctx, opts, true)
}

// Consume runs only the queue consumers, without the HTTP server or the feed scheduler.
func Consume(ctx context.Context, opts Options) error {
	return run(ctx, opts, false)
}

func run(ctx context.Context, opts Options, withServer bool) error {
	// Phase 1
	deps, err := NewCommandDeps(opts)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() { _ = deps.Logger.Sync() }()

	deps.Logger.Info("Starting news-ingestor",
		logger.String("version", deps.Config.Service.Version),
		logger.Bool("http", withServer),
	)

	// Phase 2
	db, err := SetupDatabase(ctx, deps, true)
	if err != nil {
		return fmt.Errorf("setup database: %w", err)
	}

	// Phase 3
	q, err := SetupQueue(ctx, deps)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("setup queue: %w", err)
	}

	// Phase 4
	services, err := SetupServices(deps, db, q)
	if err != nil {
		_ = q.Close()
		_ = db.Close()
		return fmt.Errorf("setup services: %w", err)
	}

	if !withServer {
		services.Scheduler = nil
	}

	app := &App{
		log:             deps.Logger,
		shutdownTimeout: deps.Config.Service.ShutdownTimeout,
		db:              db,
		queue:           q,
		services:        services,
	}

	// Phase 5
	if withServer {
		app.server = SetupHTTPServer(deps, db, q, services)
	}

	// Phase 6
	return app.RunUntilInterrupt(ctx)
}

// Migrate applies pending schema migrations and returns how many ran.
func Migrate(ctx context.Context, opts Options) (int, error) {
	return withDatabase(ctx, opts, func(db *DatabaseComponents) (int, error) {
		return db.Migrate(ctx)
	})
}

// Rollback reverts the last steps schema migrations and returns how many were reverted.
func Rollback(ctx context.Context, opts Options, steps int) (int, error) {
	return withDatabase(ctx, opts, func(db *DatabaseComponents) (int, error) {
		return db.Rollback(ctx, steps)
	})
}

func withDatabase(ctx context.Context, opts Options, fn func(*DatabaseComponents) (int, error)) (int, error) {
	deps, err := NewCommandDeps(opts)
	if err != nil {
		return 0, fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() { _ = deps.Logger.Sync() }()

	db, err := SetupDatabase(ctx, deps, false)
	if err != nil {
		return 0, fmt.Errorf("setup database: %w", err)
	}
	defer db.Close()

	return fn(db)
}

// ExtractFeed lists the article URLs of feedURL and, when publish is set, enqueues them.
// The queue is only dialled when publishing.
func ExtractFeed(ctx context.Context, opts Options, feedURL string, publish bool) (dispatch.Result, error) {
	deps, err := NewCommandDeps(opts)
	if err != nil {
		return dispatch.Result{}, fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() { _ = deps.Logger.Sync() }()

	extractor := newFeedExtractor(deps)
	if !publish {
		svc := dispatch.NewService(extractor, nil, deps.Config.Queue.Name, nil, deps.Logger)
		return svc.Extract(ctx, feedURL)
	}

	q, err := SetupQueue(ctx, deps)
	if err != nil {
		return dispatch.Result{}, fmt.Errorf("setup queue: %w", err)
	}
	defer q.Close()

	svc := dispatch.NewService(extractor, q, deps.Config.Queue.Name, nil, deps.Logger)
	return svc.Dispatch(ctx, feedURL)
}
