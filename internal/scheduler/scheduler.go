// Package scheduler polls the configured feeds on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/dispatch"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
)

const stopTimeout = 30 * time.Second

// Dispatcher publishes the URLs of one feed.
type Dispatcher interface {
	Dispatch(ctx context.Context, feedURL string) (dispatch.Result, error)
}

// Config configures a Scheduler.
type Config struct {
	// Schedule is a five-field cron expression or a descriptor such as @hourly.
	Schedule   string
	Feeds      []string
	RunOnStart bool
}

// Summary reports one polling run over every feed.
type Summary struct {
	Feeds       int
	FailedFeeds int
	Published   int
	Failed      int
}

// Scheduler runs a dispatch of every feed on one schedule. A run that is still going when the
// next tick fires makes that tick a no-op.
type Scheduler struct {
	cron       *cron.Cron
	chain      cron.Chain
	schedule   cron.Schedule
	dispatcher Dispatcher
	cfg        Config
	log        logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	startup sync.WaitGroup
}

// New validates the schedule and builds a stopped Scheduler.
func New(d Dispatcher, cfg Config, log logger.Logger) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Schedule, err)
	}

	cl := cronLogger{log: log}
	c := cron.New(cron.WithParser(parser), cron.WithLogger(cl))

	return &Scheduler{
		cron:       c,
		chain:      cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		schedule:   schedule,
		dispatcher: d,
		cfg:        cfg,
		log:        log,
	}, nil
}

// Start registers the polling job and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	// Ticks and the startup run share one wrapped job and never overlap.
	job := s.chain.Then(cron.FuncJob(func() {
		s.RunOnce(runCtx)
	}))
	s.cron.Schedule(s.schedule, job)
	s.cron.Start()
	s.cancel = cancel
	s.running = true

	s.log.Info("Feed scheduler started",
		logger.String("schedule", s.cfg.Schedule),
		logger.Int("feeds", len(s.cfg.Feeds)),
		logger.Time("next_run", s.schedule.Next(time.Now())),
	)

	if s.cfg.RunOnStart {
		s.startup.Add(1)
		go func() {
			defer s.startup.Done()
			job.Run()
		}()
	}
	return nil
}

// Stop cancels any run in progress and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	select {
	case <-s.cron.Stop().Done():
	case <-time.After(stopTimeout):
		s.log.Warn("Feed scheduler stop timed out")
	}
	s.startup.Wait()
	s.log.Info("Feed scheduler stopped")
}

// RunOnce dispatches every feed in order. A failing feed is logged and the rest still run.
func (s *Scheduler) RunOnce(ctx context.Context) Summary {
	start := time.Now()
	sum := Summary{Feeds: len(s.cfg.Feeds)}

	for _, feedURL := range s.cfg.Feeds {
		if ctx.Err() != nil {
			break
		}

		res, err := s.dispatcher.Dispatch(ctx, feedURL)
		sum.Published += res.Published
		sum.Failed += res.Failed
		if err != nil {
			sum.FailedFeeds++
			s.log.Error("Feed dispatch failed", logger.String("feed_url", feedURL), logger.Error(err))
		}
	}

	s.log.Info("Feed polling run finished",
		logger.Int("feeds", sum.Feeds),
		logger.Int("failed_feeds", sum.FailedFeeds),
		logger.Int("published", sum.Published),
		logger.Int("failed", sum.Failed),
		logger.Duration("duration", time.Since(start)),
	)
	return sum
}

// cronLogger routes cron's own logging into the service logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []any) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logger.Any(key, kv[i+1]))
	}
	return fields
}
