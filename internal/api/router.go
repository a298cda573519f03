// Package api exposes the feed dispatch and queue inspection endpoints.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/dispatch"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/metrics"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/queue"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/server"
)

const healthCheckTimeout = 2 * time.Second

// FeedService extracts feeds and optionally publishes their URLs.
type FeedService interface {
	Extract(ctx context.Context, feedURL string) (dispatch.Result, error)
	Dispatch(ctx context.Context, feedURL string) (dispatch.Result, error)
}

// QueueInspector reads queue counters.
type QueueInspector interface {
	Stats(ctx context.Context, queueName string) (queue.Stats, error)
	DeadLetters(ctx context.Context, queueName string, limit int64) ([]queue.DeadLetter, error)
}

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the API needs.
type Deps struct {
	Feeds     FeedService
	Queue     QueueInspector
	QueueName string
	Metrics   *metrics.Metrics
	Database  Pinger
	Redis     Pinger
}

// Router holds the API dependencies.
type Router struct {
	deps Deps
	log  logger.Logger
}

// NewRouter creates a Router.
func NewRouter(deps Deps, log logger.Logger) *Router {
	return &Router{deps: deps, log: log}
}

// NewServer builds the HTTP server with health checks and the API routes.
func (r *Router) NewServer(cfg server.Config) *server.Server {
	b := server.NewBuilder(cfg.ServiceName, cfg.Port).
		WithConfig(cfg).
		WithLogger(r.log).
		WithRoutes(r.SetupRoutes)

	if r.deps.Database != nil {
		b.WithDatabaseHealthCheck(withTimeout(r.deps.Database.Ping))
	}
	if r.deps.Redis != nil {
		b.WithRedisHealthCheck(withTimeout(r.deps.Redis.Ping))
	}

	return b.Build()
}

// SetupRoutes registers the API and metrics routes on router.
func (r *Router) SetupRoutes(router *gin.Engine) {
	if r.deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(r.deps.Metrics.Handler()))
	}

	v1 := router.Group("/api/v1")

	feeds := v1.Group("/feeds")
	feeds.POST("/extract", r.extractFeed)

	q := v1.Group("/queue")
	q.GET("/stats", r.queueStats)
	q.GET("/dead-letters", r.deadLetters)
}

func withTimeout(ping func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()
		return ping(ctx)
	}
}
