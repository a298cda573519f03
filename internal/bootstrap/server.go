package bootstrap

import (
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/api"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/queue"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/server"
)

// SetupHTTPServer builds the API server with database and Redis health checks.
func SetupHTTPServer(deps *CommandDeps, db *DatabaseComponents, q *queue.Client, services *Services) *server.Server {
	svc := deps.Config.Service

	router := api.NewRouter(api.Deps{
		Feeds:     services.Dispatcher,
		Queue:     q,
		QueueName: deps.Config.Queue.Name,
		Metrics:   services.Metrics,
		Database:  db,
		Redis:     q,
	}, deps.Logger)

	return router.NewServer(server.Config{
		Port:            svc.Port,
		Debug:           svc.Debug,
		ShutdownTimeout: svc.ShutdownTimeout,
		ServiceName:     svc.Name,
		ServiceVersion:  svc.Version,
	})
}
