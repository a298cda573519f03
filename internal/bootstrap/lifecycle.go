package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/queue"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/server"
)

const signalChannelBufferSize = 1

// App is a started news-ingestor process.
type App struct {
	log             logger.Logger
	shutdownTimeout time.Duration

	db       *DatabaseComponents
	queue    *queue.Client
	services *Services
	// server is nil for consume-only processes.
	server *server.Server
}

// RunUntilInterrupt starts the workers, scheduler and server, then blocks until ctx ends,
// a signal arrives or the server fails. Shutdown always runs before it returns.
func (a *App) RunUntilInterrupt(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.services.Runner.Start(runCtx)

	if a.services.Scheduler != nil {
		if err := a.services.Scheduler.Start(runCtx); err != nil {
			a.Shutdown(context.WithoutCancel(ctx))
			return fmt.Errorf("start feed scheduler: %w", err)
		}
	}

	var errChan <-chan error
	if a.server != nil {
		errChan = a.server.StartAsync()
	}

	sigChan := make(chan os.Signal, signalChannelBufferSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case serverErr, ok := <-errChan:
		if ok && serverErr != nil {
			a.log.Error("Server error", logger.Error(serverErr))
			runErr = fmt.Errorf("server error: %w", serverErr)
		}
	case sig := <-sigChan:
		a.log.Info("Shutdown signal received", logger.String("signal", sig.String()))
	case <-ctx.Done():
		a.log.Info("Context cancelled, shutting down")
	}

	cancel()
	a.Shutdown(context.WithoutCancel(ctx))
	return runErr
}

// Shutdown stops components in reverse start order: the scheduler so no new URLs are
// published, the workers so in-flight deliveries stay pending, the HTTP server, then the
// queue and database connections.
func (a *App) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, a.shutdownTimeout)
	defer cancel()

	if a.services.Scheduler != nil {
		a.services.Scheduler.Stop()
	}

	a.services.Runner.Stop()

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.log.Error("Failed to stop HTTP server", logger.Error(err))
		}
	}

	if err := a.queue.Close(); err != nil {
		a.log.Error("Failed to close queue", logger.Error(err))
	}

	if err := a.db.Close(); err != nil {
		a.log.Error("Failed to close database", logger.Error(err))
	}

	a.log.Info("news-ingestor stopped")
}
