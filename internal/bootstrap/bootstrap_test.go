package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/database"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewCommandDeps_DebugFlagOverridesLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	path := writeConfig(t, "logging:\n  level: warn\n")

	deps, err := NewCommandDeps(Options{ConfigPath: path, Debug: true})
	require.NoError(t, err)

	assert.True(t, deps.Config.Service.Debug)
	assert.Equal(t, "debug", deps.Config.Logging.Level)
	assert.Equal(t, "news_urls", deps.Config.Queue.Name)
}

func TestNewCommandDeps_MissingExplicitConfigFails(t *testing.T) {
	_, err := NewCommandDeps(Options{ConfigPath: filepath.Join(t.TempDir(), "absent.yml")})
	require.Error(t, err)
}

func TestApp_ShutsDownWhenContextEnds(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDRESS", mr.Addr())
	t.Setenv("FEEDS_ENABLED", "")

	path := writeConfig(t, "queue:\n  workers: 2\n  block_timeout: 20ms\n")
	deps, err := NewCommandDeps(Options{ConfigPath: path})
	require.NoError(t, err)

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()
	xdb := sqlx.NewDb(sqlDB, "postgres")
	db := &DatabaseComponents{DB: xdb, Articles: database.NewArticleRepository(xdb), log: deps.Logger}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q, err := SetupQueue(ctx, deps)
	require.NoError(t, err)

	services, err := SetupServices(deps, db, q)
	require.NoError(t, err)
	assert.Nil(t, services.Scheduler)
	assert.Equal(t, []string{"abcnews"}, services.Registry.Names())

	app := &App{
		log:             deps.Logger,
		shutdownTimeout: time.Second,
		db:              db,
		queue:           q,
		services:        services,
	}

	done := make(chan error, 1)
	go func() { done <- app.RunUntilInterrupt(ctx) }()

	require.Eventually(t, services.Runner.IsRunning, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case runErr := <-done:
		require.NoError(t, runErr)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}

	assert.False(t, services.Runner.IsRunning())
	require.ErrorIs(t, q.Ping(context.Background()), queue.ErrNotConnected)
	require.NoError(t, mock.ExpectationsWereMet())
}
