//go:build integration

package database_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/database"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
)

func setupPostgres(t *testing.T) (*sqlx.DB, *database.ArticleRepository) {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("newsarc_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.Connect(ctx, database.Config{DSN: dsn, MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	n, err := database.Migrate(ctx, db, logger.NewNop())
	require.NoError(t, err)
	require.Equal(t, 3, n)

	again, err := database.Migrate(ctx, db, logger.NewNop())
	require.NoError(t, err)
	require.Zero(t, again)

	return db, database.NewArticleRepository(db)
}

func TestArticleRepository_Integration(t *testing.T) {
	_, repo := setupPostgres(t)
	ctx := context.Background()
	draft := sampleDraft()

	first, err := repo.Upsert(ctx, draft)
	require.NoError(t, err)

	second, err := repo.Upsert(ctx, draft)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Title, second.Title)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
	assert.Equal(t, time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC).Unix(), second.CreatedAtUnix)

	n, err := repo.CountByPublisherURL(ctx, draft.PublisherURL)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	t.Run("update refreshes fields", func(t *testing.T) {
		changed := draft
		changed.Title = "Storm weakens"
		changed.CreatedAt = time.Date(2024, 3, 2, 0, 0, 0, 750_000_000, time.UTC)

		updated, upErr := repo.Upsert(ctx, changed)
		require.NoError(t, upErr)
		assert.Equal(t, first.ID, updated.ID)
		assert.Equal(t, "Storm weakens", updated.Title)
		assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC).Unix(), updated.CreatedAtUnix)
	})

	t.Run("create rejects duplicate", func(t *testing.T) {
		_, createErr := repo.Create(ctx, draft)
		require.ErrorIs(t, createErr, database.ErrDuplicateArticle)
	})

	t.Run("concurrent upserts keep one row", func(t *testing.T) {
		racer := draft
		racer.PublisherURL = "https://abcnews.go.com/US/race/story?id=2"

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, upErr := repo.Upsert(ctx, racer)
				errs <- upErr
			}()
		}
		wg.Wait()
		close(errs)

		for upErr := range errs {
			require.NoError(t, upErr)
		}

		count, countErr := repo.CountByPublisherURL(ctx, racer.PublisherURL)
		require.NoError(t, countErr)
		assert.Equal(t, 1, count)
	})
}

func TestMigrate_RollbackAndReapply(t *testing.T) {
	db, repo := setupPostgres(t)
	ctx := context.Background()

	reverted, err := database.Rollback(ctx, db, logger.NewNop(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, reverted)

	// Without the unique index a second plain insert is accepted.
	_, err = repo.Create(ctx, sampleDraft())
	require.NoError(t, err)
	_, err = repo.Create(ctx, sampleDraft())
	require.NoError(t, err)

	// Reapplying collapses the duplicates before recreating the index.
	applied, err := database.Migrate(ctx, db, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	n, err := repo.CountByPublisherURL(ctx, sampleDraft().PublisherURL)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
