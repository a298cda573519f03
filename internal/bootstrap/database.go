package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/database"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/retry"
)

// DatabaseComponents holds the connection pool and the article store built on it.
type DatabaseComponents struct {
	DB       *sqlx.DB
	Articles *database.ArticleRepository
	log      logger.Logger
}

// SetupDatabase connects to PostgreSQL, retrying while the server comes up. When migrate
// is set, pending migrations are applied before returning.
func SetupDatabase(ctx context.Context, deps *CommandDeps, migrate bool) (*DatabaseComponents, error) {
	dbCfg := deps.Config.Database
	log := deps.Logger.With(logger.String("component", "database"))

	var db *sqlx.DB
	retryCfg := retry.DefaultConfig()
	retryCfg.OnRetry = func(attempt int, err error, next time.Duration) {
		log.Warn("Database not ready, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("next", next),
			logger.Error(err),
		)
	}

	err := retry.Do(ctx, retryCfg, func(ctx context.Context) error {
		conn, connErr := database.Connect(ctx, database.Config{
			DSN:             dbCfg.DSN(),
			MaxOpenConns:    dbCfg.MaxOpenConns,
			MaxIdleConns:    dbCfg.MaxIdleConns,
			ConnMaxLifetime: dbCfg.ConnMaxLifetime,
		})
		if connErr != nil {
			return connErr
		}
		db = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s:%d: %w", dbCfg.Host, dbCfg.Port, err)
	}

	log.Info("Connected to database",
		logger.String("host", dbCfg.Host),
		logger.String("name", dbCfg.Name),
	)

	c := &DatabaseComponents{
		DB:       db,
		Articles: database.NewArticleRepository(db),
		log:      log,
	}

	if migrate {
		if _, migrateErr := c.Migrate(ctx); migrateErr != nil {
			_ = db.Close()
			return nil, migrateErr
		}
	}

	return c, nil
}

// Migrate applies pending migrations.
func (c *DatabaseComponents) Migrate(ctx context.Context) (int, error) {
	applied, err := database.Migrate(ctx, c.DB, c.log)
	if err != nil {
		return applied, fmt.Errorf("migrate: %w", err)
	}
	return applied, nil
}

// Rollback reverts the last steps migrations.
func (c *DatabaseComponents) Rollback(ctx context.Context, steps int) (int, error) {
	reverted, err := database.Rollback(ctx, c.DB, c.log, steps)
	if err != nil {
		return reverted, fmt.Errorf("rollback: %w", err)
	}
	return reverted, nil
}

// Ping checks the connection.
func (c *DatabaseComponents) Ping(ctx context.Context) error {
	return c.Articles.Ping(ctx)
}

// Close releases the pool.
func (c *DatabaseComponents) Close() error {
	return c.DB.Close()
}
