package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsDir = "migrations"

// ErrDirty is returned when a previous migration failed halfway and needs manual repair.
var ErrDirty = errors.New("database schema is dirty")

// Migration is one embedded schema version.
type Migration struct {
	Version uint
	Name    string
	HasDown bool
}

// Migrations returns the embedded migrations ordered by version.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFiles, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	byVersion := make(map[uint]*Migration)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		parsed, parseErr := source.Parse(e.Name())
		if parseErr != nil {
			return nil, fmt.Errorf("parse migration %s: %w", e.Name(), parseErr)
		}

		m, ok := byVersion[parsed.Version]
		if !ok {
			m = &Migration{Version: parsed.Version, Name: parsed.Identifier}
			byVersion[parsed.Version] = m
		}
		if parsed.Direction == source.Down {
			m.HasDown = true
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate applies pending migrations and returns how many ran. golang-migrate holds a
// Postgres advisory lock while it runs, so concurrent starts apply each version once.
func Migrate(ctx context.Context, db *sqlx.DB, log logger.Logger) (int, error) {
	return runMigrations(ctx, db, log, func(m *migrate.Migrate) error { return m.Up() })
}

// Rollback reverts the last steps migrations and returns how many were reverted.
func Rollback(ctx context.Context, db *sqlx.DB, log logger.Logger, steps int) (int, error) {
	if steps <= 0 {
		return 0, fmt.Errorf("rollback steps must be positive, got %d", steps)
	}
	return runMigrations(ctx, db, log, func(m *migrate.Migrate) error { return m.Steps(-steps) })
}

func runMigrations(ctx context.Context, db *sqlx.DB, log logger.Logger, step func(*migrate.Migrate) error) (int, error) {
	// A dedicated connection keeps m.Close from closing the shared pool.
	conn, err := db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire migration connection: %w", err)
	}

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		_ = conn.Close()
		return 0, fmt.Errorf("create migration driver: %w", err)
	}

	src, err := iofs.New(migrationFiles, migrationsDir)
	if err != nil {
		_ = driver.Close()
		return 0, fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = src.Close()
		_ = driver.Close()
		return 0, fmt.Errorf("create migrator: %w", err)
	}
	m.Log = migrateLogger{log: log}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warn("Failed to close migrator", logger.Any("source_error", srcErr), logger.Any("database_error", dbErr))
		}
	}()

	before, err := version(m)
	if err != nil {
		return 0, err
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-stop:
		}
	}()

	if err = step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("run migrations: %w", err)
	}

	after, err := version(m)
	if err != nil {
		return 0, err
	}

	n, err := countBetween(before, after)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info("Migrations applied",
			logger.Int("count", n),
			logger.Int64("from_version", int64(before)),
			logger.Int64("to_version", int64(after)),
		)
	}
	return n, nil
}

// version returns the applied schema version, zero when nothing has been applied.
func version(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("read schema version: %w", err)
	case dirty:
		return v, fmt.Errorf("%w at version %d", ErrDirty, v)
	}
	return v, nil
}

// countBetween counts embedded versions in (low, high], whichever way the schema moved.
func countBetween(a, b uint) (int, error) {
	low, high := min(a, b), max(a, b)

	migrations, err := Migrations()
	if err != nil {
		return 0, err
	}

	n := 0
	for _, m := range migrations {
		if m.Version > low && m.Version <= high {
			n++
		}
	}
	return n, nil
}

type migrateLogger struct {
	log logger.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (migrateLogger) Verbose() bool { return false }
