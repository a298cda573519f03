package server

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
)

// Builder assembles a Server.
type Builder struct {
	cfg         Config
	log         logger.Logger
	setupRoutes func(*gin.Engine)
	checks      map[string]HealthChecker
}

// NewBuilder starts a builder for serviceName listening on port.
func NewBuilder(serviceName string, port int) *Builder {
	return &Builder{
		cfg:    Config{ServiceName: serviceName, Port: port},
		checks: make(map[string]HealthChecker),
	}
}

// WithConfig replaces the server configuration. Name and port are kept when cfg leaves them empty.
func (b *Builder) WithConfig(cfg Config) *Builder {
	if cfg.ServiceName == "" {
		cfg.ServiceName = b.cfg.ServiceName
	}
	if cfg.Port == 0 {
		cfg.Port = b.cfg.Port
	}
	b.cfg = cfg
	return b
}

func (b *Builder) WithLogger(log logger.Logger) *Builder {
	b.log = log
	return b
}

func (b *Builder) WithDebug(debug bool) *Builder {
	b.cfg.Debug = debug
	return b
}

func (b *Builder) WithVersion(version string) *Builder {
	b.cfg.ServiceVersion = version
	return b
}

// WithHealthCheck adds a named check to /health.
func (b *Builder) WithHealthCheck(name string, checker HealthChecker) *Builder {
	b.checks[name] = checker
	return b
}

// WithDatabaseHealthCheck adds a check that marks the service unhealthy when ping fails.
func (b *Builder) WithDatabaseHealthCheck(ping func(context.Context) error) *Builder {
	return b.WithHealthCheck("database", PingChecker(ping, HealthStatusUnhealthy, "Database"))
}

// WithRedisHealthCheck adds a check that marks the service degraded when ping fails.
func (b *Builder) WithRedisHealthCheck(ping func(context.Context) error) *Builder {
	return b.WithHealthCheck("redis", PingChecker(ping, HealthStatusDegraded, "Redis"))
}

// WithRoutes sets the service route setup.
func (b *Builder) WithRoutes(setup func(*gin.Engine)) *Builder {
	b.setupRoutes = setup
	return b
}

// Build creates the Server with health routes registered ahead of the service routes.
func (b *Builder) Build() *Server {
	if b.log == nil {
		b.log = logger.NewNop()
	}

	cfg := b.cfg
	cfg.SetDefaults()
	checks := b.checks
	setup := b.setupRoutes

	return New(cfg, b.log, func(router *gin.Engine) {
		RegisterHealthRoutes(router, HealthOptions{
			ServiceName:    cfg.ServiceName,
			ServiceVersion: cfg.ServiceVersion,
			Checks:         checks,
		})
		if setup != nil {
			setup(router)
		}
	})
}
