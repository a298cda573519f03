package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
)

// DefaultPath is the config file read when neither --config nor CONFIG_PATH is given.
const DefaultPath = "config.yml"

// Default service configuration values.
const (
	defaultServiceName     = "news-ingestor"
	defaultServiceVersion  = "0.1.0"
	defaultServicePort     = 8070
	defaultShutdownTimeout = 30 * time.Second
)

// Default database configuration values.
const (
	defaultDBHost            = "localhost"
	defaultDBPort            = 5432
	defaultDBUser            = "postgres"
	defaultDBName            = "newsarc"
	defaultDBSSLMode         = "disable"
	defaultDBMaxOpenConns    = 10
	defaultDBMaxIdleConns    = 5
	defaultDBConnMaxLifetime = time.Hour
)

// Default queue configuration values.
const (
	defaultRedisAddress      = "localhost:6379"
	defaultQueueName         = "news_urls"
	defaultStreamPrefix      = "news-ingestor"
	defaultConsumerGroup     = "ingestors"
	defaultWorkers           = 1
	defaultBlockTimeout      = 5 * time.Second
	defaultClaimMinIdle      = 5 * time.Minute
	defaultMaxDeliveries     = 5
	defaultDeadLetterSuffix  = ":dead"
	defaultScraperTimeout    = 20 * time.Second
	defaultScraperUserAgent  = "news-ingestor/0.1 (+https://github.com/jonesrussell/north-cloud)"
	defaultRequestsPerSecond = 2.0
	defaultBurst             = 1
	defaultFeedSchedule      = "*/15 * * * *"
)

// Scraper timeouts are bounded so a slow publisher cannot stall a worker.
const (
	minScraperTimeout = 10 * time.Second
	maxScraperTimeout = 30 * time.Second
)

// Config is the full news-ingestor configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	Scraper  ScraperConfig  `yaml:"scraper"`
	Feeds    FeedsConfig    `yaml:"feeds"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Logging  logger.Config  `yaml:"logging"`
}

// ServiceConfig holds service identity and HTTP settings.
type ServiceConfig struct {
	Name            string        `yaml:"name"`
	Version         string        `yaml:"version"`
	Port            int           `env:"NEWS_INGESTOR_PORT" yaml:"port"`
	Debug           bool          `env:"APP_DEBUG"          yaml:"debug"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `env:"DB_HOST"     yaml:"host"`
	Port            int           `env:"DB_PORT"     yaml:"port"`
	User            string        `env:"DB_USER"     yaml:"user"`
	Password        string        `env:"DB_PASSWORD" yaml:"password"`
	Name            string        `env:"DB_NAME"     yaml:"name"`
	SSLMode         string        `env:"DB_SSLMODE"  yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN renders the settings as a lib/pq connection URL.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + strconv.Itoa(d.Port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": []string{d.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisConfig holds the Redis connection backing the work queue.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
}

// QueueConfig describes the URL dispatch queue and its consumers.
type QueueConfig struct {
	Name             string        `env:"QUEUE_NAME"           yaml:"name"`
	StreamPrefix     string        `yaml:"stream_prefix"`
	ConsumerGroup    string        `yaml:"consumer_group"`
	Workers          int           `env:"QUEUE_WORKERS"        yaml:"workers"`
	BlockTimeout     time.Duration `yaml:"block_timeout"`
	ClaimMinIdle     time.Duration `yaml:"claim_min_idle"`
	MaxDeliveries    int           `env:"QUEUE_MAX_DELIVERIES" yaml:"max_deliveries"`
	DeadLetterSuffix string        `yaml:"dead_letter_suffix"`
}

// ScraperConfig controls how publisher pages are fetched.
type ScraperConfig struct {
	Timeout           time.Duration `env:"SCRAPER_TIMEOUT" yaml:"timeout"`
	UserAgent         string        `yaml:"user_agent"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// FeedsConfig lists feeds polled on a single schedule.
type FeedsConfig struct {
	Enabled    bool     `env:"FEEDS_ENABLED" yaml:"enabled"`
	Schedule   string   `yaml:"schedule"`
	RunOnStart bool     `yaml:"run_on_start"`
	URLs       []string `env:"FEED_URLS"     yaml:"urls"`
}

// IngestConfig controls how drafts are judged before storage.
type IngestConfig struct {
	Viability string `env:"INGEST_VIABILITY" yaml:"viability"`
}

// Load reads path, applies defaults and env overrides, then validates.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path, path == DefaultPath, setDefaults)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return cfg, nil
}

// Validate checks field ranges and required values.
func (c *Config) Validate() error {
	checks := []error{
		validatePort("service.port", c.Service.Port),
		validateRequired("database.host", c.Database.Host),
		validatePort("database.port", c.Database.Port),
		validateRequired("database.name", c.Database.Name),
		validateRequired("redis.address", c.Redis.Address),
		validateRequired("queue.name", c.Queue.Name),
		validateRequired("queue.consumer_group", c.Queue.ConsumerGroup),
		validatePositive("queue.workers", c.Queue.Workers),
		validatePositive("queue.max_deliveries", c.Queue.MaxDeliveries),
		validateOneOf("logging.format", c.Logging.Format, logger.FormatJSON, logger.FormatConsole),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	if c.Scraper.Timeout < minScraperTimeout || c.Scraper.Timeout > maxScraperTimeout {
		return &ValidationError{
			Field:   "scraper.timeout",
			Message: fmt.Sprintf("must be between %s and %s", minScraperTimeout, maxScraperTimeout),
		}
	}

	if c.Feeds.Enabled && c.Feeds.Schedule == "" {
		return &ValidationError{Field: "feeds.schedule", Message: "is required when feeds are enabled"}
	}

	if _, err := domain.ParseViabilityPolicy(c.Ingest.Viability); err != nil {
		return &ValidationError{Field: "ingest.viability", Message: err.Error()}
	}

	return nil
}

// ViabilityPolicy returns the parsed ingest policy. Validate must have passed.
func (c *Config) ViabilityPolicy() domain.ViabilityPolicy {
	p, _ := domain.ParseViabilityPolicy(c.Ingest.Viability)
	return p
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setDatabaseDefaults(&cfg.Database)
	setQueueDefaults(&cfg.Redis, &cfg.Queue)
	setScraperDefaults(&cfg.Scraper)
	if cfg.Feeds.Schedule == "" {
		cfg.Feeds.Schedule = defaultFeedSchedule
	}
	cfg.Logging.SetDefaults()
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
	if s.Port == 0 {
		s.Port = defaultServicePort
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = defaultShutdownTimeout
	}
}

func setDatabaseDefaults(d *DatabaseConfig) {
	if d.Host == "" {
		d.Host = defaultDBHost
	}
	if d.Port == 0 {
		d.Port = defaultDBPort
	}
	if d.User == "" {
		d.User = defaultDBUser
	}
	if d.Name == "" {
		d.Name = defaultDBName
	}
	if d.SSLMode == "" {
		d.SSLMode = defaultDBSSLMode
	}
	if d.MaxOpenConns == 0 {
		d.MaxOpenConns = defaultDBMaxOpenConns
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = defaultDBMaxIdleConns
	}
	if d.ConnMaxLifetime == 0 {
		d.ConnMaxLifetime = defaultDBConnMaxLifetime
	}
}

func setQueueDefaults(r *RedisConfig, q *QueueConfig) {
	if r.Address == "" {
		r.Address = defaultRedisAddress
	}
	if q.Name == "" {
		q.Name = defaultQueueName
	}
	if q.StreamPrefix == "" {
		q.StreamPrefix = defaultStreamPrefix
	}
	if q.ConsumerGroup == "" {
		q.ConsumerGroup = defaultConsumerGroup
	}
	if q.Workers == 0 {
		q.Workers = defaultWorkers
	}
	if q.BlockTimeout == 0 {
		q.BlockTimeout = defaultBlockTimeout
	}
	if q.ClaimMinIdle == 0 {
		q.ClaimMinIdle = defaultClaimMinIdle
	}
	if q.MaxDeliveries == 0 {
		q.MaxDeliveries = defaultMaxDeliveries
	}
	if q.DeadLetterSuffix == "" {
		q.DeadLetterSuffix = defaultDeadLetterSuffix
	}
}

func setScraperDefaults(s *ScraperConfig) {
	if s.Timeout == 0 {
		s.Timeout = defaultScraperTimeout
	}
	if s.UserAgent == "" {
		s.UserAgent = defaultScraperUserAgent
	}
	if s.RequestsPerSecond == 0 {
		s.RequestsPerSecond = defaultRequestsPerSecond
	}
	if s.Burst == 0 {
		s.Burst = defaultBurst
	}
}
