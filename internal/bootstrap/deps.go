package bootstrap

import (
	"fmt"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/config"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
)

// CommandDeps are the config and logger shared by every command.
type CommandDeps struct {
	Config *config.Config
	Logger logger.Logger
}

// NewCommandDeps loads the configuration and builds the logger. --debug forces debug
// logging and gin's debug mode.
func NewCommandDeps(opts Options) (*CommandDeps, error) {
	path := opts.ConfigPath
	if path == "" {
		path = config.GetConfigPath(config.DefaultPath)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if opts.Debug {
		cfg.Service.Debug = true
		cfg.Logging.Level = "debug"
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	return &CommandDeps{
		Config: cfg,
		Logger: log.With(logger.String("service", cfg.Service.Name)),
	}, nil
}
