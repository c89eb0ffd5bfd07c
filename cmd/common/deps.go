// Package common provides shared utilities for command
// implementations.
package common

import (
	"fmt"

	"github.com/jonesrussell/goharvest/internal/config"
	"github.com/jonesrussell/goharvest/internal/logger"
)

// CommandDeps holds the dependencies every command needs. Use this
// instead of context.Value for type-safe dependency injection.
type CommandDeps struct {
	Logger logger.Interface
	Config *config.Config
}

// Validate ensures all required dependencies are present.
func (d CommandDeps) Validate() error {
	if d.Logger == nil {
		return ErrLoggerRequired
	}
	if d.Config == nil {
		return ErrConfigRequired
	}
	return nil
}

// NewCommandDeps loads the configuration from viper and builds the
// logger from it.
func NewCommandDeps() (CommandDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return CommandDeps{}, fmt.Errorf("loading configuration: %w", err)
	}

	log, err := logger.New(cfg.Logger.Logger())
	if err != nil {
		return CommandDeps{}, fmt.Errorf("creating logger: %w", err)
	}

	return CommandDeps{Logger: log, Config: cfg}, nil
}
