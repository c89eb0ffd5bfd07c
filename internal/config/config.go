// Package config provides configuration management for the goharvest
// control plane. It loads, validates, and exposes configuration values
// from YAML files and environment variables via viper.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/jonesrussell/goharvest/internal/logger"
)

// Config represents the full application configuration.
type Config struct {
	// App holds application-level settings.
	App AppConfig `mapstructure:"app"`
	// Logger holds logging settings.
	Logger LoggerConfig `mapstructure:"logger"`
	// Server holds the HTTP API server settings.
	Server ServerConfig `mapstructure:"server"`
	// Orchestrator holds scheduling loop settings.
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	// Egress holds egress pool settings and the configured points.
	Egress EgressConfig `mapstructure:"egress"`
	// Detector holds blocking detector settings.
	Detector DetectorConfig `mapstructure:"detector"`
	// Fetch holds fetch collaborator settings.
	Fetch FetchConfig `mapstructure:"fetch"`
	// Redis holds the connection used for state checkpoints and the
	// job event stream.
	Redis RedisConfig `mapstructure:"redis"`
	// Events holds job lifecycle event stream settings.
	Events EventsConfig `mapstructure:"events"`
	// Archive holds the Postgres execution archive settings.
	Archive ArchiveConfig `mapstructure:"archive"`
	// Sources holds the configured source profiles.
	Sources []SourceConfig `mapstructure:"sources"`
}

// AppConfig represents application-level settings.
type AppConfig struct {
	// Name is the name of the application.
	Name string `mapstructure:"name"`
	// Version is the version of the application.
	Version string `mapstructure:"version"`
	// Environment is the deployment environment (development, staging, production).
	Environment string `mapstructure:"environment"`
	// Debug indicates whether debug mode is enabled.
	Debug bool `mapstructure:"debug"`
}

// Validate checks if the application configuration is valid.
func (c *AppConfig) Validate() error {
	if c.Name == "" {
		return ErrAppNameRequired
	}
	switch c.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("%w: %s", ErrInvalidEnvironment, c.Environment)
	}
	return nil
}

// LoggerConfig mirrors the logger package configuration so the config
// tree stays the single mapstructure surface.
type LoggerConfig struct {
	Level       string   `mapstructure:"level"`
	Development bool     `mapstructure:"development"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
	EnableColor bool     `mapstructure:"enable_color"`
}

// Logger converts the section into the logger package's config type.
func (c *LoggerConfig) Logger() *logger.Config {
	return &logger.Config{
		Level:       logger.Level(c.Level),
		Development: c.Development,
		Encoding:    c.Encoding,
		OutputPaths: c.OutputPaths,
		EnableColor: c.EnableColor,
	}
}

// Load builds the configuration from the global viper instance,
// applies defaults for anything unset, and validates the result.
// Viper must already have its config file and environment bindings
// initialized (the root command does this).
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// New returns a configuration with every section at its default
// values and no sources. Intended for tests and programmatic use.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values in every section.
func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = DefaultAppName
	}
	if c.App.Version == "" {
		c.App.Version = DefaultAppVersion
	}
	if c.App.Environment == "" {
		c.App.Environment = DefaultEnvironment
	}
	if c.Logger.Level == "" {
		c.Logger.Level = string(logger.DefaultLevel)
	}
	if c.Logger.Encoding == "" {
		c.Logger.Encoding = logger.DefaultEncoding
	}
	if len(c.Logger.OutputPaths) == 0 {
		c.Logger.OutputPaths = logger.DefaultOutputPaths
	}
	c.Server.applyDefaults()
	c.Orchestrator.applyDefaults()
	c.Egress.applyDefaults()
	c.Detector.applyDefaults()
	c.Fetch.applyDefaults()
	c.Redis.applyDefaults()
	c.Events.applyDefaults()
	c.Archive.applyDefaults()
	for i := range c.Sources {
		c.Sources[i].applyDefaults()
	}
}

// Validate validates every configuration section.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Orchestrator.Validate(); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	if err := c.Egress.Validate(); err != nil {
		return fmt.Errorf("egress: %w", err)
	}
	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if err := c.Fetch.Validate(); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	if err := c.Archive.Validate(); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if err := c.ValidateSources(); err != nil {
		return fmt.Errorf("sources: %w", err)
	}
	return nil
}
