// Package cmd implements the command-line interface for goharvest.
// It provides the root command and subcommands for running the
// resilience control plane and inspecting its state.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/goharvest/cmd/diagnose"
	cmdegress "github.com/jonesrussell/goharvest/cmd/egress"
	"github.com/jonesrussell/goharvest/cmd/patterns"
	"github.com/jonesrussell/goharvest/cmd/run"
	cmdsources "github.com/jonesrussell/goharvest/cmd/sources"
	"github.com/jonesrussell/goharvest/internal/config"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// Debug enables debug mode for all commands.
	Debug bool

	rootCmd = &cobra.Command{
		Use:   "goharvest",
		Short: "Adaptive scraping resilience control plane",
		Long: `goharvest schedules harvesting jobs against hostile sources,
selects the best egress point per request, and learns from blocking
failures so they are not repeated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so environment variables are available.
	_ = godotenv.Load()

	// Parse flags early to get the debug flag before creating the
	// logger.
	_ = rootCmd.ParseFlags(os.Args[1:])

	if err := initConfig(); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./config.yaml or ./config/config.yaml)",
	)
	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "enable debug mode")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("goharvest version %s\n", config.DefaultAppVersion)
		},
	})

	rootCmd.AddCommand(run.Command())
	rootCmd.AddCommand(cmdsources.Command())
	rootCmd.AddCommand(cmdegress.Command())
	rootCmd.AddCommand(patterns.Command())
	rootCmd.AddCommand(diagnose.Command())
}

// initConfig reads in the config file and environment variables.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	// Environment variables take precedence over the config file, so
	// enable them before reading anything.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	// The config file is optional; defaults and environment variables
	// cover a bare deployment.
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config file not found: %v (using defaults and environment variables)\n", err)
	}

	if err := bindCommandLineFlags(); err != nil {
		return err
	}
	if err := bindAppEnvVars(); err != nil {
		return err
	}

	setupDevelopmentLogging()

	return nil
}

// bindCommandLineFlags binds command-line flags to viper.
func bindCommandLineFlags() error {
	if err := viper.BindPFlag("app.debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("failed to bind debug flag: %w", err)
	}
	return nil
}

// bindAppEnvVars binds the primary environment knobs to config keys.
func bindAppEnvVars() error {
	bindings := map[string][]string{
		"app.environment":  {"APP_ENV"},
		"app.debug":        {"APP_DEBUG"},
		"logger.level":     {"LOG_LEVEL"},
		"logger.encoding":  {"LOG_FORMAT"},
		"server.api_key":   {"GOHARVEST_API_KEY"},
		"redis.addr":       {"REDIS_ADDR"},
		"redis.password":   {"REDIS_PASSWORD"},
		"archive.host":     {"POSTGRES_HOST"},
		"archive.user":     {"POSTGRES_USER"},
		"archive.password": {"POSTGRES_PASSWORD"},
		"archive.dbname":   {"POSTGRES_DB"},
	}
	for key, envs := range bindings {
		if err := viper.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", envs[0], err)
		}
	}
	return nil
}

// setupDevelopmentLogging switches the logger into development mode
// when requested.
func setupDevelopmentLogging() {
	debugFlag := Debug || viper.GetBool("app.debug")
	if debugFlag {
		viper.Set("logger.level", "debug")
	}
	if viper.GetString("app.environment") == "development" {
		viper.Set("logger.development", true)
		viper.Set("logger.enable_color", true)
		viper.Set("logger.encoding", "console")
	}
	Debug = debugFlag
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("app", map[string]any{
		"name":        config.DefaultAppName,
		"version":     config.DefaultAppVersion,
		"environment": config.DefaultEnvironment,
		"debug":       false,
	})

	viper.SetDefault("logger", map[string]any{
		"level":        "info",
		"development":  false,
		"encoding":     "json",
		"output_paths": []string{"stdout"},
		"enable_color": false,
	})

	viper.SetDefault("server", map[string]any{
		"address":          config.DefaultServerAddress,
		"read_timeout":     config.DefaultReadTimeout.String(),
		"write_timeout":    config.DefaultWriteTimeout.String(),
		"idle_timeout":     config.DefaultIdleTimeout.String(),
		"security_enabled": false,
	})

	viper.SetDefault("orchestrator", map[string]any{
		"max_concurrent":           config.DefaultMaxConcurrent,
		"queue_capacity":           config.DefaultQueueCapacity,
		"schedule_interval":        config.DefaultScheduleInterval.String(),
		"monitor_interval":         config.DefaultMonitorInterval.String(),
		"checkpoint_interval":      config.DefaultCheckpointInterval.String(),
		"backoff_base":             config.DefaultBackoffBase.String(),
		"backoff_cap":              config.DefaultBackoffCap.String(),
		"failure_rate_threshold":   config.DefaultFailureRateThreshold,
		"failure_window":           config.DefaultFailureWindow,
		"history_limit":            config.DefaultHistoryLimit,
		"breaker_threshold":        config.DefaultBreakerThreshold,
		"breaker_recovery_timeout": config.DefaultBreakerRecoveryTimeout.String(),
		"blocking_confidence":      config.DefaultBlockingConfidence,
		"worker_pool_size":         config.DefaultWorkerPoolSize,
		"drain_timeout":            config.DefaultDrainTimeout.String(),
		"generator_enabled":        true,
		"diagnose_on_exhausted":    true,
	})

	viper.SetDefault("egress", map[string]any{
		"success_rate_floor":    config.DefaultSuccessRateFloor,
		"quarantine_threshold":  config.DefaultQuarantineThreshold,
		"session_ttl":           config.DefaultSessionTTL.String(),
		"health_check_interval": config.DefaultHealthCheckInterval.String(),
		"probe_target":          config.DefaultProbeTarget,
	})

	viper.SetDefault("detector", map[string]any{
		"pattern_retention": config.DefaultPatternRetention.String(),
	})

	viper.SetDefault("fetch", map[string]any{
		"user_agent":     config.DefaultUserAgent,
		"timeout":        config.DefaultFetchTimeout.String(),
		"max_body_bytes": config.DefaultMaxBodyBytes,
	})

	viper.SetDefault("redis", map[string]any{
		"addr":   config.DefaultRedisAddr,
		"db":     0,
		"prefix": config.DefaultRedisPrefix,
	})

	viper.SetDefault("events", map[string]any{
		"enabled": false,
		"stream":  config.DefaultEventStream,
		"max_len": config.DefaultEventMaxLen,
	})

	viper.SetDefault("archive", map[string]any{
		"enabled":       false,
		"host":          config.DefaultArchiveHost,
		"port":          config.DefaultArchivePort,
		"user":          config.DefaultArchiveUser,
		"dbname":        config.DefaultArchiveDBName,
		"sslmode":       config.DefaultArchiveSSLMode,
		"fail_silently": true,
		"queue_size":    config.DefaultArchiveQueueSize,
		"retention":     config.DefaultArchiveRetention.String(),
	})
}
