// Package run implements the command that starts the control plane:
// the scheduling loop, the egress health checker, the pattern
// retention sweep, and the HTTP API server.
package run

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/goharvest/cmd/common"
	"github.com/jonesrussell/goharvest/internal/api"
	"github.com/jonesrussell/goharvest/internal/archive"
	"github.com/jonesrussell/goharvest/internal/circuitbreaker"
	"github.com/jonesrussell/goharvest/internal/config"
	"github.com/jonesrussell/goharvest/internal/detector"
	"github.com/jonesrussell/goharvest/internal/egress"
	"github.com/jonesrussell/goharvest/internal/events"
	"github.com/jonesrussell/goharvest/internal/fetch"
	"github.com/jonesrussell/goharvest/internal/logger"
	"github.com/jonesrussell/goharvest/internal/metrics"
	"github.com/jonesrussell/goharvest/internal/orchestrator"
	"github.com/jonesrussell/goharvest/internal/state"
	"github.com/jonesrussell/goharvest/internal/worker"
)

// patternCleanupInterval is how often old failure patterns are
// retired.
const patternCleanupInterval = time.Hour

// Command returns the run command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the resilience control plane",
		Long: `Start the scheduling loop, the tier job generator, the egress
health checker and the HTTP API server. Blocks until SIGINT or
SIGTERM, then drains gracefully.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return err
			}
			return runControlPlane(cmd.Context(), deps)
		},
	}
}

// runControlPlane wires every component and blocks until shutdown.
func runControlPlane(parent context.Context, deps common.CommandDeps) error {
	cfg := deps.Config
	log := deps.Logger

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := state.New(state.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer store.Close()

	publisher := buildPublisher(cfg, store, log)
	defer publisher.Close()

	arch, err := archive.New(archiveConfig(&cfg.Archive), log)
	if err != nil {
		return fmt.Errorf("opening execution archive: %w", err)
	}
	defer arch.Close()

	registry := prometheus.NewRegistry()
	collectors := metrics.NewCollectors(registry)

	breakers := circuitbreaker.NewRegistry(
		circuitbreaker.Config{
			FailureThreshold: cfg.Orchestrator.BreakerThreshold,
			RecoveryTimeout:  cfg.Orchestrator.BreakerRecoveryTimeout,
		},
		func(source string, from, to circuitbreaker.State) {
			log.Info("circuit breaker state change",
				"source", source,
				"from", from.String(),
				"to", to.String(),
			)
			collectors.SetBreakerState(source, int(to))
			if to == circuitbreaker.StateOpen {
				collectors.RecordBreakerTrip(source)
			}
		},
	)

	manager, err := buildEgressManager(cfg, log)
	if err != nil {
		return err
	}

	det := detector.New(detector.Config{
		ProductSelectors: cfg.ProductSelectors(),
		PatternRetention: cfg.Detector.PatternRetention,
	}, log)
	det.SetMetrics(collectors)

	fetcher := fetch.New(fetch.Config{
		UserAgent:        cfg.Fetch.UserAgent,
		Timeout:          cfg.Fetch.Timeout,
		MaxBodyBytes:     int(cfg.Fetch.MaxBodyBytes),
		ProductSelectors: cfg.ProductSelectors(),
	}, log)

	orch, err := orchestrator.New(orchestratorConfig(&cfg.Orchestrator), orchestrator.Deps{
		Logger:     log,
		Sources:    cfg.SourceProfiles(),
		Breakers:   breakers,
		Egress:     manager,
		Detector:   det,
		Fetcher:    fetcher,
		Collectors: collectors,
		Publisher:  publisher,
		Archive:    arch,
		Store:      store,
		PoolConfig: worker.Config{
			PoolSize:     cfg.Orchestrator.WorkerPoolSize,
			DrainTimeout: cfg.Orchestrator.DrainTimeout,
			JobTimeout:   cfg.Fetch.Timeout,
		},
	})
	if err != nil {
		return fmt.Errorf("building orchestrator: %w", err)
	}

	server := api.NewServer(&cfg.Server, api.Deps{
		Logger:    log,
		Scheduler: orch,
		Egress:    manager,
		Patterns:  det.Patterns(),
		Health:    orch,
		Registry:  registry,
	})

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if runErr := orch.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			errCh <- fmt.Errorf("orchestrator: %w", runErr)
			stop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if srvErr := server.Start(ctx); srvErr != nil {
			errCh <- srvErr
			stop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		healthCheckLoop(ctx, manager, collectors, cfg.Egress.HealthCheckInterval, log)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		maintenanceLoop(ctx, det, arch, cfg.Detector.PatternRetention, log)
	}()

	log.Info("goharvest started",
		"sources", len(cfg.Sources),
		"egress_points", len(cfg.Egress.Points),
		"address", cfg.Server.Address,
	)

	wg.Wait()
	close(errCh)
	return <-errCh
}

// buildPublisher returns the Redis Stream publisher, or a noop when
// event publishing is disabled.
func buildPublisher(cfg *config.Config, store *state.Store, log logger.Interface) events.Publisher {
	if !cfg.Events.Enabled {
		return events.NewNoopPublisher()
	}
	log.Info("job event publishing enabled", "stream", cfg.Events.Stream)
	return events.NewRedisPublisher(store.Client(), events.PublisherConfig{
		Stream: cfg.Events.Stream,
		MaxLen: cfg.Events.MaxLen,
	})
}

// buildEgressManager creates the pool manager and registers the
// configured points.
func buildEgressManager(cfg *config.Config, log logger.Interface) (*egress.Manager, error) {
	manager := egress.NewManager(egress.Config{
		SuccessRateFloor:    cfg.Egress.SuccessRateFloor,
		QuarantineThreshold: cfg.Egress.QuarantineThreshold,
		SessionTTL:          cfg.Egress.SessionTTL,
		ProbeTarget:         cfg.Egress.ProbeTarget,
	}, log)
	manager.SetProber(fetch.NewProber(fetch.DefaultProbeTimeout, log))

	for i := range cfg.Egress.Points {
		pc := &cfg.Egress.Points[i]
		if err := manager.Register(&egress.Point{
			ID:          pc.ID,
			Address:     pc.Address,
			Protocol:    pc.Protocol,
			Geo:         pc.Geo,
			Residential: pc.Residential,
			Capacity:    pc.Capacity,
		}); err != nil {
			return nil, fmt.Errorf("registering egress point %s: %w", pc.ID, err)
		}
	}
	return manager, nil
}

// healthCheckLoop probes the egress pool on the configured cadence.
func healthCheckLoop(
	ctx context.Context,
	manager *egress.Manager,
	collectors *metrics.Collectors,
	interval time.Duration,
	log logger.Interface,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := manager.HealthCheckAll(ctx)
			for _, outcome := range report.Outcomes {
				collectors.SetEgressHealth(outcome.EgressID, outcome.HealthScore)
			}
			collectors.SetQuarantinedCount(report.Quarantined)
			log.Debug("egress health sweep finished",
				"checked", len(report.Outcomes),
				"healthy", report.Healthy,
				"quarantined", report.Quarantined,
			)
		}
	}
}

// maintenanceLoop retires stale failure patterns and old archive rows.
func maintenanceLoop(
	ctx context.Context,
	det *detector.Detector,
	arch *archive.Archive,
	retention time.Duration,
	log logger.Interface,
) {
	ticker := time.NewTicker(patternCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := det.Patterns().CleanupOldPatterns(retention); removed > 0 {
				log.Info("retired stale failure patterns", "count", removed)
			}
			if arch.Enabled() {
				if removed, err := arch.Cleanup(ctx); err != nil {
					log.Warn("archive cleanup failed", "error", err.Error())
				} else if removed > 0 {
					log.Info("archived executions cleaned up", "count", removed)
				}
			}
		}
	}
}

// archiveConfig converts the config section into the archive
// package's config type.
func archiveConfig(c *config.ArchiveConfig) archive.Config {
	return archive.Config{
		Enabled:      c.Enabled,
		Host:         c.Host,
		Port:         c.Port,
		User:         c.User,
		Password:     c.Password,
		DBName:       c.DBName,
		SSLMode:      c.SSLMode,
		FailSilently: c.FailSilently,
		QueueSize:    c.QueueSize,
		Retention:    c.Retention,
	}
}

// orchestratorConfig converts the config section into the
// orchestrator package's config type.
func orchestratorConfig(c *config.OrchestratorConfig) orchestrator.Config {
	return orchestrator.Config{
		MaxConcurrent:        c.MaxConcurrent,
		QueueCapacity:        c.QueueCapacity,
		ScheduleInterval:     c.ScheduleInterval,
		MonitorInterval:      c.MonitorInterval,
		CheckpointInterval:   c.CheckpointInterval,
		BackoffBase:          c.BackoffBase,
		BackoffCap:           c.BackoffCap,
		FailureRateThreshold: c.FailureRateThreshold,
		FailureWindow:        c.FailureWindow,
		HistoryLimit:         c.HistoryLimit,
		BlockingConfidence:   c.BlockingConfidence,
		GeneratorEnabled:     c.GeneratorEnabled,
		DiagnoseOnExhausted:  c.DiagnoseOnExhausted,
	}
}
