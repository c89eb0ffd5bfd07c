// Package egress implements the command-line interface for
// inspecting the egress pool.
package egress

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/goharvest/cmd/common"
	"github.com/jonesrussell/goharvest/internal/egress"
	"github.com/jonesrussell/goharvest/internal/fetch"
	"github.com/jonesrussell/goharvest/internal/state"
)

// Command returns the egress command with its subcommands.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "egress",
		Short: "Inspect the egress pool",
		Long:  `Inspect the configured egress points, their scores and health.`,
	}

	cmd.AddCommand(NewListCommand())
	cmd.AddCommand(NewCheckCommand())

	return cmd
}

// buildManager creates the pool manager from configuration and
// overlays the last checkpointed metrics when Redis is reachable.
func buildManager(ctx context.Context, deps common.CommandDeps) (*egress.Manager, error) {
	cfg := deps.Config

	manager := egress.NewManager(egress.Config{
		SuccessRateFloor:    cfg.Egress.SuccessRateFloor,
		QuarantineThreshold: cfg.Egress.QuarantineThreshold,
		SessionTTL:          cfg.Egress.SessionTTL,
		ProbeTarget:         cfg.Egress.ProbeTarget,
	}, deps.Logger)
	manager.SetProber(fetch.NewProber(fetch.DefaultProbeTimeout, deps.Logger))

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

	store, err := state.New(state.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		deps.Logger.Warn("redis unreachable, showing configured pool without history",
			"error", err.Error(),
		)
		return manager, nil
	}
	defer store.Close()

	if err := manager.LoadFrom(ctx, store); err != nil && !errors.Is(err, state.ErrNotFound) {
		deps.Logger.Warn("loading checkpointed egress metrics failed", "error", err.Error())
	}
	return manager, nil
}
