package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/jonesrussell/goharvest/internal/circuitbreaker"
	"github.com/jonesrussell/goharvest/internal/metrics"
	"github.com/jonesrussell/goharvest/internal/state"
)

// checkpointTimeout bounds one checkpoint or restore pass.
const checkpointTimeout = 10 * time.Second

// checkpoint persists breaker, egress, pattern and counter state.
// Failures are logged and the loop moves on; the next tick retries.
func (o *Orchestrator) checkpoint(ctx context.Context) {
	if o.store == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, checkpointTimeout)
	defer cancel()

	if err := o.store.Persist(cctx, state.KeyBreakers, o.breakers.Snapshot()); err != nil {
		o.log.Warn("checkpointing breakers failed", "error", err.Error())
	}
	if err := o.egress.SaveTo(cctx, o.store); err != nil {
		o.log.Warn("checkpointing egress pool failed", "error", err.Error())
	}
	if err := o.detector.Patterns().SaveTo(cctx, o.store); err != nil {
		o.log.Warn("checkpointing failure patterns failed", "error", err.Error())
	}
	if err := o.store.Persist(cctx, state.KeyOrchestrator, o.metrics.Snapshot()); err != nil {
		o.log.Warn("checkpointing counters failed", "error", err.Error())
	}
	o.log.Debug("state checkpoint written")
}

// restoreState loads the previous run's checkpoint. Missing keys are
// normal on first boot.
func (o *Orchestrator) restoreState(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, checkpointTimeout)
	defer cancel()

	var breakerSnapshot map[string]circuitbreaker.Stats
	switch err := o.store.Load(cctx, state.KeyBreakers, &breakerSnapshot); {
	case err == nil:
		o.breakers.Restore(breakerSnapshot)
	case !errors.Is(err, state.ErrNotFound):
		o.log.Warn("restoring breakers failed", "error", err.Error())
	}

	if err := o.egress.LoadFrom(cctx, o.store); err != nil && !errors.Is(err, state.ErrNotFound) {
		o.log.Warn("restoring egress pool failed", "error", err.Error())
	}
	if err := o.detector.Patterns().LoadFrom(cctx, o.store); err != nil && !errors.Is(err, state.ErrNotFound) {
		o.log.Warn("restoring failure patterns failed", "error", err.Error())
	}

	var counters metrics.Snapshot
	switch err := o.store.Load(cctx, state.KeyOrchestrator, &counters); {
	case err == nil:
		o.metrics.Restore(counters)
	case !errors.Is(err, state.ErrNotFound):
		o.log.Warn("restoring counters failed", "error", err.Error())
	}

	o.log.Info("state restore pass finished")
}
