package orchestrator

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/goharvest/internal/domain"
)

// startGenerator registers one cron entry per tier that creates jobs
// for the tier's enabled sources at the tier's frequency.
func (o *Orchestrator) startGenerator() error {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))

	tiers := []domain.Tier{domain.TierCritical, domain.TierHigh, domain.TierMedium, domain.TierLow}
	for _, tier := range tiers {
		spec := fmt.Sprintf("@every %s", tier.Frequency())
		if _, err := c.AddFunc(spec, func() { o.generateTierJobs(tier, time.Now()) }); err != nil {
			return fmt.Errorf("registering tier %s generator: %w", tier, err)
		}
	}

	c.Start()
	o.cron = c
	o.log.Info("tier job generator started", "tiers", len(tiers))
	return nil
}

// generateTierJobs creates one generated job per target URL for every
// enabled source of the tier that has not succeeded within the tier
// frequency. Sources with an open breaker or a pending generated
// batch are skipped.
func (o *Orchestrator) generateTierJobs(tier domain.Tier, now time.Time) {
	o.mu.RLock()
	due := make([]*domain.SourceProfile, 0, len(o.sources))
	for _, profile := range o.sources {
		if !profile.Enabled || profile.Tier != tier {
			continue
		}
		if profile.LastSuccess != nil && now.Sub(*profile.LastSuccess) < tier.Frequency() {
			continue
		}
		due = append(due, profile)
	}
	o.mu.RUnlock()

	created := 0
	for _, profile := range due {
		if !o.breakers.CanExecute(profile.Name) {
			o.log.Debug("generator skipping source with open breaker", "source", profile.Name)
			continue
		}
		created += o.scheduleGeneratedBatch(profile)
	}

	if created > 0 {
		o.log.Info("generated tier jobs",
			"tier", tier.String(),
			"sources", len(due),
			"jobs", created,
		)
	}
}

// scheduleGeneratedBatch reserves the (source, category) slot and
// submits one job per target URL. A batch is skipped entirely while
// any job from a previous batch is still pending or running.
func (o *Orchestrator) scheduleGeneratedBatch(profile *domain.SourceProfile) int {
	if len(profile.URLs) == 0 {
		return 0
	}
	key := generatedKey(profile.Name, profile.Category)

	o.mu.Lock()
	if o.generatedRefs[key] > 0 {
		o.mu.Unlock()
		return 0
	}
	o.generatedRefs[key] = len(profile.URLs)
	o.mu.Unlock()

	created := 0
	for _, target := range profile.URLs {
		job := domain.NewJob(profile.Name, profile.Category, target, profile.Tier)
		job.Generated = true
		if profile.Timeout > 0 {
			job.Timeout = profile.Timeout
		}
		if o.submit(job) {
			created++
			continue
		}
		o.releaseGenerated(job)
	}
	return created
}
