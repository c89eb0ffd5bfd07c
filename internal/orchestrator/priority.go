package orchestrator

import (
	"math"
	"time"

	"github.com/jonesrussell/goharvest/internal/domain"
)

// Dynamic priority parameters. The wait bonus lets low-tier jobs climb
// past fresher high-tier jobs instead of starving; the failure penalty
// pushes struggling sources to the back of the line.
const (
	maxPriority        = 100
	maxWaitBonus       = 20.0
	waitBonusPerHour   = 10.0
	maxFailurePenalty  = 30.0
	failurePenaltyStep = 5.0
)

// computePriority scores a job from its tier base, how long it has
// been waiting, and the source's consecutive failures. The result is
// clamped to [0, 100]; ties are broken by ScheduledAt at dispatch.
func computePriority(job *domain.Job, consecutiveFailures int, now time.Time) int {
	base := float64(job.Tier.BasePriority())

	waitHours := now.Sub(job.CreatedAt).Hours()
	if waitHours < 0 {
		waitHours = 0
	}
	bonus := math.Min(maxWaitBonus, waitHours*waitBonusPerHour)

	penalty := math.Min(maxFailurePenalty, float64(consecutiveFailures)*failurePenaltyStep)

	priority := int(base - penalty + bonus)
	if priority < 0 {
		return 0
	}
	if priority > maxPriority {
		return maxPriority
	}
	return priority
}

// backoffDelay returns the exponential retry delay for the given
// attempt, capped at limit. Attempt counts from 1.
func backoffDelay(base, limit time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(base) * math.Pow(2, float64(attempt))
	if delay > float64(limit) {
		return limit
	}
	return time.Duration(delay)
}
