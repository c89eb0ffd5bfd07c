package domain

import (
	"fmt"
	"time"
)

// Tier is the priority class of a source. Tier 1 is critical, tier 4
// is low priority. The tier drives both the job's base priority and
// how often the generator creates new jobs for the source.
type Tier int

const (
	TierCritical Tier = 1
	TierHigh     Tier = 2
	TierMedium   Tier = 3
	TierLow      Tier = 4
)

// Base priority scores per tier.
const (
	basePriorityCritical = 90
	basePriorityHigh     = 70
	basePriorityMedium   = 50
	basePriorityLow      = 30
)

// Generation frequencies per tier.
const (
	frequencyCritical = 15 * time.Minute
	frequencyHigh     = time.Hour
	frequencyMedium   = 4 * time.Hour
	frequencyLow      = 24 * time.Hour
)

// ParseTier validates and converts a numeric tier.
func ParseTier(n int) (Tier, error) {
	t := Tier(n)
	if !t.Valid() {
		return 0, fmt.Errorf("invalid tier %d: must be 1-4", n)
	}
	return t, nil
}

// Valid reports whether the tier is within the supported range.
func (t Tier) Valid() bool {
	return t >= TierCritical && t <= TierLow
}

// BasePriority returns the tier's base priority score.
func (t Tier) BasePriority() int {
	switch t {
	case TierCritical:
		return basePriorityCritical
	case TierHigh:
		return basePriorityHigh
	case TierMedium:
		return basePriorityMedium
	case TierLow:
		return basePriorityLow
	default:
		return basePriorityLow
	}
}

// Frequency returns how often the generator schedules jobs for
// sources of this tier.
func (t Tier) Frequency() time.Duration {
	switch t {
	case TierCritical:
		return frequencyCritical
	case TierHigh:
		return frequencyHigh
	case TierMedium:
		return frequencyMedium
	case TierLow:
		return frequencyLow
	default:
		return frequencyLow
	}
}

// String returns a human-readable tier name.
func (t Tier) String() string {
	switch t {
	case TierCritical:
		return "critical"
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}
