package domain

import (
	"time"
)

// EgressRequirements constrains which egress points a source may use.
type EgressRequirements struct {
	// Residential requires a residential-class egress point.
	Residential bool `json:"residential"`
	// Geo is the preferred geography tag (e.g. "us", "eu").
	Geo string `json:"geo,omitempty"`
	// StrictGeo turns the geography preference into a hard filter.
	StrictGeo bool `json:"strict_geo"`
}

// SourceProfile describes one external site being harvested, plus the
// runtime failure counters the orchestrator maintains for it.
type SourceProfile struct {
	Name          string             `json:"name"`
	Enabled       bool               `json:"enabled"`
	Tier          Tier               `json:"tier"`
	Category      string             `json:"category"`
	URLs          []string           `json:"urls"`
	MaxConcurrent int                `json:"max_concurrent"`
	RateLimit     time.Duration      `json:"rate_limit"`
	Timeout       time.Duration      `json:"timeout"`
	Egress        EgressRequirements `json:"egress"`

	// Runtime counters, written only by the orchestrator's
	// outcome handling.
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
}

// RecordOutcome updates the source's failure counters after a job
// finishes.
func (s *SourceProfile) RecordOutcome(success bool, at time.Time) {
	if success {
		s.ConsecutiveFailures = 0
		t := at
		s.LastSuccess = &t
		return
	}
	s.ConsecutiveFailures++
}
