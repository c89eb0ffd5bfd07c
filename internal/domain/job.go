// Package domain provides domain models used across the application.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Job represents one harvesting job for a single target URL.
type Job struct {
	ID          string        `json:"id"`
	Source      string        `json:"source"`
	Category    string        `json:"category"`
	URL         string        `json:"url"`
	Tier        Tier          `json:"tier"`
	Priority    int           `json:"priority"`
	Status      JobStatus     `json:"status"`
	RetryCount  int           `json:"retry_count"`
	MaxRetries  int           `json:"max_retries"`
	Timeout     time.Duration `json:"timeout"`
	CreatedAt   time.Time     `json:"created_at"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	EgressID    string        `json:"egress_id,omitempty"`
	ItemsFound  int           `json:"items_found"`
	Duration    time.Duration `json:"duration"`

	// Generated marks jobs created by the tier generator. Generated
	// jobs are deduplicated per (source, category); caller-submitted
	// jobs are not.
	Generated bool `json:"generated,omitempty"`
}

// NewJob creates a pending job for the given source target.
// ScheduledAt defaults to the creation time; the scheduler moves it
// forward when applying retry backoff.
func NewJob(source, category, url string, tier Tier) *Job {
	now := time.Now()
	return &Job{
		ID:          uuid.New().String(),
		Source:      source,
		Category:    category,
		URL:         url,
		Tier:        tier,
		Priority:    tier.BasePriority(),
		Status:      JobPending,
		MaxRetries:  DefaultMaxRetries,
		Timeout:     DefaultJobTimeout,
		CreatedAt:   now,
		ScheduledAt: now,
	}
}

// Ready reports whether the job is due for dispatch at t.
func (j *Job) Ready(t time.Time) bool {
	return j.Status.IsSchedulable() && !j.ScheduledAt.After(t)
}

// WaitTime returns how long the job has been waiting since creation.
func (j *Job) WaitTime(now time.Time) time.Duration {
	return now.Sub(j.CreatedAt)
}

// Default job parameters.
const (
	// DefaultMaxRetries is the retry budget for a job.
	DefaultMaxRetries = 3
	// DefaultJobTimeout bounds a single fetch execution.
	DefaultJobTimeout = 5 * time.Minute
)
