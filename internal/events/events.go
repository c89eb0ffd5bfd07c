// Package events publishes job lifecycle events to a Redis Stream so
// external consumers (alerting, dashboards) can follow the control
// plane without coupling to it.
package events

import (
	"time"

	"github.com/jonesrussell/goharvest/internal/domain"
)

// EventType identifies a job lifecycle transition.
type EventType string

const (
	// EventScheduled fires when a job is accepted into the queue.
	EventScheduled EventType = "scheduled"
	// EventStarted fires when a job is dispatched to a worker.
	EventStarted EventType = "started"
	// EventCompleted fires when a job finishes successfully.
	EventCompleted EventType = "completed"
	// EventFailed fires when a job exhausts its retries.
	EventFailed EventType = "failed"
	// EventRetrying fires when a job is re-enqueued with backoff.
	EventRetrying EventType = "retrying"
)

// JobEvent is one lifecycle event on the stream.
type JobEvent struct {
	Type       EventType `json:"type"`
	JobID      string    `json:"job_id"`
	Source     string    `json:"source"`
	Category   string    `json:"category"`
	URL        string    `json:"url"`
	Tier       int       `json:"tier"`
	Priority   int       `json:"priority"`
	RetryCount int       `json:"retry_count"`
	EgressID   string    `json:"egress_id,omitempty"`
	ItemsFound int       `json:"items_found,omitempty"`
	Error      string    `json:"error,omitempty"`
	// Blocked marks failures the detector classified as blocking.
	Blocked   bool      `json:"blocked,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// NewJobEvent builds an event from the job's current state.
func NewJobEvent(eventType EventType, job *domain.Job) *JobEvent {
	return &JobEvent{
		Type:       eventType,
		JobID:      job.ID,
		Source:     job.Source,
		Category:   job.Category,
		URL:        job.URL,
		Tier:       int(job.Tier),
		Priority:   job.Priority,
		RetryCount: job.RetryCount,
		EgressID:   job.EgressID,
		ItemsFound: job.ItemsFound,
		Error:      job.LastError,
		EmittedAt:  time.Now().UTC(),
	}
}

// WithBlocked marks the event as caused by a blocking verdict.
func (e *JobEvent) WithBlocked(blocked bool) *JobEvent {
	e.Blocked = blocked
	return e
}
