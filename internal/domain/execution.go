// Package domain provides domain models used across the application.
package domain

import (
	"time"
)

// ExecutionRecord is one archived job execution. The archive writes a
// row per finished attempt so windowed statistics survive beyond the
// orchestrator's in-memory history.
type ExecutionRecord struct {
	ID       string `db:"id"       json:"id"`
	JobID    string `db:"job_id"   json:"job_id"`
	Source   string `db:"source"   json:"source"`
	Category string `db:"category" json:"category"`
	URL      string `db:"url"      json:"url"`

	// EgressID is the egress point the attempt went through, empty
	// when dispatch failed before selection.
	EgressID string `db:"egress_id" json:"egress_id,omitempty"`

	Status       string  `db:"status"        json:"status"`
	ItemsFound   int     `db:"items_found"   json:"items_found"`
	DurationMs   int64   `db:"duration_ms"   json:"duration_ms"`
	RetryAttempt int     `db:"retry_attempt" json:"retry_attempt"`
	ErrorMessage *string `db:"error_message" json:"error_message,omitempty"`

	// Blocked marks attempts the detector classified as blocking with
	// high confidence.
	Blocked bool `db:"blocked" json:"blocked"`

	StartedAt   time.Time `db:"started_at"   json:"started_at"`
	CompletedAt time.Time `db:"completed_at" json:"completed_at"`

	Metadata JSONBMap `db:"metadata" json:"metadata,omitempty"`
}

// Succeeded reports whether the archived attempt completed.
func (r *ExecutionRecord) Succeeded() bool {
	return r.Status == string(JobCompleted)
}

// SourceStats is the archive's per-source aggregate.
type SourceStats struct {
	Source          string     `db:"source"            json:"source"`
	TotalExecutions int64      `db:"total_executions"  json:"total_executions"`
	Completed       int64      `db:"completed"         json:"completed"`
	Failed          int64      `db:"failed"            json:"failed"`
	Blocked         int64      `db:"blocked"           json:"blocked"`
	AvgDurationMs   float64    `db:"avg_duration_ms"   json:"avg_duration_ms"`
	AvgItemsFound   float64    `db:"avg_items_found"   json:"avg_items_found"`
	LastExecutionAt *time.Time `db:"last_execution_at" json:"last_execution_at,omitempty"`
}

// SuccessRate returns completed over total, zero when empty.
func (s *SourceStats) SuccessRate() float64 {
	if s.TotalExecutions == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.TotalExecutions)
}
