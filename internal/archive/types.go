package archive

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/goharvest/internal/domain"
)

// NewRecord builds an execution record from a job's final state. The
// blocked flag marks attempts the detector classified as blocking.
func NewRecord(job *domain.Job, blocked bool) *domain.ExecutionRecord {
	record := &domain.ExecutionRecord{
		ID:           uuid.New().String(),
		JobID:        job.ID,
		Source:       job.Source,
		Category:     job.Category,
		URL:          job.URL,
		EgressID:     job.EgressID,
		Status:       string(job.Status),
		ItemsFound:   job.ItemsFound,
		DurationMs:   job.Duration.Milliseconds(),
		RetryAttempt: job.RetryCount,
		Blocked:      blocked,
		CompletedAt:  time.Now(),
	}

	if job.StartedAt != nil {
		record.StartedAt = *job.StartedAt
	} else {
		record.StartedAt = record.CompletedAt.Add(-job.Duration)
	}
	if job.CompletedAt != nil {
		record.CompletedAt = *job.CompletedAt
	}
	if job.LastError != "" {
		msg := job.LastError
		record.ErrorMessage = &msg
	}

	return record
}
