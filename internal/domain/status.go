package domain

import "fmt"

// JobStatus represents a job status in the lifecycle state machine.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobRetrying  JobStatus = "retrying"
)

// ValidateStatusTransition checks if a status transition is valid.
// Returns an error if the transition is not allowed.
func ValidateStatusTransition(from, to JobStatus) error {
	validTransitions := map[JobStatus][]JobStatus{
		JobPending: {
			JobRunning, // Dispatched to the worker pool
			JobFailed,  // Source removed or disabled before dispatch
		},
		JobRunning: {
			JobCompleted, // Successful execution
			JobFailed,    // Execution error, no retries left
			JobRetrying,  // Execution error, retry scheduled with backoff
		},
		JobRetrying: {
			JobRunning, // Backoff elapsed, dispatched again
			JobFailed,  // Source removed or disabled while waiting
		},
		// Terminal states
		JobCompleted: {},
		JobFailed:    {},
	}

	allowedStates, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source status: %s", from)
	}

	for _, allowed := range allowedStates {
		if allowed == to {
			return nil
		}
	}

	return fmt.Errorf("invalid status transition from %s to %s", from, to)
}

// IsTerminal checks if a status is terminal (no further transitions).
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// IsActive checks if a job is actively running.
func (s JobStatus) IsActive() bool {
	return s == JobRunning
}

// IsSchedulable checks if a job can be dispatched for execution.
func (s JobStatus) IsSchedulable() bool {
	return s == JobPending || s == JobRetrying
}
