// Package metrics provides metrics collection and reporting for the
// control plane: mutex-guarded counters the orchestrator checkpoints
// and reports, plus Prometheus collectors for scraping.
package metrics

import (
	"sync"
	"time"
)

// Metrics holds the orchestrator's run counters.
type Metrics struct {
	// ScheduledCount is the number of jobs accepted for scheduling.
	ScheduledCount int64
	// RejectedCount is the number of jobs rejected at submission.
	RejectedCount int64
	// CompletedCount is the number of jobs that finished successfully.
	CompletedCount int64
	// FailedCount is the number of jobs that exhausted their retries.
	FailedCount int64
	// RetriedCount is the number of retry re-enqueues.
	RetriedCount int64
	// TimedOutCount is the number of executions cancelled by timeout.
	TimedOutCount int64
	// BlockedCount is the number of executions classified as blocking.
	BlockedCount int64
	// ItemsHarvested is the total items found across completed jobs.
	ItemsHarvested int64
	// FetchDuration is the total time spent in fetch executions.
	FetchDuration time.Duration
	// LastCompletedTime is the time of the last successful completion.
	LastCompletedTime time.Time
	// StartTime is when the metrics collection began.
	StartTime time.Time
	// mu protects concurrent access to metrics.
	mu sync.Mutex
}

// NewMetrics creates a new Metrics instance with default values.
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime: time.Now(),
	}
}

// GetStartTime returns the time when metrics collection began.
func (m *Metrics) GetStartTime() time.Time {
	return m.StartTime
}

// RecordScheduled counts an accepted job.
func (m *Metrics) RecordScheduled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScheduledCount++
}

// RecordRejected counts a job rejected at submission.
func (m *Metrics) RecordRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RejectedCount++
}

// RecordCompleted counts a successful completion.
func (m *Metrics) RecordCompleted(items int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CompletedCount++
	m.ItemsHarvested += int64(items)
	m.FetchDuration += duration
	m.LastCompletedTime = time.Now()
}

// RecordFailed counts a terminal failure.
func (m *Metrics) RecordFailed(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FailedCount++
	m.FetchDuration += duration
}

// RecordRetry counts a retry re-enqueue.
func (m *Metrics) RecordRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RetriedCount++
}

// RecordTimeout counts a timed-out execution.
func (m *Metrics) RecordTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TimedOutCount++
}

// RecordBlocked counts a blocking-classified execution.
func (m *Metrics) RecordBlocked() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BlockedCount++
}

// GetScheduledCount returns the number of accepted jobs.
func (m *Metrics) GetScheduledCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ScheduledCount
}

// GetCompletedCount returns the number of successful completions.
func (m *Metrics) GetCompletedCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CompletedCount
}

// GetFailedCount returns the number of terminal failures.
func (m *Metrics) GetFailedCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FailedCount
}

// GetBlockedCount returns the number of blocking-classified executions.
func (m *Metrics) GetBlockedCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.BlockedCount
}

// Snapshot is the serializable view of the counters, used for
// checkpointing and the stats API.
type Snapshot struct {
	Scheduled         int64         `json:"scheduled"`
	Rejected          int64         `json:"rejected"`
	Completed         int64         `json:"completed"`
	Failed            int64         `json:"failed"`
	Retried           int64         `json:"retried"`
	TimedOut          int64         `json:"timed_out"`
	Blocked           int64         `json:"blocked"`
	ItemsHarvested    int64         `json:"items_harvested"`
	FetchDuration     time.Duration `json:"fetch_duration"`
	LastCompletedTime time.Time     `json:"last_completed_time"`
	StartTime         time.Time     `json:"start_time"`
}

// Snapshot returns a consistent copy of the counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		Scheduled:         m.ScheduledCount,
		Rejected:          m.RejectedCount,
		Completed:         m.CompletedCount,
		Failed:            m.FailedCount,
		Retried:           m.RetriedCount,
		TimedOut:          m.TimedOutCount,
		Blocked:           m.BlockedCount,
		ItemsHarvested:    m.ItemsHarvested,
		FetchDuration:     m.FetchDuration,
		LastCompletedTime: m.LastCompletedTime,
		StartTime:         m.StartTime,
	}
}

// Restore loads counters from a checkpoint snapshot. The start time
// is kept from the snapshot so uptime survives restarts.
func (m *Metrics) Restore(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ScheduledCount = s.Scheduled
	m.RejectedCount = s.Rejected
	m.CompletedCount = s.Completed
	m.FailedCount = s.Failed
	m.RetriedCount = s.Retried
	m.TimedOutCount = s.TimedOut
	m.BlockedCount = s.Blocked
	m.ItemsHarvested = s.ItemsHarvested
	m.FetchDuration = s.FetchDuration
	m.LastCompletedTime = s.LastCompletedTime
	if !s.StartTime.IsZero() {
		m.StartTime = s.StartTime
	}
}

// ResetMetrics resets all counters to their initial values.
func (m *Metrics) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ScheduledCount = 0
	m.RejectedCount = 0
	m.CompletedCount = 0
	m.FailedCount = 0
	m.RetriedCount = 0
	m.TimedOutCount = 0
	m.BlockedCount = 0
	m.ItemsHarvested = 0
	m.FetchDuration = 0
	m.LastCompletedTime = time.Time{}
}
