package orchestrator

import (
	"errors"
	"time"
)

const (
	// DefaultMaxConcurrent is the default global concurrency cap.
	DefaultMaxConcurrent = 8

	// DefaultQueueCapacity bounds pending submissions into the loop.
	DefaultQueueCapacity = 1024

	// DefaultScheduleInterval is how often the loop scans the queue.
	DefaultScheduleInterval = time.Second

	// DefaultMonitorInterval is how often active jobs are checked for
	// timeouts.
	DefaultMonitorInterval = 10 * time.Second

	// DefaultCheckpointInterval is how often state is persisted.
	DefaultCheckpointInterval = 5 * time.Minute

	// DefaultBackoffBase is the base retry delay.
	DefaultBackoffBase = 10 * time.Second

	// DefaultBackoffCap is the maximum retry delay.
	DefaultBackoffCap = 300 * time.Second

	// DefaultFailureRateThreshold halves the concurrency cap when the
	// recent failure rate exceeds it.
	DefaultFailureRateThreshold = 0.20

	// DefaultFailureWindow is how many recent outcomes feed the
	// adaptive failure rate.
	DefaultFailureWindow = 50

	// DefaultHistoryLimit bounds the finished-job history ring.
	DefaultHistoryLimit = 1000

	// DefaultBlockingConfidence is the detector probability at which a
	// blocking failure stops consuming the job's retry budget.
	DefaultBlockingConfidence = 0.8

	// minAdaptiveConcurrency is the floor the adaptive cap never goes
	// below.
	minAdaptiveConcurrency = 2
)

// Config holds the scheduling loop settings.
type Config struct {
	// MaxConcurrent is the global concurrency cap before adaptation.
	MaxConcurrent int

	// QueueCapacity bounds pending submissions into the loop.
	QueueCapacity int

	// ScheduleInterval is the queue scan cadence.
	ScheduleInterval time.Duration

	// MonitorInterval is the active-job timeout scan cadence.
	MonitorInterval time.Duration

	// CheckpointInterval is how often state is persisted.
	CheckpointInterval time.Duration

	// BackoffBase is the base retry delay.
	BackoffBase time.Duration

	// BackoffCap is the maximum retry delay.
	BackoffCap time.Duration

	// FailureRateThreshold halves the concurrency cap when the recent
	// failure rate exceeds it.
	FailureRateThreshold float64

	// FailureWindow is how many recent outcomes feed the adaptive
	// failure rate.
	FailureWindow int

	// HistoryLimit bounds the finished-job history ring.
	HistoryLimit int

	// BlockingConfidence is the detector probability at which a
	// blocking failure stops consuming the job's retry budget.
	BlockingConfidence float64

	// GeneratorEnabled turns the tier job generator on.
	GeneratorEnabled bool

	// DiagnoseOnExhausted triggers deep diagnosis when a job exhausts
	// its retries.
	DiagnoseOnExhausted bool
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:        DefaultMaxConcurrent,
		QueueCapacity:        DefaultQueueCapacity,
		ScheduleInterval:     DefaultScheduleInterval,
		MonitorInterval:      DefaultMonitorInterval,
		CheckpointInterval:   DefaultCheckpointInterval,
		BackoffBase:          DefaultBackoffBase,
		BackoffCap:           DefaultBackoffCap,
		FailureRateThreshold: DefaultFailureRateThreshold,
		FailureWindow:        DefaultFailureWindow,
		HistoryLimit:         DefaultHistoryLimit,
		BlockingConfidence:   DefaultBlockingConfidence,
		GeneratorEnabled:     true,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.MaxConcurrent <= 0 {
		return errors.New("max concurrent must be positive")
	}
	if c.QueueCapacity <= 0 {
		return errors.New("queue capacity must be positive")
	}
	if c.ScheduleInterval <= 0 {
		return errors.New("schedule interval must be positive")
	}
	if c.MonitorInterval <= 0 {
		return errors.New("monitor interval must be positive")
	}
	if c.CheckpointInterval <= 0 {
		return errors.New("checkpoint interval must be positive")
	}
	if c.BackoffBase <= 0 {
		return errors.New("backoff base must be positive")
	}
	if c.BackoffCap < c.BackoffBase {
		return errors.New("backoff cap must be at least the backoff base")
	}
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold >= 1 {
		return errors.New("failure rate threshold must be in (0, 1)")
	}
	if c.FailureWindow <= 0 {
		return errors.New("failure window must be positive")
	}
	if c.HistoryLimit <= 0 {
		return errors.New("history limit must be positive")
	}
	if c.BlockingConfidence <= 0 || c.BlockingConfidence > 1 {
		return errors.New("blocking confidence must be in (0, 1]")
	}
	return nil
}
