package orchestrator

import "errors"

var (
	// ErrUnknownSource is returned when a job names a source that is
	// not configured.
	ErrUnknownSource = errors.New("unknown source")

	// ErrSourceDisabled is returned when a job names a source that is
	// configured but disabled.
	ErrSourceDisabled = errors.New("source disabled")

	// ErrBreakerOpen is returned when the source's circuit breaker
	// denies execution.
	ErrBreakerOpen = errors.New("circuit breaker open")

	// ErrDuplicateJob is returned when a generated job for the same
	// (source, category) pair is already pending or running.
	ErrDuplicateJob = errors.New("duplicate generated job")

	// ErrQueueFull is returned when the submission queue is at
	// capacity.
	ErrQueueFull = errors.New("submission queue full")

	// ErrInvalidJob is returned when a job is missing required fields.
	ErrInvalidJob = errors.New("invalid job")

	// ErrAlreadyRunning is returned when Run is called on an
	// orchestrator whose loop is already active.
	ErrAlreadyRunning = errors.New("orchestrator already running")
)
