package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/goharvest/internal/circuitbreaker"
	"github.com/jonesrussell/goharvest/internal/detector"
	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/egress"
	"github.com/jonesrussell/goharvest/internal/events"
)

// timeoutReason is the canonical error reason for executions cancelled
// by their timeout.
const timeoutReason = "timeout"

// Run starts the scheduling loop and blocks until ctx is cancelled.
// The loop is the only goroutine that touches the queue and the
// active set.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer o.running.Store(false)

	o.runCtx = ctx

	if o.store != nil {
		o.restoreState(ctx)
	}

	if err := o.pool.Start(); err != nil {
		return fmt.Errorf("starting worker pool: %w", err)
	}
	o.health.Start(ctx)

	go o.publishLoop(ctx)

	if o.cfg.GeneratorEnabled {
		if err := o.startGenerator(); err != nil {
			return fmt.Errorf("starting tier generator: %w", err)
		}
	}

	o.log.Info("orchestrator started",
		"sources", len(o.sources),
		"max_concurrent", o.cfg.MaxConcurrent,
		"queue_capacity", o.cfg.QueueCapacity,
		"generator", o.cfg.GeneratorEnabled,
	)

	scheduleTicker := time.NewTicker(o.cfg.ScheduleInterval)
	defer scheduleTicker.Stop()
	monitorTicker := time.NewTicker(o.cfg.MonitorInterval)
	defer monitorTicker.Stop()
	checkpointTicker := time.NewTicker(o.cfg.CheckpointInterval)
	defer checkpointTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return o.shutdown()
		case job := <-o.submissions:
			o.enqueue(job)
		case done := <-o.completions:
			o.handleCompletion(done)
		case <-scheduleTicker.C:
			o.dispatchReady(ctx, time.Now())
		case <-monitorTicker.C:
			o.expireOverdue(time.Now())
			o.trimHistory()
		case <-checkpointTicker.C:
			o.checkpoint(ctx)
		}
	}
}

// shutdown drains the worker pool, folds in completions that arrived
// while draining, and writes a final checkpoint.
func (o *Orchestrator) shutdown() error {
	o.log.Info("orchestrator draining",
		"queued", o.queue.Len(),
		"active", len(o.active),
	)

	if o.cron != nil {
		<-o.cron.Stop().Done()
		o.cron = nil
	}

	o.health.Stop()

	drainCtx, cancel := context.WithTimeout(context.Background(), o.drainTimeout)
	defer cancel()
	if err := o.pool.Stop(drainCtx); err != nil {
		o.log.Warn("worker pool stop", "error", err.Error())
	}

drain:
	for {
		select {
		case done := <-o.completions:
			o.handleCompletion(done)
		default:
			break drain
		}
	}

	if orphaned := len(o.active); orphaned > 0 {
		o.log.Warn("abandoning active jobs on shutdown", "count", orphaned)
	}

	o.checkpoint(drainCtx)
	o.log.Info("orchestrator stopped",
		"completed", o.metrics.GetCompletedCount(),
		"failed", o.metrics.GetFailedCount(),
	)
	return nil
}

// enqueue inserts a submitted job into the priority queue.
func (o *Orchestrator) enqueue(job *domain.Job) {
	o.queue.Push(job)
	o.queueDepth.Store(int64(o.queue.Len()))
	if o.collectors != nil {
		o.collectors.SetQueueDepth(o.queue.Len())
	}
}

// dispatchReady recomputes priorities, sorts the queue and launches
// every job that clears the global cap, the per-source cap, the
// breaker and egress availability. Jobs that do not clear stay queued.
func (o *Orchestrator) dispatchReady(ctx context.Context, now time.Time) {
	if o.queue.Len() == 0 {
		return
	}

	for _, job := range o.queue.items {
		failures := 0
		if profile, ok := o.sources[job.Source]; ok {
			failures = profile.ConsecutiveFailures
		}
		job.Priority = computePriority(job, failures, now)
	}
	o.queue.Sort()

	limit := o.effectiveLimit()

	remaining := o.queue.items[:0]
	for _, job := range o.queue.items {
		if len(o.active) >= limit || !job.Ready(now) || !o.canExecuteSource(job) {
			remaining = append(remaining, job)
			continue
		}
		if err := o.launch(ctx, job, now); err != nil {
			remaining = append(remaining, job)
		}
	}
	o.queue.items = remaining
	o.queueDepth.Store(int64(o.queue.Len()))
	if o.collectors != nil {
		o.collectors.SetQueueDepth(o.queue.Len())
	}
}

// canExecuteSource applies the per-source gates: breaker verdict, a
// single in-flight probe while half-open, and the source concurrency
// cap.
func (o *Orchestrator) canExecuteSource(job *domain.Job) bool {
	breaker := o.breakers.Get(job.Source)
	if !breaker.CanExecute() {
		return false
	}
	if breaker.State() == circuitbreaker.StateHalfOpen && o.sourceActive[job.Source] > 0 {
		return false
	}

	profile, ok := o.sources[job.Source]
	if !ok {
		return false
	}
	maxConcurrent := profile.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return o.sourceActive[job.Source] < maxConcurrent
}

// launch acquires an egress point, marks the job running and hands it
// to the worker pool. A non-nil error keeps the job queued.
func (o *Orchestrator) launch(ctx context.Context, job *domain.Job, now time.Time) error {
	if err := domain.ValidateStatusTransition(job.Status, domain.JobRunning); err != nil {
		o.log.Error("dropping job in invalid state",
			"job_id", job.ID,
			"status", string(job.Status),
			"error", err.Error(),
		)
		o.releaseGenerated(job)
		return nil
	}

	point, err := o.egress.GetOptimalEgress(job.Source, job.Category, job.Priority)
	if err != nil {
		if errors.Is(err, egress.ErrNoEgressAvailable) {
			o.log.Debug("no egress available, keeping job queued",
				"job_id", job.ID,
				"source", job.Source,
			)
		} else {
			o.log.Warn("egress selection failed",
				"job_id", job.ID,
				"source", job.Source,
				"error", err.Error(),
			)
		}
		return err
	}

	prevStatus := job.Status
	start := now
	job.Status = domain.JobRunning
	job.StartedAt = &start
	job.EgressID = point.ID

	o.active[job.ID] = job
	o.activeCount.Store(int64(len(o.active)))
	o.mu.Lock()
	o.sourceActive[job.Source]++
	o.mu.Unlock()

	ok, err := o.pool.TrySubmit(ctx, job)
	if err != nil || !ok {
		o.removeActive(job)
		job.Status = prevStatus
		job.StartedAt = nil
		job.EgressID = ""
		if relErr := o.egress.ReleaseSlot(point.ID); relErr != nil {
			o.log.Warn("releasing egress slot failed", "egress_id", point.ID, "error", relErr.Error())
		}
		if err == nil {
			err = errors.New("no worker available")
		}
		o.log.Error("dispatch failed",
			"job_id", job.ID,
			"source", job.Source,
			"error", err.Error(),
		)
		return err
	}

	if o.collectors != nil {
		o.collectors.RecordJobStarted()
		o.collectors.RecordEgressSelected(point.ID)
	}
	o.log.Info("job dispatched",
		"job_id", job.ID,
		"source", job.Source,
		"category", job.Category,
		"priority", job.Priority,
		"egress_id", point.ID,
		"retry_count", job.RetryCount,
	)
	return nil
}

// executeJob is the worker pool handler. It runs on a worker
// goroutine with the job timeout already applied to ctx, performs the
// fetch, analyzes suspicious payloads and reports the completion back
// to the loop.
func (o *Orchestrator) executeJob(ctx context.Context, job *domain.Job) error {
	o.publishEvent(events.EventStarted, job, false)

	var point *egress.Point
	if job.EgressID != "" {
		if p, ok := o.egress.Get(job.EgressID); ok {
			point = p
		}
	}

	result, err := o.fetcher.Fetch(ctx, job, point)
	if err != nil {
		result = &domain.FetchResult{Success: false, ErrorReason: err.Error()}
	}
	if result == nil {
		result = &domain.FetchResult{Success: false, ErrorReason: "fetcher returned no result"}
	}
	if !result.Success && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.ErrorReason = timeoutReason
	}

	var analysis *detector.PageAnalysis
	if o.shouldAnalyze(result) {
		a := o.detector.Analyze(ctx, string(result.Content), result.Screenshot, job.Source, job.URL)
		analysis = &a
	}

	o.deliver(completion{job: job, result: result, analysis: analysis})

	if !result.Success {
		return errors.New(result.ErrorReason)
	}
	return nil
}

// shouldAnalyze decides whether a fetch payload goes through the
// detector: failures and empty-looking successes do, as long as there
// is markup to inspect.
func (o *Orchestrator) shouldAnalyze(result *domain.FetchResult) bool {
	if len(result.Content) == 0 {
		return false
	}
	return !result.Success || result.ItemsFound == 0
}

// deliver hands a completion to the loop, giving up when the loop is
// shutting down.
func (o *Orchestrator) deliver(done completion) {
	select {
	case o.completions <- done:
	case <-o.runCtx.Done():
		o.log.Debug("completion dropped during shutdown", "job_id", done.job.ID)
	}
}

// effectiveLimit returns the adaptive global concurrency cap: half of
// the configured cap, floor 2, while the recent failure rate is above
// the threshold.
func (o *Orchestrator) effectiveLimit() int {
	limit := o.cfg.MaxConcurrent
	if failureRate(o.recent) > o.cfg.FailureRateThreshold {
		limit = o.cfg.MaxConcurrent / 2
		if limit < minAdaptiveConcurrency {
			limit = minAdaptiveConcurrency
		}
	}

	if limit != o.effectiveCap {
		o.log.Info("adaptive concurrency cap changed",
			"from", o.effectiveCap,
			"to", limit,
			"failure_rate", failureRate(o.recent),
		)
		o.mu.Lock()
		o.effectiveCap = limit
		o.mu.Unlock()
		if o.collectors != nil {
			o.collectors.SetConcurrencyCap(limit)
		}
	}
	return limit
}

// expireOverdue fails active jobs that have exceeded their timeout.
// The worker's own context deadline normally fires first; this is the
// watchdog for executions that never report back.
func (o *Orchestrator) expireOverdue(now time.Time) {
	for id, job := range o.active {
		timeout := job.Timeout
		if timeout <= 0 {
			timeout = domain.DefaultJobTimeout
		}
		if job.StartedAt == nil || now.Sub(*job.StartedAt) <= timeout {
			continue
		}

		o.log.Warn("job exceeded timeout, failing orphaned execution",
			"job_id", id,
			"source", job.Source,
			"timeout", timeout,
		)
		delete(o.active, id)
		o.activeCount.Store(int64(len(o.active)))
		o.mu.Lock()
		if o.sourceActive[job.Source] > 0 {
			o.sourceActive[job.Source]--
		}
		o.mu.Unlock()

		result := &domain.FetchResult{
			Success:     false,
			ErrorReason: timeoutReason,
			Duration:    now.Sub(*job.StartedAt),
		}
		o.handleFailure(job, result, nil, timeoutReason)
	}
}

// removeActive clears a job from the active set and its source
// counter.
func (o *Orchestrator) removeActive(job *domain.Job) {
	delete(o.active, job.ID)
	o.activeCount.Store(int64(len(o.active)))
	o.mu.Lock()
	if o.sourceActive[job.Source] > 0 {
		o.sourceActive[job.Source]--
	}
	o.mu.Unlock()
}

// pushHistory appends a terminal job to the history ring. Callers hold
// o.mu.
func (o *Orchestrator) pushHistory(job *domain.Job) {
	o.history = append(o.history, job)
	if len(o.history) > o.cfg.HistoryLimit {
		o.history = o.history[len(o.history)-o.cfg.HistoryLimit:]
	}
}

// pushRecent appends an outcome to the adaptive failure window.
// Callers hold o.mu.
func (o *Orchestrator) pushRecent(success bool) {
	o.recent = append(o.recent, success)
	if len(o.recent) > o.cfg.FailureWindow {
		o.recent = o.recent[len(o.recent)-o.cfg.FailureWindow:]
	}
}

// trimHistory re-applies the history bound. Push already trims; the
// monitor call keeps the ring bounded even if that ever changes.
func (o *Orchestrator) trimHistory() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.history) > o.cfg.HistoryLimit {
		o.history = o.history[len(o.history)-o.cfg.HistoryLimit:]
	}
}
