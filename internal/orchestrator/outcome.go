package orchestrator

import (
	"context"
	"time"

	"github.com/jonesrussell/goharvest/internal/archive"
	"github.com/jonesrussell/goharvest/internal/detector"
	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/events"
)

const (
	// eventQueueSize bounds lifecycle events waiting for the
	// publisher goroutine.
	eventQueueSize = 256

	// publishTimeout bounds one stream write.
	publishTimeout = 5 * time.Second
)

// handleCompletion folds one finished execution back into the loop
// state. Completions for jobs the monitor already expired are dropped
// so an execution is never accounted twice.
func (o *Orchestrator) handleCompletion(done completion) {
	job := done.job
	if _, ok := o.active[job.ID]; !ok {
		o.log.Debug("stale completion dropped", "job_id", job.ID, "source", job.Source)
		return
	}
	o.removeActive(job)

	result := done.result
	job.ItemsFound = result.ItemsFound
	job.Duration = result.Duration

	blocked := done.analysis != nil && done.analysis.Blocked
	if result.Success && !blocked {
		o.handleSuccess(job, result, done.analysis)
		return
	}

	reason := result.ErrorReason
	if reason == "" && blocked {
		reason = blockedReason(done.analysis)
	}
	o.handleFailure(job, result, done.analysis, reason)
}

// handleSuccess finalizes a successful execution.
func (o *Orchestrator) handleSuccess(job *domain.Job, result *domain.FetchResult, analysis *detector.PageAnalysis) {
	now := time.Now()
	if err := o.transition(job, domain.JobCompleted); err != nil {
		return
	}
	job.CompletedAt = &now
	job.LastError = ""

	o.breakers.RecordSuccess(job.Source)
	o.recordEgress(job, true, result, "")

	o.mu.Lock()
	if profile, ok := o.sources[job.Source]; ok {
		profile.RecordOutcome(true, now)
	}
	o.pushRecent(true)
	o.pushHistory(job)
	o.mu.Unlock()

	o.metrics.RecordCompleted(result.ItemsFound, result.Duration)
	if o.collectors != nil {
		o.collectors.RecordJobFinished()
		o.collectors.RecordJobExecuted(string(domain.JobCompleted), job.Source, result.Duration.Seconds())
	}
	o.publishEvent(events.EventCompleted, job, false)
	o.archiveRecord(job, false)
	o.releaseGenerated(job)

	suspicious := analysis != nil && len(analysis.Indicators) > 0
	o.log.Info("job completed",
		"job_id", job.ID,
		"source", job.Source,
		"items", result.ItemsFound,
		"duration", result.Duration,
		"egress_id", job.EgressID,
		"suspicious", suspicious,
	)
}

// handleFailure records a failed execution and either re-enqueues the
// job with backoff or fails it terminally. High-confidence blocking
// verdicts feed the breaker and the egress blocked set without
// consuming the job's retry budget.
func (o *Orchestrator) handleFailure(job *domain.Job, result *domain.FetchResult, analysis *detector.PageAnalysis, reason string) {
	now := time.Now()
	blocked := analysis != nil && analysis.Blocked
	job.LastError = reason

	o.breakers.RecordFailure(job.Source)
	o.recordEgress(job, false, result, reason)
	o.mu.Lock()
	if profile, ok := o.sources[job.Source]; ok {
		profile.RecordOutcome(false, now)
	}
	o.pushRecent(false)
	o.mu.Unlock()

	if reason == timeoutReason {
		o.metrics.RecordTimeout()
		if o.collectors != nil {
			o.collectors.RecordTimeout(job.Source)
		}
	}
	if blocked {
		o.metrics.RecordBlocked()
		if o.collectors != nil {
			o.collectors.RecordBlockingDetected(job.Source)
		}
	}

	bypass := blocked && analysis.Probability >= o.cfg.BlockingConfidence
	if !bypass {
		job.RetryCount++
	}

	if bypass || job.RetryCount < job.MaxRetries {
		o.retryLater(job, blocked, reason, now)
		return
	}

	if err := o.transition(job, domain.JobFailed); err != nil {
		return
	}
	job.CompletedAt = &now

	o.mu.Lock()
	o.pushHistory(job)
	o.mu.Unlock()

	o.metrics.RecordFailed(result.Duration)
	if o.collectors != nil {
		o.collectors.RecordJobFinished()
		o.collectors.RecordJobExecuted(string(domain.JobFailed), job.Source, result.Duration.Seconds())
	}
	o.publishEvent(events.EventFailed, job, blocked)
	o.archiveRecord(job, blocked)
	o.releaseGenerated(job)

	o.log.Error("job failed permanently",
		"job_id", job.ID,
		"source", job.Source,
		"retry_count", job.RetryCount,
		"reason", reason,
		"blocked", blocked,
	)

	if o.cfg.DiagnoseOnExhausted {
		o.diagnoseExhausted(job)
	}
}

// retryLater re-enqueues a failed job with exponential backoff.
func (o *Orchestrator) retryLater(job *domain.Job, blocked bool, reason string, now time.Time) {
	if err := o.transition(job, domain.JobRetrying); err != nil {
		return
	}

	attempt := job.RetryCount
	if attempt < 1 {
		attempt = 1
	}
	delay := backoffDelay(o.cfg.BackoffBase, o.cfg.BackoffCap, attempt)
	job.ScheduledAt = now.Add(delay)

	o.metrics.RecordRetry()
	if o.collectors != nil {
		o.collectors.RecordJobFinished()
		o.collectors.RecordJobExecuted(string(domain.JobRetrying), job.Source, 0)
		o.collectors.RecordRetry(job.Source)
	}
	o.publishEvent(events.EventRetrying, job, blocked)
	o.archiveRecord(job, blocked)

	job.StartedAt = nil
	job.EgressID = ""
	o.enqueue(job)
	o.log.Warn("job failed, retrying",
		"job_id", job.ID,
		"source", job.Source,
		"retry_count", job.RetryCount,
		"delay", delay,
		"reason", reason,
		"blocked", blocked,
	)
}

// transition applies a status change, logging invalid transitions as
// programming errors without advancing the job.
func (o *Orchestrator) transition(job *domain.Job, to domain.JobStatus) error {
	if err := domain.ValidateStatusTransition(job.Status, to); err != nil {
		o.log.Error("invalid status transition",
			"job_id", job.ID,
			"from", string(job.Status),
			"to", string(to),
			"error", err.Error(),
		)
		return err
	}
	job.Status = to
	return nil
}

// recordEgress reports the execution outcome to the egress manager.
func (o *Orchestrator) recordEgress(job *domain.Job, success bool, result *domain.FetchResult, reason string) {
	if job.EgressID == "" {
		return
	}
	err := o.egress.RecordResult(job.EgressID, job.Source, success, result.Duration, reason, result.Bytes)
	if err != nil {
		o.log.Warn("recording egress result failed",
			"egress_id", job.EgressID,
			"source", job.Source,
			"error", err.Error(),
		)
	}
}

// archiveRecord writes the execution to the archive when enabled.
func (o *Orchestrator) archiveRecord(job *domain.Job, blocked bool) {
	if o.archive == nil || !o.archive.Enabled() {
		return
	}
	if err := o.archive.Record(archive.NewRecord(job, blocked)); err != nil {
		o.log.Warn("archiving execution failed", "job_id", job.ID, "error", err.Error())
	}
}

// publishEvent queues a lifecycle event for the publisher goroutine.
// Events are dropped, not blocked on, when the queue is full.
func (o *Orchestrator) publishEvent(eventType events.EventType, job *domain.Job, blocked bool) {
	event := events.NewJobEvent(eventType, job).WithBlocked(blocked)
	select {
	case o.eventQueue <- event:
	default:
		o.log.Debug("event queue full, dropping event",
			"type", string(eventType),
			"job_id", job.ID,
		)
	}
}

// publishLoop drains the event queue onto the stream until ctx is
// cancelled, then flushes whatever is already queued.
func (o *Orchestrator) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case event := <-o.eventQueue:
					o.publish(event)
				default:
					return
				}
			}
		case event := <-o.eventQueue:
			o.publish(event)
		}
	}
}

func (o *Orchestrator) publish(event *events.JobEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := o.publisher.Publish(ctx, event); err != nil {
		o.log.Warn("publishing job event failed",
			"type", string(event.Type),
			"job_id", event.JobID,
			"error", err.Error(),
		)
	}
}

// blockedReason phrases a blocking verdict so the egress manager's
// blocking vocabulary recognizes it.
func blockedReason(analysis *detector.PageAnalysis) string {
	if analysis != nil && len(analysis.Indicators) > 0 {
		return "blocked: " + analysis.Indicators[0]
	}
	return "blocked"
}
