// Package orchestrator implements the control plane's scheduling core:
// a prioritized job queue with per-source concurrency limits, circuit
// breakers on failing sources, adaptive global concurrency, and retry
// backoff. A single loop owns the queue and the active set; fetches
// run on a bounded worker pool and report back over a channel.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/goharvest/internal/archive"
	"github.com/jonesrussell/goharvest/internal/circuitbreaker"
	"github.com/jonesrussell/goharvest/internal/detector"
	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/egress"
	"github.com/jonesrussell/goharvest/internal/events"
	"github.com/jonesrussell/goharvest/internal/logger"
	"github.com/jonesrussell/goharvest/internal/metrics"
	"github.com/jonesrussell/goharvest/internal/state"
	"github.com/jonesrussell/goharvest/internal/worker"
)

// Fetcher executes one job through an egress point. The default
// implementation lives in internal/fetch; tests substitute stubs.
type Fetcher interface {
	Fetch(ctx context.Context, job *domain.Job, point *egress.Point) (*domain.FetchResult, error)
}

// completion carries one finished execution back into the loop.
type completion struct {
	job      *domain.Job
	result   *domain.FetchResult
	analysis *detector.PageAnalysis
}

// Deps are the collaborators the orchestrator composes. Logger,
// Breakers, Egress, Detector and Fetcher are required; Metrics
// defaults to a fresh instance, Publisher to a noop, and Collectors,
// Archive and Store may be nil to disable Prometheus export, the
// execution archive and state checkpointing respectively.
type Deps struct {
	Logger     logger.Interface
	Sources    map[string]*domain.SourceProfile
	Breakers   *circuitbreaker.Registry
	Egress     *egress.Manager
	Detector   *detector.Detector
	Fetcher    Fetcher
	Metrics    *metrics.Metrics
	Collectors *metrics.Collectors
	Publisher  events.Publisher
	Archive    *archive.Archive
	Store      *state.Store
	PoolConfig worker.Config
}

// Orchestrator schedules and supervises harvesting jobs.
type Orchestrator struct {
	cfg Config
	log logger.Interface

	sources    map[string]*domain.SourceProfile
	breakers   *circuitbreaker.Registry
	egress     *egress.Manager
	detector   *detector.Detector
	fetcher    Fetcher
	pool       *worker.Pool
	health     *worker.HealthMonitor
	metrics    *metrics.Metrics
	collectors *metrics.Collectors
	publisher  events.Publisher
	archive    *archive.Archive
	store      *state.Store

	// Loop-owned state. Only Run's goroutine touches these.
	queue  *jobQueue
	active map[string]*domain.Job

	// Shared state guarded by mu. The loop is the sole writer of the
	// source counters, sourceActive, history and the recent window;
	// generatedRefs is also written by Schedule and the generator.
	mu            sync.RWMutex
	sourceActive  map[string]int
	generatedRefs map[string]int
	history       []*domain.Job
	recent        []bool
	effectiveCap  int

	submissions chan *domain.Job
	completions chan completion
	eventQueue  chan *events.JobEvent

	cron         *cron.Cron
	drainTimeout time.Duration

	running     atomic.Bool
	runCtx      context.Context
	queueDepth  atomic.Int64
	activeCount atomic.Int64
}

// New creates an orchestrator from its configuration and
// collaborators.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if deps.Breakers == nil {
		return nil, errors.New("breaker registry cannot be nil")
	}
	if deps.Egress == nil {
		return nil, errors.New("egress manager cannot be nil")
	}
	if deps.Detector == nil {
		return nil, errors.New("detector cannot be nil")
	}
	if deps.Fetcher == nil {
		return nil, errors.New("fetcher cannot be nil")
	}

	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NewNoopPublisher()
	}

	poolCfg := deps.PoolConfig
	if poolCfg.PoolSize <= 0 {
		poolCfg = worker.DefaultConfig()
	}
	// The dispatch loop assumes a worker slot exists whenever the
	// active set is below the concurrency cap.
	if poolCfg.PoolSize < cfg.MaxConcurrent {
		poolCfg.PoolSize = cfg.MaxConcurrent
	}
	if poolCfg.DrainTimeout <= 0 {
		poolCfg.DrainTimeout = worker.DefaultDrainTimeout
	}
	if poolCfg.JobTimeout <= 0 {
		poolCfg.JobTimeout = worker.DefaultJobTimeout
	}
	if poolCfg.HealthCheckInterval <= 0 {
		poolCfg.HealthCheckInterval = worker.DefaultHealthCheckInterval
	}

	sources := make(map[string]*domain.SourceProfile, len(deps.Sources))
	for name, profile := range deps.Sources {
		if profile == nil {
			continue
		}
		sources[name] = profile
		deps.Egress.SetSourceRequirements(name, profile.Egress)
	}

	o := &Orchestrator{
		cfg:           cfg,
		log:           deps.Logger.WithComponent("orchestrator"),
		sources:       sources,
		breakers:      deps.Breakers,
		egress:        deps.Egress,
		detector:      deps.Detector,
		fetcher:       deps.Fetcher,
		metrics:       deps.Metrics,
		collectors:    deps.Collectors,
		publisher:     deps.Publisher,
		archive:       deps.Archive,
		store:         deps.Store,
		queue:         newJobQueue(cfg.QueueCapacity),
		active:        make(map[string]*domain.Job),
		sourceActive:  make(map[string]int),
		generatedRefs: make(map[string]int),
		history:       make([]*domain.Job, 0, cfg.HistoryLimit),
		recent:        make([]bool, 0, cfg.FailureWindow),
		effectiveCap:  cfg.MaxConcurrent,
		submissions:   make(chan *domain.Job, cfg.QueueCapacity),
		completions:   make(chan completion, poolCfg.PoolSize*2),
		eventQueue:    make(chan *events.JobEvent, eventQueueSize),
		drainTimeout:  poolCfg.DrainTimeout,
	}

	pool, err := worker.NewPool(poolCfg, o.executeJob, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	o.pool = pool
	o.health = worker.NewHealthMonitor(pool, poolCfg.HealthCheckInterval, o.log)

	return o, nil
}

// Schedule validates and submits a job. It returns false when the job
// is rejected: unknown or disabled source, open circuit breaker, a
// duplicate generated job, or a full submission queue. Accepted jobs
// enter the priority queue on the next loop iteration.
func (o *Orchestrator) Schedule(job *domain.Job) bool {
	if job == nil {
		return false
	}
	if err := o.validate(job); err != nil {
		o.metrics.RecordRejected()
		o.log.Debug("job rejected",
			"job_id", job.ID,
			"source", job.Source,
			"reason", err.Error(),
		)
		return false
	}

	if job.Generated && !o.retainGenerated(job) {
		o.metrics.RecordRejected()
		o.log.Debug("job rejected",
			"job_id", job.ID,
			"source", job.Source,
			"reason", ErrDuplicateJob.Error(),
		)
		return false
	}

	if !o.submit(job) {
		if job.Generated {
			o.releaseGenerated(job)
		}
		return false
	}
	return true
}

// submit computes the initial priority and hands the job to the loop.
func (o *Orchestrator) submit(job *domain.Job) bool {
	o.mu.RLock()
	failures := 0
	if profile, ok := o.sources[job.Source]; ok {
		failures = profile.ConsecutiveFailures
	}
	o.mu.RUnlock()
	job.Priority = computePriority(job, failures, time.Now())

	select {
	case o.submissions <- job:
	default:
		o.metrics.RecordRejected()
		o.log.Warn("job rejected",
			"job_id", job.ID,
			"source", job.Source,
			"reason", ErrQueueFull.Error(),
		)
		return false
	}

	o.metrics.RecordScheduled()
	if o.collectors != nil {
		o.collectors.RecordJobScheduled(job.Tier.String())
	}
	o.publishEvent(events.EventScheduled, job, false)

	o.log.Debug("job scheduled",
		"job_id", job.ID,
		"source", job.Source,
		"category", job.Category,
		"priority", job.Priority,
		"generated", job.Generated,
	)
	return true
}

// validate applies the static submission checks.
func (o *Orchestrator) validate(job *domain.Job) error {
	if job.Source == "" || job.URL == "" {
		return ErrInvalidJob
	}

	o.mu.RLock()
	profile, ok := o.sources[job.Source]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, job.Source)
	}
	if !profile.Enabled {
		return fmt.Errorf("%w: %s", ErrSourceDisabled, job.Source)
	}

	if !o.breakers.CanExecute(job.Source) {
		return fmt.Errorf("%w: %s", ErrBreakerOpen, job.Source)
	}
	return nil
}

// retainGenerated reserves the (source, category) slot for a generated
// job. It returns false when a generated job for the pair is already
// pending or running.
func (o *Orchestrator) retainGenerated(job *domain.Job) bool {
	key := generatedKey(job.Source, job.Category)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generatedRefs[key] > 0 {
		return false
	}
	o.generatedRefs[key]++
	return true
}

// releaseGenerated frees the (source, category) slot once a generated
// job reaches a terminal state or fails to submit.
func (o *Orchestrator) releaseGenerated(job *domain.Job) {
	if !job.Generated {
		return
	}
	key := generatedKey(job.Source, job.Category)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generatedRefs[key] <= 1 {
		delete(o.generatedRefs, key)
		return
	}
	o.generatedRefs[key]--
}

func generatedKey(source, category string) string {
	return source + "|" + category
}

// IsRunning reports whether the scheduling loop is active.
func (o *Orchestrator) IsRunning() bool {
	return o.running.Load()
}

// IsHealthy reports whether the loop is running and the worker pool
// can still make progress.
func (o *Orchestrator) IsHealthy() bool {
	return o.running.Load() && o.health.IsHealthy()
}

// SourceStatus is the per-source view inside Statistics.
type SourceStatus struct {
	Name                string     `json:"name"`
	Enabled             bool       `json:"enabled"`
	Tier                int        `json:"tier"`
	Category            string     `json:"category"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	BreakerState        string     `json:"breaker_state"`
	ActiveJobs          int        `json:"active_jobs"`
}

// Statistics is a point-in-time view of the orchestrator for the API
// and CLI.
type Statistics struct {
	GeneratedAt          time.Time        `json:"generated_at"`
	Running              bool             `json:"running"`
	QueueDepth           int              `json:"queue_depth"`
	ActiveCount          int              `json:"active_count"`
	MaxConcurrent        int              `json:"max_concurrent"`
	EffectiveConcurrency int              `json:"effective_concurrency"`
	RecentFailureRate    float64          `json:"recent_failure_rate"`
	Counters             metrics.Snapshot `json:"counters"`
	Sources              []SourceStatus   `json:"sources"`
	Pool                 worker.PoolStats `json:"pool"`
}

// Statistics snapshots the orchestrator state.
func (o *Orchestrator) Statistics() Statistics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	sources := make([]SourceStatus, 0, len(o.sources))
	for name, profile := range o.sources {
		status := SourceStatus{
			Name:                name,
			Enabled:             profile.Enabled,
			Tier:                int(profile.Tier),
			Category:            profile.Category,
			ConsecutiveFailures: profile.ConsecutiveFailures,
			BreakerState:        o.breakers.Get(name).State().String(),
			ActiveJobs:          o.sourceActive[name],
		}
		if profile.LastSuccess != nil {
			t := *profile.LastSuccess
			status.LastSuccess = &t
		}
		sources = append(sources, status)
	}
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Name < sources[j].Name
	})

	return Statistics{
		GeneratedAt:          time.Now(),
		Running:              o.running.Load(),
		QueueDepth:           int(o.queueDepth.Load()),
		ActiveCount:          int(o.activeCount.Load()),
		MaxConcurrent:        o.cfg.MaxConcurrent,
		EffectiveConcurrency: o.effectiveCap,
		RecentFailureRate:    failureRate(o.recent),
		Counters:             o.metrics.Snapshot(),
		Sources:              sources,
		Pool:                 o.pool.Stats(),
	}
}

// RecentJobs returns the most recent finished jobs, newest first,
// capped at limit.
func (o *Orchestrator) RecentJobs(limit int) []*domain.Job {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if limit <= 0 || limit > len(o.history) {
		limit = len(o.history)
	}
	out := make([]*domain.Job, 0, limit)
	for i := len(o.history) - 1; i >= len(o.history)-limit; i-- {
		out = append(out, o.history[i])
	}
	return out
}

// failureRate computes the failed share of a recent-outcome window.
func failureRate(window []bool) float64 {
	if len(window) == 0 {
		return 0
	}
	failed := 0
	for _, success := range window {
		if !success {
			failed++
		}
	}
	return float64(failed) / float64(len(window))
}
