package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the namespace for all control plane metrics.
	Namespace = "goharvest"

	subsystemOrchestrator = "orchestrator"
	subsystemEgress       = "egress"
	subsystemDetector     = "detector"
)

// Collectors holds all Prometheus metrics exposed on /metrics.
type Collectors struct {
	// Orchestrator metrics
	JobsScheduledTotal   *prometheus.CounterVec
	JobsExecutedTotal    *prometheus.CounterVec
	JobDurationSeconds   *prometheus.HistogramVec
	JobsCurrentlyRunning prometheus.Gauge
	QueueDepth           prometheus.Gauge
	ConcurrencyCap       prometheus.Gauge
	RetriesTotal         *prometheus.CounterVec
	TimeoutsTotal        *prometheus.CounterVec

	// Circuit breaker metrics
	BreakerState      *prometheus.GaugeVec
	BreakerTripsTotal *prometheus.CounterVec

	// Egress metrics
	EgressSelectedTotal *prometheus.CounterVec
	EgressHealthScore   *prometheus.GaugeVec
	EgressQuarantined   prometheus.Gauge

	// Detector metrics
	BlockingDetectedTotal *prometheus.CounterVec
	BlockingProbability   prometheus.Histogram
	PatternsLearnedTotal  *prometheus.CounterVec
}

// NewCollectors creates and registers all control plane metrics.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	c := &Collectors{}

	c.initOrchestratorMetrics(factory)
	c.initBreakerMetrics(factory)
	c.initEgressMetrics(factory)
	c.initDetectorMetrics(factory)

	return c
}

// initOrchestratorMetrics initializes scheduling loop metrics.
func (c *Collectors) initOrchestratorMetrics(factory promauto.Factory) {
	c.JobsScheduledTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemOrchestrator,
			Name:      "jobs_scheduled_total",
			Help:      "Total number of jobs accepted for scheduling",
		},
		[]string{"tier"},
	)

	c.JobsExecutedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemOrchestrator,
			Name:      "jobs_executed_total",
			Help:      "Total number of job executions by outcome",
		},
		[]string{"status", "source"},
	)

	c.JobDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystemOrchestrator,
			Name:      "job_duration_seconds",
			Help:      "Duration of job executions in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~7min
		},
		[]string{"source"},
	)

	c.JobsCurrentlyRunning = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemOrchestrator,
			Name:      "jobs_currently_running",
			Help:      "Number of jobs currently running",
		},
	)

	c.QueueDepth = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemOrchestrator,
			Name:      "queue_depth",
			Help:      "Current depth of the priority queue",
		},
	)

	c.ConcurrencyCap = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemOrchestrator,
			Name:      "concurrency_cap",
			Help:      "Current adaptive global concurrency cap",
		},
	)

	c.RetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemOrchestrator,
			Name:      "retries_total",
			Help:      "Total number of retry re-enqueues",
		},
		[]string{"source"},
	)

	c.TimeoutsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemOrchestrator,
			Name:      "timeouts_total",
			Help:      "Total number of executions cancelled by timeout",
		},
		[]string{"source"},
	)
}

// initBreakerMetrics initializes circuit breaker metrics.
func (c *Collectors) initBreakerMetrics(factory promauto.Factory) {
	c.BreakerState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemOrchestrator,
			Name:      "breaker_state",
			Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"source"},
	)

	c.BreakerTripsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemOrchestrator,
			Name:      "breaker_trips_total",
			Help:      "Total number of circuit breaker trips",
		},
		[]string{"source"},
	)
}

// initEgressMetrics initializes egress pool metrics.
func (c *Collectors) initEgressMetrics(factory promauto.Factory) {
	c.EgressSelectedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemEgress,
			Name:      "selected_total",
			Help:      "Total number of selections per egress point",
		},
		[]string{"egress_id"},
	)

	c.EgressHealthScore = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemEgress,
			Name:      "health_score",
			Help:      "Current composite health score per egress point",
		},
		[]string{"egress_id"},
	)

	c.EgressQuarantined = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemEgress,
			Name:      "quarantined",
			Help:      "Number of egress points currently quarantined",
		},
	)
}

// initDetectorMetrics initializes blocking detector metrics.
func (c *Collectors) initDetectorMetrics(factory promauto.Factory) {
	c.BlockingDetectedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemDetector,
			Name:      "blocking_detected_total",
			Help:      "Total number of pages classified as blocked",
		},
		[]string{"source"},
	)

	c.BlockingProbability = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystemDetector,
			Name:      "blocking_probability",
			Help:      "Distribution of computed blocking probabilities",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		},
	)

	c.PatternsLearnedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemDetector,
			Name:      "patterns_learned_total",
			Help:      "Total number of failure pattern observations",
		},
		[]string{"error_type"},
	)
}

// RecordJobScheduled records a job being accepted.
func (c *Collectors) RecordJobScheduled(tier string) {
	c.JobsScheduledTotal.WithLabelValues(tier).Inc()
}

// RecordJobExecuted records a finished execution.
func (c *Collectors) RecordJobExecuted(status, source string, durationSeconds float64) {
	c.JobsExecutedTotal.WithLabelValues(status, source).Inc()
	c.JobDurationSeconds.WithLabelValues(source).Observe(durationSeconds)
}

// RecordJobStarted increments the running job count.
func (c *Collectors) RecordJobStarted() {
	c.JobsCurrentlyRunning.Inc()
}

// RecordJobFinished decrements the running job count.
func (c *Collectors) RecordJobFinished() {
	c.JobsCurrentlyRunning.Dec()
}

// SetQueueDepth records the current priority queue depth.
func (c *Collectors) SetQueueDepth(depth int) {
	c.QueueDepth.Set(float64(depth))
}

// SetConcurrencyCap records the current adaptive cap.
func (c *Collectors) SetConcurrencyCap(limit int) {
	c.ConcurrencyCap.Set(float64(limit))
}

// RecordRetry records a retry re-enqueue.
func (c *Collectors) RecordRetry(source string) {
	c.RetriesTotal.WithLabelValues(source).Inc()
}

// RecordTimeout records a timed-out execution.
func (c *Collectors) RecordTimeout(source string) {
	c.TimeoutsTotal.WithLabelValues(source).Inc()
}

// SetBreakerState sets the breaker state gauge for a source.
func (c *Collectors) SetBreakerState(source string, state int) {
	c.BreakerState.WithLabelValues(source).Set(float64(state))
}

// RecordBreakerTrip records a breaker opening.
func (c *Collectors) RecordBreakerTrip(source string) {
	c.BreakerTripsTotal.WithLabelValues(source).Inc()
}

// RecordEgressSelected records a selection of the given egress point.
func (c *Collectors) RecordEgressSelected(egressID string) {
	c.EgressSelectedTotal.WithLabelValues(egressID).Inc()
}

// SetEgressHealth records the composite health score of a point.
func (c *Collectors) SetEgressHealth(egressID string, score float64) {
	c.EgressHealthScore.WithLabelValues(egressID).Set(score)
}

// SetQuarantinedCount records how many points are quarantined.
func (c *Collectors) SetQuarantinedCount(n int) {
	c.EgressQuarantined.Set(float64(n))
}

// RecordBlockingDetected records a blocked verdict. The probability
// itself lands in the histogram via RecordBlockingProbability, which
// the detector calls for every analysis.
func (c *Collectors) RecordBlockingDetected(source string) {
	c.BlockingDetectedTotal.WithLabelValues(source).Inc()
}

// RecordBlockingProbability records one analysis outcome in the
// probability histogram.
func (c *Collectors) RecordBlockingProbability(probability float64) {
	c.BlockingProbability.Observe(probability)
}

// RecordPatternLearned records a failure pattern observation.
func (c *Collectors) RecordPatternLearned(errorType string) {
	c.PatternsLearnedTotal.WithLabelValues(errorType).Inc()
}
