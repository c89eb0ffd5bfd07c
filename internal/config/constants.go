package config

import "time"

// Application defaults.
const (
	// DefaultAppName is the default application name.
	DefaultAppName = "goharvest"
	// DefaultAppVersion is the default application version.
	DefaultAppVersion = "0.1.0"
	// DefaultEnvironment is the default deployment environment.
	DefaultEnvironment = "production"
)

// Server defaults.
const (
	// DefaultServerAddress is the default HTTP API listen address.
	DefaultServerAddress = ":8060"
	// DefaultReadTimeout is the default HTTP read timeout.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout is the default HTTP write timeout.
	DefaultWriteTimeout = 15 * time.Second
	// DefaultIdleTimeout is the default HTTP idle timeout.
	DefaultIdleTimeout = 60 * time.Second
)

// Orchestrator defaults.
const (
	// DefaultMaxConcurrent is the default global concurrency cap.
	DefaultMaxConcurrent = 8
	// DefaultQueueCapacity bounds pending submissions into the
	// scheduling loop.
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
	// DefaultFailureRateThreshold halves the concurrency cap when
	// exceeded over the recent completion window.
	DefaultFailureRateThreshold = 0.20
	// DefaultFailureWindow is how many recent completions feed the
	// adaptive failure rate.
	DefaultFailureWindow = 50
	// DefaultHistoryLimit bounds the completed-job history ring.
	DefaultHistoryLimit = 1000
	// DefaultBreakerThreshold is the per-source failure count that
	// opens the circuit.
	DefaultBreakerThreshold = 5
	// DefaultBreakerRecoveryTimeout is how long an open circuit waits
	// before permitting a probe.
	DefaultBreakerRecoveryTimeout = 60 * time.Second
	// DefaultBlockingConfidence is the detector probability at which a
	// failure bypasses retry counting.
	DefaultBlockingConfidence = 0.8
	// DefaultWorkerPoolSize is the default fetch worker pool size.
	DefaultWorkerPoolSize = 8
	// DefaultDrainTimeout bounds worker pool shutdown.
	DefaultDrainTimeout = 30 * time.Second
)

// Egress defaults.
const (
	// DefaultSuccessRateFloor is the minimum overall success rate an
	// egress point needs to stay selectable.
	DefaultSuccessRateFloor = 0.7
	// DefaultQuarantineThreshold is the consecutive failure count that
	// quarantines an egress point.
	DefaultQuarantineThreshold = 3
	// DefaultSessionTTL is how long an idle egress session survives.
	DefaultSessionTTL = 24 * time.Hour
	// DefaultHealthCheckInterval is how often the pool is probed.
	DefaultHealthCheckInterval = 5 * time.Minute
	// DefaultProbeTarget is the URL health probes are issued against.
	DefaultProbeTarget = "https://httpbin.org/ip"
)

// Detector defaults.
const (
	// DefaultPatternRetention is how long unobserved failure patterns
	// are kept.
	DefaultPatternRetention = 7 * 24 * time.Hour
)

// Fetch defaults.
const (
	// DefaultUserAgent identifies the fetch collaborator.
	DefaultUserAgent = "goharvest/1.0"
	// DefaultFetchTimeout bounds one fetch request.
	DefaultFetchTimeout = 30 * time.Second
	// DefaultMaxBodyBytes limits fetched response bodies.
	DefaultMaxBodyBytes = 10 * 1024 * 1024
)

// Redis defaults.
const (
	// DefaultRedisAddr is the default Redis address.
	DefaultRedisAddr = "127.0.0.1:6379"
	// DefaultRedisPrefix namespaces all goharvest keys.
	DefaultRedisPrefix = "goharvest"
)

// Events defaults.
const (
	// DefaultEventStream is the Redis Stream job events are published to.
	DefaultEventStream = "goharvest:events:jobs"
	// DefaultEventMaxLen bounds the event stream length.
	DefaultEventMaxLen = 10000
)

// Archive defaults.
const (
	// DefaultArchiveHost is the default Postgres host.
	DefaultArchiveHost = "localhost"
	// DefaultArchivePort is the default Postgres port.
	DefaultArchivePort = 5432
	// DefaultArchiveUser is the default Postgres user.
	DefaultArchiveUser = "postgres"
	// DefaultArchiveDBName is the default Postgres database.
	DefaultArchiveDBName = "goharvest"
	// DefaultArchiveSSLMode is the default Postgres SSL mode.
	DefaultArchiveSSLMode = "disable"
	// DefaultArchiveQueueSize bounds the async archive write queue.
	DefaultArchiveQueueSize = 100
	// DefaultArchiveRetention is how long execution records are kept.
	DefaultArchiveRetention = 30 * 24 * time.Hour
)

// Source defaults.
const (
	// DefaultSourceMaxConcurrent is the per-source concurrency cap.
	DefaultSourceMaxConcurrent = 2
	// DefaultSourceRateLimit is the per-source request spacing.
	DefaultSourceRateLimit = 2 * time.Second
	// DefaultSourceTimeout bounds one job for the source.
	DefaultSourceTimeout = 5 * time.Minute
)
