package config

import (
	"fmt"
	"time"
)

// ServerConfig holds the HTTP API server settings.
type ServerConfig struct {
	// Address is the listen address (host:port).
	Address string `mapstructure:"address"`
	// ReadTimeout bounds reading a request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout bounds writing a response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// IdleTimeout bounds idle keep-alive connections.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// SecurityEnabled requires an API key on mutating endpoints.
	SecurityEnabled bool `mapstructure:"security_enabled"`
	// APIKey is the shared key clients must present when security is
	// enabled.
	APIKey string `mapstructure:"api_key"`
}

func (c *ServerConfig) applyDefaults() {
	if c.Address == "" {
		c.Address = DefaultServerAddress
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
}

// Validate checks if the server configuration is valid.
func (c *ServerConfig) Validate() error {
	if c.Address == "" {
		return ErrServerAddressRequired
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// OrchestratorConfig holds the scheduling loop settings.
type OrchestratorConfig struct {
	// MaxConcurrent is the global concurrency cap before adaptation.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// QueueCapacity bounds pending submissions into the loop.
	QueueCapacity int `mapstructure:"queue_capacity"`
	// ScheduleInterval is the queue scan cadence.
	ScheduleInterval time.Duration `mapstructure:"schedule_interval"`
	// MonitorInterval is the active-job timeout scan cadence.
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
	// CheckpointInterval is how often state is persisted.
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval"`
	// BackoffBase is the base retry delay.
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	// BackoffCap is the maximum retry delay.
	BackoffCap time.Duration `mapstructure:"backoff_cap"`
	// FailureRateThreshold halves the concurrency cap when the recent
	// failure rate exceeds it.
	FailureRateThreshold float64 `mapstructure:"failure_rate_threshold"`
	// FailureWindow is how many recent completions feed the adaptive
	// failure rate.
	FailureWindow int `mapstructure:"failure_window"`
	// HistoryLimit bounds the completed-job history ring.
	HistoryLimit int `mapstructure:"history_limit"`
	// BreakerThreshold is the per-source failure count that opens the
	// circuit.
	BreakerThreshold int `mapstructure:"breaker_threshold"`
	// BreakerRecoveryTimeout is how long an open circuit waits before
	// permitting a probe.
	BreakerRecoveryTimeout time.Duration `mapstructure:"breaker_recovery_timeout"`
	// BlockingConfidence is the detector probability at which a
	// failure bypasses retry counting.
	BlockingConfidence float64 `mapstructure:"blocking_confidence"`
	// WorkerPoolSize is the fetch worker pool size.
	WorkerPoolSize int `mapstructure:"worker_pool_size"`
	// DrainTimeout bounds worker pool shutdown.
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	// GeneratorEnabled turns the tier job generator on.
	GeneratorEnabled bool `mapstructure:"generator_enabled"`
	// DiagnoseOnExhausted triggers deep diagnosis when a job exhausts
	// its retries.
	DiagnoseOnExhausted bool `mapstructure:"diagnose_on_exhausted"`
}

func (c *OrchestratorConfig) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.ScheduleInterval <= 0 {
		c.ScheduleInterval = DefaultScheduleInterval
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = DefaultMonitorInterval
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = DefaultCheckpointInterval
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = DefaultBackoffCap
	}
	if c.FailureRateThreshold <= 0 {
		c.FailureRateThreshold = DefaultFailureRateThreshold
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = DefaultFailureWindow
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = DefaultBreakerThreshold
	}
	if c.BreakerRecoveryTimeout <= 0 {
		c.BreakerRecoveryTimeout = DefaultBreakerRecoveryTimeout
	}
	if c.BlockingConfidence <= 0 {
		c.BlockingConfidence = DefaultBlockingConfidence
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = DefaultWorkerPoolSize
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
}

// Validate checks if the orchestrator configuration is valid.
func (c *OrchestratorConfig) Validate() error {
	if c.MaxConcurrent <= 0 || c.WorkerPoolSize <= 0 {
		return ErrInvalidConcurrency
	}
	if c.BackoffBase <= 0 || c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("%w: backoff cap must be at least the base", ErrInvalidTimeout)
	}
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 1 {
		return fmt.Errorf("failure rate threshold: %w", ErrInvalidRate)
	}
	if c.BlockingConfidence <= 0 || c.BlockingConfidence > 1 {
		return fmt.Errorf("blocking confidence: %w", ErrInvalidRate)
	}
	return nil
}

// EgressPointConfig declares one egress point in the pool.
type EgressPointConfig struct {
	// ID uniquely identifies the point.
	ID string `mapstructure:"id"`
	// Address is the network address (host:port).
	Address string `mapstructure:"address"`
	// Protocol is the proxy protocol (http, https, socks5).
	Protocol string `mapstructure:"protocol"`
	// Geo is the geography tag (e.g. "us", "eu").
	Geo string `mapstructure:"geo"`
	// Residential marks a residential-class point.
	Residential bool `mapstructure:"residential"`
	// Capacity is the concurrent request capacity.
	Capacity int `mapstructure:"capacity"`
}

// Validate checks if the egress point declaration is valid.
func (c *EgressPointConfig) Validate() error {
	if c.ID == "" {
		return ErrEgressIDRequired
	}
	if c.Address == "" {
		return fmt.Errorf("%s: %w", c.ID, ErrEgressAddressRequired)
	}
	return nil
}

// EgressConfig holds egress pool settings.
type EgressConfig struct {
	// SuccessRateFloor is the minimum overall success rate for
	// selection.
	SuccessRateFloor float64 `mapstructure:"success_rate_floor"`
	// QuarantineThreshold is the consecutive failure count that
	// quarantines a point.
	QuarantineThreshold int `mapstructure:"quarantine_threshold"`
	// SessionTTL is how long an idle session survives.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	// HealthCheckInterval is the probe sweep cadence.
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	// ProbeTarget is the URL health probes are issued against.
	ProbeTarget string `mapstructure:"probe_target"`
	// Points is the configured pool.
	Points []EgressPointConfig `mapstructure:"points"`
}

func (c *EgressConfig) applyDefaults() {
	if c.SuccessRateFloor <= 0 {
		c.SuccessRateFloor = DefaultSuccessRateFloor
	}
	if c.QuarantineThreshold <= 0 {
		c.QuarantineThreshold = DefaultQuarantineThreshold
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if c.ProbeTarget == "" {
		c.ProbeTarget = DefaultProbeTarget
	}
}

// Validate checks if the egress configuration is valid.
func (c *EgressConfig) Validate() error {
	if c.SuccessRateFloor <= 0 || c.SuccessRateFloor > 1 {
		return fmt.Errorf("success rate floor: %w", ErrInvalidRate)
	}
	seen := make(map[string]bool, len(c.Points))
	for i := range c.Points {
		if err := c.Points[i].Validate(); err != nil {
			return err
		}
		if seen[c.Points[i].ID] {
			return fmt.Errorf("egress point %s declared twice", c.Points[i].ID)
		}
		seen[c.Points[i].ID] = true
	}
	return nil
}

// DetectorConfig holds blocking detector settings.
type DetectorConfig struct {
	// PatternRetention is how long unobserved failure patterns are
	// kept before cleanup.
	PatternRetention time.Duration `mapstructure:"pattern_retention"`
}

func (c *DetectorConfig) applyDefaults() {
	if c.PatternRetention <= 0 {
		c.PatternRetention = DefaultPatternRetention
	}
}

// Validate checks if the detector configuration is valid.
func (c *DetectorConfig) Validate() error {
	if c.PatternRetention <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// FetchConfig holds fetch collaborator settings.
type FetchConfig struct {
	// UserAgent identifies requests issued by the default fetcher.
	UserAgent string `mapstructure:"user_agent"`
	// Timeout bounds one fetch request when the source profile does
	// not override it.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxBodyBytes limits fetched response bodies.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

func (c *FetchConfig) applyDefaults() {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultFetchTimeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

// Validate checks if the fetch configuration is valid.
func (c *FetchConfig) Validate() error {
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// RedisConfig holds the Redis connection used for state checkpoints
// and the job event stream.
type RedisConfig struct {
	// Addr is the Redis address (host:port).
	Addr string `mapstructure:"addr"`
	// Password is the optional Redis password.
	Password string `json:"-" mapstructure:"password"`
	// DB is the Redis database number.
	DB int `mapstructure:"db"`
	// Prefix namespaces all goharvest keys.
	Prefix string `mapstructure:"prefix"`
}

func (c *RedisConfig) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultRedisAddr
	}
	if c.Prefix == "" {
		c.Prefix = DefaultRedisPrefix
	}
}

// Validate checks if the Redis configuration is valid.
func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("redis address must be specified")
	}
	return nil
}

// EventsConfig holds job lifecycle event stream settings.
type EventsConfig struct {
	// Enabled turns event publishing on.
	Enabled bool `mapstructure:"enabled"`
	// Stream is the Redis Stream events are published to.
	Stream string `mapstructure:"stream"`
	// MaxLen bounds the stream length.
	MaxLen int64 `mapstructure:"max_len"`
}

func (c *EventsConfig) applyDefaults() {
	if c.Stream == "" {
		c.Stream = DefaultEventStream
	}
	if c.MaxLen <= 0 {
		c.MaxLen = DefaultEventMaxLen
	}
}

// Validate checks if the events configuration is valid.
func (c *EventsConfig) Validate() error {
	if c.Enabled && c.Stream == "" {
		return fmt.Errorf("event stream name must be specified")
	}
	return nil
}

// ArchiveConfig holds the Postgres execution archive settings.
type ArchiveConfig struct {
	// Enabled turns execution archiving on.
	Enabled bool `mapstructure:"enabled"`
	// Host is the Postgres host.
	Host string `mapstructure:"host"`
	// Port is the Postgres port.
	Port int `mapstructure:"port"`
	// User is the Postgres user.
	User string `mapstructure:"user"`
	// Password is the Postgres password.
	Password string `json:"-" mapstructure:"password"`
	// DBName is the Postgres database name.
	DBName string `mapstructure:"dbname"`
	// SSLMode is the Postgres SSL mode.
	SSLMode string `mapstructure:"sslmode"`
	// FailSilently logs archive errors instead of surfacing them.
	FailSilently bool `mapstructure:"fail_silently"`
	// QueueSize bounds the async write queue.
	QueueSize int `mapstructure:"queue_size"`
	// Retention is how long execution records are kept.
	Retention time.Duration `mapstructure:"retention"`
}

func (c *ArchiveConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultArchiveHost
	}
	if c.Port <= 0 {
		c.Port = DefaultArchivePort
	}
	if c.User == "" {
		c.User = DefaultArchiveUser
	}
	if c.DBName == "" {
		c.DBName = DefaultArchiveDBName
	}
	if c.SSLMode == "" {
		c.SSLMode = DefaultArchiveSSLMode
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultArchiveQueueSize
	}
	if c.Retention <= 0 {
		c.Retention = DefaultArchiveRetention
	}
}

// Validate checks if the archive configuration is valid.
func (c *ArchiveConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Host == "" || c.DBName == "" {
		return fmt.Errorf("archive host and dbname must be specified when enabled")
	}
	return nil
}
