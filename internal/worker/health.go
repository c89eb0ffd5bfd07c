package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/goharvest/internal/logger"
)

// HealthStatus summarizes pool health for the /healthz surface.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"

	// degradedThreshold is the healthy-worker ratio below which the
	// pool counts as unhealthy rather than degraded.
	degradedThreshold = 0.5
)

// String returns the status as a string.
func (s HealthStatus) String() string {
	return string(s)
}

// HealthCheck is one observation of the pool.
type HealthCheck struct {
	Status           HealthStatus
	Timestamp        time.Time
	PoolState        PoolState
	TotalWorkers     int
	HealthyWorkers   int
	UnhealthyWorkers int
	BusyWorkers      int
	IdleWorkers      int
	Details          []WorkerHealthDetail
}

// WorkerHealthDetail is the per-worker slice of a health check.
type WorkerHealthDetail struct {
	WorkerID     int
	State        WorkerState
	IsHealthy    bool
	CurrentJobID string
	JobDuration  time.Duration
	LastError    string
}

// HealthMonitor periodically inspects the pool's workers so a fetch
// handler stuck past its deadline surfaces as degraded instead of
// silently shrinking throughput.
type HealthMonitor struct {
	pool     *Pool
	log      logger.Interface
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mu        sync.RWMutex
	lastCheck *HealthCheck
}

// NewHealthMonitor creates a monitor for the given pool.
func NewHealthMonitor(pool *Pool, interval time.Duration, log logger.Interface) *HealthMonitor {
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}
	return &HealthMonitor{
		pool:     pool,
		log:      log,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the monitoring loop. The first check runs
// immediately so IsHealthy has an answer before the first tick.
func (m *HealthMonitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
}

// Stop terminates the monitoring loop and waits for it to exit.
func (m *HealthMonitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// Check inspects every worker and records the aggregate verdict.
func (m *HealthMonitor) Check() HealthCheck {
	stats := m.pool.Stats()

	healthy := 0
	details := make([]WorkerHealthDetail, len(stats.Workers))
	for i, ws := range stats.Workers {
		ok := ws.IsHealthy()
		if ok {
			healthy++
		}

		var lastErr string
		if ws.LastError != nil {
			lastErr = ws.LastError.Error()
		}
		var jobDuration time.Duration
		if ws.State == WorkerStateBusy && !ws.JobStartedAt.IsZero() {
			jobDuration = time.Since(ws.JobStartedAt)
		}

		details[i] = WorkerHealthDetail{
			WorkerID:     ws.ID,
			State:        ws.State,
			IsHealthy:    ok,
			CurrentJobID: ws.CurrentJobID,
			JobDuration:  jobDuration,
			LastError:    lastErr,
		}
	}

	check := HealthCheck{
		Status:           statusFor(stats.PoolSize, healthy),
		Timestamp:        time.Now(),
		PoolState:        stats.State,
		TotalWorkers:     stats.PoolSize,
		HealthyWorkers:   healthy,
		UnhealthyWorkers: stats.PoolSize - healthy,
		BusyWorkers:      stats.BusyWorkers,
		IdleWorkers:      stats.IdleWorkers,
		Details:          details,
	}

	m.mu.Lock()
	m.lastCheck = &check
	m.mu.Unlock()
	return check
}

// LastCheck returns the most recent observation, nil before the first.
func (m *HealthMonitor) LastCheck() *HealthCheck {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastCheck
}

// IsHealthy reports whether the pool can still make progress. A
// degraded pool counts: some workers are impaired but jobs flow.
func (m *HealthMonitor) IsHealthy() bool {
	check := m.LastCheck()
	if check == nil {
		return false
	}
	return check.Status != HealthStatusUnhealthy
}

// statusFor folds worker counts into the aggregate verdict.
func statusFor(total, healthy int) HealthStatus {
	switch {
	case total == 0:
		return HealthStatusUnhealthy
	case healthy == total:
		return HealthStatusHealthy
	case float64(healthy)/float64(total) >= degradedThreshold:
		return HealthStatusDegraded
	default:
		return HealthStatusUnhealthy
	}
}

func (m *HealthMonitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.observe()
	for {
		select {
		case <-ticker.C:
			m.observe()
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		}
	}
}

func (m *HealthMonitor) observe() {
	check := m.Check()
	switch check.Status {
	case HealthStatusHealthy:
		m.log.Debug("pool health check: healthy",
			"total_workers", check.TotalWorkers,
			"busy_workers", check.BusyWorkers,
		)
	case HealthStatusDegraded:
		m.log.Warn("pool health check: degraded",
			"healthy_workers", check.HealthyWorkers,
			"unhealthy_workers", check.UnhealthyWorkers,
		)
	case HealthStatusUnhealthy:
		m.log.Error("pool health check: unhealthy",
			"healthy_workers", check.HealthyWorkers,
			"unhealthy_workers", check.UnhealthyWorkers,
		)
	}
}
