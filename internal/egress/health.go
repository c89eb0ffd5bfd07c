package egress

import (
	"context"
	"math"
	"net/http"
	"sort"
	"time"
)

// Uptime adjustments per probe, on the 0..100 scale. Failures hurt
// twice as hard as successes help.
const (
	uptimeProbeReward  = 10.0
	uptimeProbePenalty = 20.0
)

// ProbeResult is the outcome of one connectivity probe through an
// egress point.
type ProbeResult struct {
	Success      bool
	StatusCode   int
	ResponseTime time.Duration
	Error        string
}

// Prober issues a lightweight request through an egress point against
// a known target. The default implementation lives in the fetcher
// package.
type Prober interface {
	Probe(ctx context.Context, point *Point, targetURL string) ProbeResult
}

// CheckOutcome records one probe verdict inside a health report.
type CheckOutcome struct {
	EgressID     string        `json:"egress_id"`
	Success      bool          `json:"success"`
	Blocked      bool          `json:"blocked"`
	StatusCode   int           `json:"status_code,omitempty"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	HealthScore  float64       `json:"health_score"`
}

// HealthReport summarizes one sweep over the pool.
type HealthReport struct {
	CheckedAt   time.Time      `json:"checked_at"`
	Total       int            `json:"total"`
	Healthy     int            `json:"healthy"`
	Quarantined int            `json:"quarantined"`
	Blocked     int            `json:"blocked"`
	Duration    time.Duration  `json:"duration"`
	Outcomes    []CheckOutcome `json:"outcomes,omitempty"`
}

// HealthCheckAll probes every point and folds the verdicts back into
// uptime, quarantine state and health scores. A successful probe
// resets the consecutive failure count, lifting a quarantined point
// back into rotation.
func (m *Manager) HealthCheckAll(ctx context.Context) HealthReport {
	start := time.Now()
	report := HealthReport{CheckedAt: start}

	m.mu.RLock()
	prober := m.prober
	target := m.cfg.ProbeTarget
	targets := make([]*Point, 0, len(m.points))
	for _, p := range m.points {
		targets = append(targets, p.clone())
	}
	m.mu.RUnlock()

	report.Total = len(targets)
	if prober == nil {
		m.log.Warn("health sweep skipped, no prober wired")
		return report
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })

	for _, snapshot := range targets {
		if ctx.Err() != nil {
			break
		}
		result := prober.Probe(ctx, snapshot, target)
		outcome := m.applyProbe(snapshot.ID, result)
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Success {
			report.Healthy++
		}
		if outcome.Blocked {
			report.Blocked++
		}
	}

	m.mu.RLock()
	for _, p := range m.points {
		if p.ConsecutiveFailures >= m.cfg.QuarantineThreshold {
			report.Quarantined++
		}
	}
	m.mu.RUnlock()

	report.Duration = time.Since(start)
	m.log.Info("egress health sweep finished",
		"total", report.Total,
		"healthy", report.Healthy,
		"quarantined", report.Quarantined,
		"blocked", report.Blocked,
		"duration", report.Duration,
	)
	return report
}

// applyProbe folds one probe result into the live point and returns
// the outcome for the report.
func (m *Manager) applyProbe(egressID string, result ProbeResult) CheckOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	outcome := CheckOutcome{
		EgressID:     egressID,
		Success:      result.Success,
		StatusCode:   result.StatusCode,
		ResponseTime: result.ResponseTime,
		Error:        result.Error,
	}

	p, ok := m.points[egressID]
	if !ok {
		// Point was deregistered mid-sweep.
		return outcome
	}

	if result.Success {
		p.UptimePercentage = math.Min(100, p.UptimePercentage+uptimeProbeReward)
		p.ConsecutiveFailures = 0
	} else {
		p.UptimePercentage = math.Max(0, p.UptimePercentage-uptimeProbePenalty)
		if blockingProbeStatus(result.StatusCode) {
			outcome.Blocked = true
			p.ConsecutiveFailures++
		}
	}

	p.HealthScore = healthScore(p, time.Now())
	outcome.HealthScore = p.HealthScore
	return outcome
}

// blockingProbeStatus reports whether a probe status means the point
// itself is being challenged rather than merely failing.
func blockingProbeStatus(code int) bool {
	switch code {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	}
	return false
}
