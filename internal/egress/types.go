package egress

import (
	"maps"
	"time"
)

// Defaults applied to a freshly registered point. A point with no
// traffic starts optimistic so it gets tried at least once.
const (
	DefaultCapacity        = 5
	defaultSuccessRate     = 1.0
	defaultHealthScore     = 1.0
	defaultAvgResponseTime = 2.0
	defaultUptime          = 100.0
)

// perSourceAlpha is the smoothing factor for the per-source
// success-rate moving average.
const perSourceAlpha = 0.1

// maxFailureReasons bounds the recent failure reason history kept per
// point.
const maxFailureReasons = 10

// Point is one egress identity together with the performance metrics
// accumulated against it. All mutation goes through the Manager, which
// serializes writes per point.
type Point struct {
	ID          string `json:"id"`
	Address     string `json:"address"`
	Protocol    string `json:"protocol"`
	Geo         string `json:"geo,omitempty"`
	Residential bool   `json:"residential"`
	Capacity    int    `json:"capacity"`

	TotalRequests       int64              `json:"total_requests"`
	SuccessfulRequests  int64              `json:"successful_requests"`
	SuccessRate         float64            `json:"success_rate"`
	AvgResponseTime     float64            `json:"avg_response_time"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
	PerSource           map[string]float64 `json:"per_source,omitempty"`
	BlockedBy           map[string]bool    `json:"blocked_by,omitempty"`
	FailureReasons      []string           `json:"failure_reasons,omitempty"`
	HealthScore         float64            `json:"health_score"`
	CurrentLoad         int                `json:"current_load"`
	UptimePercentage    float64            `json:"uptime_percentage"`
	LastUsed            time.Time          `json:"last_used"`
	LastSuccess         *time.Time         `json:"last_success,omitempty"`
	LastFailure         *time.Time         `json:"last_failure,omitempty"`
}

// SourceRate returns the smoothed success rate for one source, falling
// back to the overall rate when the point has no history with it.
func (p *Point) SourceRate(source string) float64 {
	if rate, ok := p.PerSource[source]; ok {
		return rate
	}
	return p.SuccessRate
}

// BlockedFor reports whether the source has flagged this point as
// blocked.
func (p *Point) BlockedFor(source string) bool {
	return p.BlockedBy[source]
}

// HasCapacity reports whether the point can take another concurrent
// request.
func (p *Point) HasCapacity() bool {
	return p.CurrentLoad < p.Capacity
}

// BlockedSources returns the sources currently blocking this point.
func (p *Point) BlockedSources() []string {
	if len(p.BlockedBy) == 0 {
		return nil
	}
	out := make([]string, 0, len(p.BlockedBy))
	for source := range p.BlockedBy {
		out = append(out, source)
	}
	return out
}

func (p *Point) loadRatio() float64 {
	capacity := p.Capacity
	if capacity < 1 {
		capacity = 1
	}
	ratio := float64(p.CurrentLoad) / float64(capacity)
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

// normalize fills in optimistic defaults for fields the caller left
// zero. Metrics fields are only defaulted on points that have never
// seen traffic, so restored state is not clobbered.
func (p *Point) normalize() {
	if p.Protocol == "" {
		p.Protocol = "http"
	}
	if p.Capacity <= 0 {
		p.Capacity = DefaultCapacity
	}
	if p.TotalRequests == 0 {
		if p.SuccessRate == 0 {
			p.SuccessRate = defaultSuccessRate
		}
		if p.AvgResponseTime == 0 {
			p.AvgResponseTime = defaultAvgResponseTime
		}
		if p.HealthScore == 0 {
			p.HealthScore = defaultHealthScore
		}
		if p.UptimePercentage == 0 {
			p.UptimePercentage = defaultUptime
		}
	}
	if p.PerSource == nil {
		p.PerSource = make(map[string]float64)
	}
	if p.BlockedBy == nil {
		p.BlockedBy = make(map[string]bool)
	}
}

// clone returns a copy safe to hand out without holding the manager
// lock.
func (p *Point) clone() *Point {
	c := *p
	c.PerSource = maps.Clone(p.PerSource)
	c.BlockedBy = maps.Clone(p.BlockedBy)
	c.FailureReasons = append([]string(nil), p.FailureReasons...)
	if p.LastSuccess != nil {
		t := *p.LastSuccess
		c.LastSuccess = &t
	}
	if p.LastFailure != nil {
		t := *p.LastFailure
		c.LastFailure = &t
	}
	return &c
}
