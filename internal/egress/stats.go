package egress

import (
	"sort"
	"time"
)

// maxReportedPoints bounds the top performer and problematic lists.
const maxReportedPoints = 10

// PointSummary is a compact view of one point for reports and the CLI
// table.
type PointSummary struct {
	ID                  string   `json:"id"`
	Geo                 string   `json:"geo,omitempty"`
	SuccessRate         float64  `json:"success_rate"`
	HealthScore         float64  `json:"health_score"`
	AvgResponseTime     float64  `json:"avg_response_time"`
	TotalRequests       int64    `json:"total_requests"`
	ConsecutiveFailures int      `json:"consecutive_failures"`
	CurrentLoad         int      `json:"current_load"`
	Capacity            int      `json:"capacity"`
	BlockedBy           []string `json:"blocked_by,omitempty"`
}

// SourceBreakdown aggregates how the pool is serving one source.
type SourceBreakdown struct {
	PointsUsed  int     `json:"points_used"`
	AvgRate     float64 `json:"avg_rate"`
	BlockedHere int     `json:"blocked_here"`
}

// Statistics describes the pool at one instant.
type Statistics struct {
	GeneratedAt     time.Time                  `json:"generated_at"`
	Total           int                        `json:"total"`
	Available       int                        `json:"available"`
	Quarantined     int                        `json:"quarantined"`
	ActiveSessions  int                        `json:"active_sessions"`
	TotalRequests   int64                      `json:"total_requests"`
	AvgSuccessRate  float64                    `json:"avg_success_rate"`
	AvgResponseTime float64                    `json:"avg_response_time"`
	AvgHealthScore  float64                    `json:"avg_health_score"`
	TopPerformers   []PointSummary             `json:"top_performers,omitempty"`
	Problematic     []PointSummary             `json:"problematic,omitempty"`
	BySource        map[string]SourceBreakdown `json:"by_source,omitempty"`
}

// Statistics builds a point-in-time report over the whole pool.
func (m *Manager) Statistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Statistics{
		GeneratedAt: time.Now(),
		Total:       len(m.points),
		BySource:    make(map[string]SourceBreakdown),
	}
	stats.ActiveSessions = m.sessions.count()

	if len(m.points) == 0 {
		return stats
	}

	var (
		rateSum   float64
		rtSum     float64
		healthSum float64
		all       []*Point
	)
	for _, p := range m.points {
		all = append(all, p)
		rateSum += p.SuccessRate
		rtSum += p.AvgResponseTime
		healthSum += p.HealthScore
		stats.TotalRequests += p.TotalRequests

		if p.ConsecutiveFailures >= m.cfg.QuarantineThreshold {
			stats.Quarantined++
		} else if p.SuccessRate >= m.cfg.SuccessRateFloor && p.HasCapacity() {
			stats.Available++
		}

		for source, rate := range p.PerSource {
			breakdown := stats.BySource[source]
			breakdown.PointsUsed++
			breakdown.AvgRate += rate
			stats.BySource[source] = breakdown
		}
		for source := range p.BlockedBy {
			breakdown := stats.BySource[source]
			breakdown.BlockedHere++
			stats.BySource[source] = breakdown
		}
	}

	n := float64(len(all))
	stats.AvgSuccessRate = rateSum / n
	stats.AvgResponseTime = rtSum / n
	stats.AvgHealthScore = healthSum / n

	for source, breakdown := range stats.BySource {
		if breakdown.PointsUsed > 0 {
			breakdown.AvgRate /= float64(breakdown.PointsUsed)
			stats.BySource[source] = breakdown
		}
	}

	// Success rate weighs heavier than health in the performer
	// ranking so a fast but rarely used point does not top the list.
	ranked := make([]*Point, len(all))
	copy(ranked, all)
	sort.Slice(ranked, func(i, j int) bool {
		ri := ranked[i].SuccessRate*0.7 + ranked[i].HealthScore*0.3
		rj := ranked[j].SuccessRate*0.7 + ranked[j].HealthScore*0.3
		if ri != rj {
			return ri > rj
		}
		return ranked[i].ID < ranked[j].ID
	})
	for _, p := range ranked {
		if len(stats.TopPerformers) >= maxReportedPoints {
			break
		}
		stats.TopPerformers = append(stats.TopPerformers, summarize(p))
	}

	for _, p := range ranked {
		if len(stats.Problematic) >= maxReportedPoints {
			break
		}
		if p.SuccessRate < 0.5 || p.ConsecutiveFailures > 2 || len(p.BlockedBy) > 0 {
			stats.Problematic = append(stats.Problematic, summarize(p))
		}
	}

	return stats
}

func summarize(p *Point) PointSummary {
	summary := PointSummary{
		ID:                  p.ID,
		Geo:                 p.Geo,
		SuccessRate:         p.SuccessRate,
		HealthScore:         p.HealthScore,
		AvgResponseTime:     p.AvgResponseTime,
		TotalRequests:       p.TotalRequests,
		ConsecutiveFailures: p.ConsecutiveFailures,
		CurrentLoad:         p.CurrentLoad,
		Capacity:            p.Capacity,
		BlockedBy:           p.BlockedSources(),
	}
	sort.Strings(summary.BlockedBy)
	return summary
}

// Sessions returns the live sessions, most recently active first.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := m.sessions.active()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	return sessions
}
