package egress

import (
	"math"
	"strings"
	"time"
)

// Selection weights. Historical behaviour on the requesting source
// dominates, with the predictor, recency, load and geography refining
// the ranking.
const (
	weightHistorical = 0.4
	weightPredicted  = 0.3
	weightRecency    = 0.15
	weightLoad       = 0.1
	weightGeo        = 0.05
)

// Pick probabilities across the top ranked candidates.
var topPickWeights = []float64{0.6, 0.3, 0.1}

// Scorer estimates the probability that the next request through a
// point succeeds for a given source and category. A trained model can
// be plugged in via Manager.SetScorer; HistoricalScorer is the
// fallback.
type Scorer interface {
	Score(point *Point, source, category string) float64
}

// HistoricalScorer predicts from the point's own track record with the
// source.
type HistoricalScorer struct{}

// Score implements Scorer.
func (HistoricalScorer) Score(point *Point, source, _ string) float64 {
	return point.SourceRate(source)
}

type candidate struct {
	point *Point
	score float64
}

// selectionScore ranks one point for one source. Called with the
// manager lock held.
func (m *Manager) selectionScore(p *Point, source, category string, now time.Time) float64 {
	historical := p.SourceRate(source)
	predicted := m.scorer.Score(p, source, category)
	recency := recencyScore(p, now)
	load := loadScore(p)
	geo := m.geoScore(p, source)

	return weightHistorical*historical +
		weightPredicted*predicted +
		weightRecency*recency +
		weightLoad*load +
		weightGeo*geo
}

// recencyScore decays exponentially with the hours since the point
// last succeeded, with a 24 hour half-life. A point that has never
// succeeded scores zero.
func recencyScore(p *Point, now time.Time) float64 {
	if p.LastSuccess == nil {
		return 0
	}
	hours := now.Sub(*p.LastSuccess).Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Exp(-hours / 24)
}

// loadScore favors idle points.
func loadScore(p *Point) float64 {
	return 1.0 - p.loadRatio()
}

// geoScore rewards points sitting in the source's preferred
// geography. Sources without a preference treat every point equally.
func (m *Manager) geoScore(p *Point, source string) float64 {
	req, ok := m.requirements[source]
	if !ok || req.Geo == "" {
		return 1.0
	}
	if p.Geo == req.Geo {
		return 1.0
	}
	return 0.3
}

// healthScore condenses a point's metrics into a single number in
// [0,1]. Success rate carries the most weight; latency, recency and
// uptime add smaller contributions; consecutive failures and active
// blocks subtract.
func healthScore(p *Point, now time.Time) float64 {
	success := p.SuccessRate * 0.4
	latency := math.Max(0, (10-p.AvgResponseTime)/10) * 0.2

	recency := 0.1
	if p.LastSuccess != nil {
		hours := now.Sub(*p.LastSuccess).Hours()
		recency = math.Max(0, (24-hours)/24) * 0.1
	}

	uptime := p.UptimePercentage / 100 * 0.1
	failurePenalty := math.Min(float64(p.ConsecutiveFailures)*0.1, 0.3)
	blockingPenalty := float64(len(p.BlockedBy)) * 0.05

	score := success + latency + recency + uptime - failurePenalty - blockingPenalty
	return math.Max(0, math.Min(1, score))
}

// pickTopCandidate draws from the best three candidates with fixed
// probabilities so runner-up points keep seeing traffic instead of all
// load concentrating on the single best point. ranked must be sorted
// by descending score; roll is a uniform draw from [0,1).
func pickTopCandidate(ranked []candidate, roll float64) candidate {
	top := ranked
	if len(top) > len(topPickWeights) {
		top = top[:len(topPickWeights)]
	}

	var total float64
	for i := range top {
		total += topPickWeights[i]
	}

	threshold := roll * total
	var cum float64
	for i := range top {
		cum += topPickWeights[i]
		if threshold < cum {
			return top[i]
		}
	}
	return top[len(top)-1]
}

// blockingVocabulary marks error reasons that mean the remote side is
// rejecting this egress identity rather than failing transiently.
var blockingVocabulary = []string{
	"blocked",
	"forbidden",
	"403",
	"429",
	"rate limit",
	"access denied",
	"cloudflare",
	"captcha",
	"bot detected",
	"suspicious activity",
	"temporary block",
	"ip banned",
}

// isBlockingReason reports whether an error reason matches the
// blocking vocabulary.
func isBlockingReason(reason string) bool {
	if reason == "" {
		return false
	}
	lower := strings.ToLower(reason)
	for _, indicator := range blockingVocabulary {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
