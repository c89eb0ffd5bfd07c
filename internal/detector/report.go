package detector

import (
	"fmt"
	"slices"
	"sort"
	"time"
)

// highFailureVolume is the pattern count above which the report flags
// a systemic problem.
const highFailureVolume = 50

// SourcePatterns summarizes the patterns affecting one source.
type SourcePatterns struct {
	Count int      `json:"count"`
	Types []string `json:"types"`
}

// Report summarizes the failure patterns observed inside a window.
type Report struct {
	GeneratedAt     time.Time                 `json:"generated_at"`
	Window          time.Duration             `json:"window"`
	Source          string                    `json:"source,omitempty"`
	TotalPatterns   int                       `json:"total_patterns"`
	ByErrorType     map[string]int            `json:"by_error_type,omitempty"`
	BySource        map[string]SourcePatterns `json:"by_source,omitempty"`
	TopPatterns     []*FailurePattern         `json:"top_patterns,omitempty"`
	Recommendations []string                  `json:"recommendations,omitempty"`
}

// Report aggregates the patterns last seen inside the window,
// optionally filtered to one source. Top patterns are capped at ten
// and ranked by frequency.
func (d *Detector) Report(source string, window time.Duration) Report {
	return d.patterns.Report(source, window)
}

// Report builds the windowed aggregation over the store.
func (s *PatternStore) Report(source string, window time.Duration) Report {
	cutoff := time.Now().Add(-window)
	report := Report{
		GeneratedAt: time.Now(),
		Window:      window,
		Source:      source,
		ByErrorType: make(map[string]int),
		BySource:    make(map[string]SourcePatterns),
	}

	var relevant []*FailurePattern
	for _, pattern := range s.List() {
		if pattern.LastSeen.Before(cutoff) {
			continue
		}
		if source != "" && pattern.Source != source {
			continue
		}
		relevant = append(relevant, pattern)
	}

	report.TotalPatterns = len(relevant)
	for _, pattern := range relevant {
		report.ByErrorType[pattern.ErrorType]++

		stats := report.BySource[pattern.Source]
		stats.Count++
		if !slices.Contains(stats.Types, pattern.ErrorType) {
			stats.Types = append(stats.Types, pattern.ErrorType)
			sort.Strings(stats.Types)
		}
		report.BySource[pattern.Source] = stats
	}

	// List() already sorts by frequency.
	top := relevant
	if len(top) > maxReportPatterns {
		top = top[:maxReportPatterns]
	}
	for _, pattern := range top {
		trimmed := pattern.copy()
		if len(trimmed.Suggestions) > 3 {
			trimmed.Suggestions = trimmed.Suggestions[:3]
		}
		report.TopPatterns = append(report.TopPatterns, trimmed)
	}

	report.Recommendations = recommendations(relevant)
	return report
}

// recommendations synthesizes operator guidance from the dominant
// error type and the most affected source.
func recommendations(patterns []*FailurePattern) []string {
	if len(patterns) == 0 {
		return []string{"no critical failure patterns detected"}
	}

	var out []string

	typeCounts := make(map[string]int)
	sourceCounts := make(map[string]int)
	for _, pattern := range patterns {
		typeCounts[pattern.ErrorType] += pattern.Frequency
		sourceCounts[pattern.Source] += pattern.Frequency
	}

	dominantType, dominantTypeCount := maxCount(typeCounts)
	switch dominantType {
	case ErrorTypeCaptcha:
		out = append(out, fmt.Sprintf("%d captcha observations, rotate egress identities and slow down", dominantTypeCount))
	case ErrorTypeRateLimit:
		out = append(out, fmt.Sprintf("%d rate limit observations, reduce request rate", dominantTypeCount))
	case ErrorTypeWAF:
		out = append(out, fmt.Sprintf("%d WAF blocks, prefer residential egress for the affected sources", dominantTypeCount))
	}

	mostAffected, affectedCount := maxCount(sourceCounts)
	if mostAffected != "" {
		out = append(out, fmt.Sprintf("%s is the most affected source (%d observations)", mostAffected, affectedCount))
	}

	if len(patterns) > highFailureVolume {
		out = append(out, "high failure volume, review harvesting configuration")
	}

	if len(out) == 0 {
		out = append(out, "no critical failure patterns detected")
	}
	return out
}

// maxCount returns the key with the highest count, breaking ties by
// key order for stable reports.
func maxCount(counts map[string]int) (string, int) {
	best := ""
	bestCount := 0
	for key, count := range counts {
		if count > bestCount || (count == bestCount && key < best) {
			best = key
			bestCount = count
		}
	}
	return best, bestCount
}
