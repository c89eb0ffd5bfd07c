package detector

import (
	"time"
)

// Verdicts a page analysis can land on. Clean pages produce no
// failure pattern.
const (
	VerdictBlocked    = "blocked"
	VerdictSuspicious = "suspicious"
	VerdictClean      = "clean"
)

// blockedThreshold is the probability at or above which a page is
// considered blocked.
const blockedThreshold = 0.5

// PageAnalysis is the detector's verdict on one fetched page.
type PageAnalysis struct {
	URL            string        `json:"url"`
	Source         string        `json:"source"`
	AnalyzedAt     time.Time     `json:"analyzed_at"`
	Blocked        bool          `json:"blocked"`
	Probability    float64       `json:"probability"`
	Indicators     []string      `json:"indicators,omitempty"`
	VisualFindings []string      `json:"visual_findings,omitempty"`
	CaptchaFound   bool          `json:"captcha_found"`
	RateLimited    bool          `json:"rate_limited"`
	HasProducts    bool          `json:"has_products"`
	ContentLength  int           `json:"content_length"`
	Duration       time.Duration `json:"duration"`
}

// Verdict reduces the analysis to one of blocked, suspicious or
// clean. A page below the blocking threshold is still suspicious when
// the scan found concrete indicators.
func (a *PageAnalysis) Verdict() string {
	if a.Blocked {
		return VerdictBlocked
	}
	if len(a.Indicators) > 0 || a.CaptchaFound || a.RateLimited {
		return VerdictSuspicious
	}
	return VerdictClean
}
