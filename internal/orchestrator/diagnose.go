package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/goharvest/internal/detector"
	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/egress"
)

const (
	// reportWindow bounds the pattern aggregation included in a
	// diagnostic report.
	reportWindow = 24 * time.Hour

	// exhaustedDiagnoseTimeout bounds the background diagnosis that
	// follows an exhausted job.
	exhaustedDiagnoseTimeout = 2 * time.Minute
)

// DiagnosticReport is the result of an on-demand deep diagnosis of
// one source URL.
type DiagnosticReport struct {
	Source              string                     `json:"source"`
	URL                 string                     `json:"url"`
	GeneratedAt         time.Time                  `json:"generated_at"`
	EgressID            string                     `json:"egress_id,omitempty"`
	StatusCode          int                        `json:"status_code"`
	Success             bool                       `json:"success"`
	ErrorReason         string                     `json:"error_reason,omitempty"`
	ItemsFound          int                        `json:"items_found"`
	FetchDuration       time.Duration              `json:"fetch_duration"`
	Analysis            detector.PageAnalysis      `json:"analysis"`
	Verdict             string                     `json:"verdict"`
	BreakerState        string                     `json:"breaker_state"`
	ConsecutiveFailures int                        `json:"consecutive_failures"`
	Patterns            []*detector.FailurePattern `json:"patterns,omitempty"`
	Recommendations     []string                   `json:"recommendations,omitempty"`
}

// Diagnose fetches one URL through the configured egress policy and
// runs the full analysis pipeline on the response. The egress result
// is recorded; the breaker is left alone so diagnostics cannot trip a
// source. An empty pageURL falls back to the source's first target.
func (o *Orchestrator) Diagnose(ctx context.Context, source, pageURL string) (*DiagnosticReport, error) {
	o.mu.RLock()
	profile, ok := o.sources[source]
	var (
		failures int
		category string
		tier     domain.Tier
		timeout  time.Duration
		fallback string
	)
	if ok {
		failures = profile.ConsecutiveFailures
		category = profile.Category
		tier = profile.Tier
		timeout = profile.Timeout
		if len(profile.URLs) > 0 {
			fallback = profile.URLs[0]
		}
	}
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}

	if pageURL == "" {
		pageURL = fallback
	}
	if pageURL == "" {
		return nil, fmt.Errorf("%w: no url to diagnose for %s", ErrInvalidJob, source)
	}

	job := domain.NewJob(source, category, pageURL, tier)
	if timeout > 0 {
		job.Timeout = timeout
	}

	var point *egress.Point
	if p, err := o.egress.GetOptimalEgress(source, category, job.Priority); err == nil {
		point = p
		job.EgressID = p.ID
	} else {
		o.log.Debug("diagnosing without egress", "source", source, "error", err.Error())
	}

	fctx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	result, err := o.fetcher.Fetch(fctx, job, point)
	if err != nil {
		result = &domain.FetchResult{Success: false, ErrorReason: err.Error()}
	}
	if result == nil {
		result = &domain.FetchResult{Success: false, ErrorReason: "fetcher returned no result"}
	}

	analysis := o.detector.Analyze(ctx, string(result.Content), result.Screenshot, source, pageURL)

	if point != nil {
		reason := result.ErrorReason
		if reason == "" && analysis.Blocked {
			reason = blockedReason(&analysis)
		}
		success := result.Success && !analysis.Blocked
		if recErr := o.egress.RecordResult(point.ID, source, success, result.Duration, reason, result.Bytes); recErr != nil {
			o.log.Warn("recording diagnostic egress result failed",
				"egress_id", point.ID,
				"error", recErr.Error(),
			)
		}
	}

	patternReport := o.detector.Report(source, reportWindow)

	report := &DiagnosticReport{
		Source:              source,
		URL:                 pageURL,
		GeneratedAt:         time.Now(),
		EgressID:            job.EgressID,
		StatusCode:          result.StatusCode,
		Success:             result.Success,
		ErrorReason:         result.ErrorReason,
		ItemsFound:          result.ItemsFound,
		FetchDuration:       result.Duration,
		Analysis:            analysis,
		Verdict:             analysis.Verdict(),
		BreakerState:        o.breakers.Get(source).State().String(),
		ConsecutiveFailures: failures,
		Patterns:            o.detector.Patterns().ForSource(source),
		Recommendations:     patternReport.Recommendations,
	}

	o.log.Info("diagnosis complete",
		"source", source,
		"url", pageURL,
		"verdict", report.Verdict,
		"probability", analysis.Probability,
		"status", result.StatusCode,
	)
	return report, nil
}

// diagnoseExhausted runs a background diagnosis after a job exhausts
// its retries.
func (o *Orchestrator) diagnoseExhausted(job *domain.Job) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), exhaustedDiagnoseTimeout)
		defer cancel()
		if _, err := o.Diagnose(ctx, job.Source, job.URL); err != nil {
			o.log.Warn("post-failure diagnosis failed",
				"job_id", job.ID,
				"source", job.Source,
				"error", err.Error(),
			)
		}
	}()
}
