package detector_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/goharvest/internal/detector"
	"github.com/jonesrussell/goharvest/internal/logger"
)

const testSource = "acme"

func newTestDetector(t *testing.T) *detector.Detector {
	t.Helper()
	return detector.New(detector.DefaultConfig(), logger.NewNoOp())
}

func productListing() string {
	var b strings.Builder
	b.WriteString(`<html><head><title>Electronics</title></head><body>`)
	for i := 0; i < 15; i++ {
		b.WriteString(`<div class="product-item"><span class="name">Widget</span>` +
			`<span class="price">$199.99</span><button>Add to cart</button></div>`)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func TestAnalyzeCaptchaInterstitial(t *testing.T) {
	t.Parallel()

	markup := `<html><head><title>One more step</title></head><body>` +
		`<div class="g-recaptcha" data-sitekey="6LeIxAcT"></div>` +
		`<iframe src="https://www.google.com/recaptcha/api2/anchor"></iframe>` +
		`</body></html>`
	require.Less(t, len(markup), 1024, "scenario needs a sub-1KB body")

	d := newTestDetector(t)
	analysis := d.Analyze(context.Background(), markup, nil, testSource, "https://acme.example/items/123")

	assert.True(t, analysis.Blocked)
	assert.GreaterOrEqual(t, analysis.Probability, 0.6)
	assert.True(t, analysis.CaptchaFound)
	assert.False(t, analysis.HasProducts)
}

func TestAnalyzeProductListingIsClean(t *testing.T) {
	t.Parallel()

	markup := productListing()
	require.Greater(t, len(markup), 1024)

	d := newTestDetector(t)
	analysis := d.Analyze(context.Background(), markup, nil, testSource, "https://acme.example/catalog")

	assert.False(t, analysis.Blocked)
	assert.Zero(t, analysis.Probability)
	assert.True(t, analysis.HasProducts)
	assert.Equal(t, detector.VerdictClean, analysis.Verdict())
	assert.Empty(t, d.Patterns().List(), "clean pages must not create patterns")
}

func TestAnalyzeRateLimitPage(t *testing.T) {
	t.Parallel()

	markup := `<html><head><title>Slow down</title></head><body>` +
		`<p>Too many requests. Rate limit exceeded. Retry after 60 seconds.</p>` +
		`</body></html>`

	d := newTestDetector(t)
	analysis := d.Analyze(context.Background(), markup, nil, testSource, "https://acme.example/catalog")

	assert.True(t, analysis.RateLimited)
	assert.True(t, analysis.Blocked, "keyword plus tiny payload crosses the threshold")
	assert.Contains(t, analysis.Indicators, "error_message: too many requests")
}

func TestAnalyzeWAFChallengeCapsAtOne(t *testing.T) {
	t.Parallel()

	markup := `<html><head><title>Attention Required | Cloudflare</title></head><body>` +
		`<div data-ray="8b1c"></div>` +
		`<form id="challenge-form"></form>` +
		`<script>window.__cf_chl_opt = {}; verify();</script>` +
		`</body></html>`

	d := newTestDetector(t)
	analysis := d.Analyze(context.Background(), markup, nil, testSource, "https://acme.example/catalog")

	assert.True(t, analysis.Blocked)
	assert.Equal(t, 1.0, analysis.Probability)
}

func TestAnalyzeCancelledContextDegrades(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newTestDetector(t)
	analysis := d.Analyze(ctx, productListing(), nil, testSource, "https://acme.example/catalog")

	assert.True(t, analysis.Blocked)
	assert.Equal(t, 1.0, analysis.Probability)
	require.NotEmpty(t, analysis.Indicators)
	assert.Contains(t, analysis.Indicators[0], "analysis error")
}

type stubClassifier struct {
	probability float64
	err         error
}

func (s stubClassifier) ClassifyBlock(_ detector.Features) (float64, error) {
	return s.probability, s.err
}

func TestAnalyzeUsesWiredClassifier(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t)
	d.SetClassifier(stubClassifier{probability: 0.9})

	analysis := d.Analyze(context.Background(), productListing(), nil, testSource, "https://acme.example/catalog")
	assert.True(t, analysis.Blocked)
	assert.Equal(t, 0.9, analysis.Probability)
}

func TestAnalyzeClassifierErrorFallsBackToRules(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t)
	d.SetClassifier(stubClassifier{err: errors.New("model unavailable")})

	analysis := d.Analyze(context.Background(), productListing(), nil, testSource, "https://acme.example/catalog")
	assert.False(t, analysis.Blocked)
	assert.Zero(t, analysis.Probability)
}

func TestAnalyzeLearnsPatternAcrossObservations(t *testing.T) {
	t.Parallel()

	markup := `<html><body><div class="g-recaptcha"></div></body></html>`
	d := newTestDetector(t)

	d.Analyze(context.Background(), markup, nil, testSource, "https://acme.example/items/123")
	d.Analyze(context.Background(), markup, nil, testSource, "https://acme.example/items/456")

	patterns := d.Patterns().List()
	require.Len(t, patterns, 1, "same URL shape and verdict must collapse into one pattern")
	assert.Equal(t, 2, patterns[0].Frequency)
	assert.InDelta(t, 0.6, patterns[0].Confidence, 1e-9)
	assert.Equal(t, "acme.example/items/{id}", patterns[0].URLPattern)
	assert.NotEmpty(t, patterns[0].Suggestions)
}

func TestReportSurfacesDominantErrorType(t *testing.T) {
	t.Parallel()

	captchaMarkup := `<html><body><div class="g-recaptcha"></div></body></html>`
	d := newTestDetector(t)
	for i := 0; i < 3; i++ {
		d.Analyze(context.Background(), captchaMarkup, nil, testSource, "https://acme.example/items/9")
	}

	report := d.Report("", time.Hour)
	assert.Equal(t, 1, report.TotalPatterns)
	assert.Equal(t, 1, report.ByErrorType[detector.ErrorTypeCaptcha])
	require.NotEmpty(t, report.Recommendations)
	assert.Contains(t, report.Recommendations[0], "captcha")
}

func TestSourceSelectorsOverrideProductDetection(t *testing.T) {
	t.Parallel()

	cfg := detector.DefaultConfig()
	cfg.ProductSelectors["acme"] = []string{"[data-testid=sku-tile]"}
	d := detector.New(cfg, logger.NewNoOp())

	markup := `<html><body>` + strings.Repeat(`<div data-testid="sku-tile">thing</div>`, 40) + `</body></html>`
	analysis := d.Analyze(context.Background(), markup, nil, "acme", "https://acme.example/catalog")
	assert.True(t, analysis.HasProducts)
}

type stubMetricsSink struct {
	probabilities []float64
	errorTypes    []string
}

func (s *stubMetricsSink) RecordBlockingProbability(probability float64) {
	s.probabilities = append(s.probabilities, probability)
}

func (s *stubMetricsSink) RecordPatternLearned(errorType string) {
	s.errorTypes = append(s.errorTypes, errorType)
}

func TestAnalyzeDrivesMetricsSink(t *testing.T) {
	t.Parallel()

	markup := `<html><head><title>One more step</title></head><body>` +
		`<div class="g-recaptcha" data-sitekey="6LeIxAcT"></div>` +
		`</body></html>`

	sink := &stubMetricsSink{}
	d := newTestDetector(t)
	d.SetMetrics(sink)

	d.Analyze(context.Background(), markup, nil, testSource, "https://acme.example/items/123")
	d.Analyze(context.Background(), productListing(), nil, testSource, "https://acme.example/catalog")

	// Every analysis lands in the probability distribution; only the
	// blocked one creates a pattern.
	require.Len(t, sink.probabilities, 2)
	assert.GreaterOrEqual(t, sink.probabilities[0], 0.6)
	assert.Zero(t, sink.probabilities[1])
	require.Len(t, sink.errorTypes, 1)
	assert.Equal(t, detector.ErrorTypeCaptcha, sink.errorTypes[0])
}

func TestDegradedAnalysisStillRecordsProbability(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &stubMetricsSink{}
	d := newTestDetector(t)
	d.SetMetrics(sink)

	d.Analyze(ctx, productListing(), nil, testSource, "https://acme.example/catalog")

	require.Len(t, sink.probabilities, 1)
	assert.Equal(t, 1.0, sink.probabilities[0])
}
