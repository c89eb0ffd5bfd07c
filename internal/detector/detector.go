package detector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/goharvest/internal/logger"
)

// commerceKeywords hint that a page is a live product listing rather
// than an interstitial.
var commerceKeywords = []string{
	"price", "$", "product", "add to cart", "buy", "in stock",
	"cart", "checkout", "sku",
}

// minCommerceKeywords is how many commerce keywords a page needs
// before it counts as carrying products, absent a matching selector.
const minCommerceKeywords = 3

// defaultProductSelectors is tried for sources without configured
// selectors.
var defaultProductSelectors = []string{".product-item", ".product", ".item"}

// errorMessages are scanned verbatim for the indicator list.
var errorMessages = []string{
	"access denied", "forbidden", "blocked", "rate limit exceeded",
	"too many requests", "temporarily unavailable", "service unavailable",
	"cloudflare security", "bot detection", "suspicious activity",
}

// rateLimitPhrases mark throttling responses.
var rateLimitPhrases = []string{
	"rate limit", "too many requests", "429", "retry after",
	"request limit", "api limit", "throttled",
}

// Config tunes the detector.
type Config struct {
	// ProductSelectors maps a source name to the CSS selectors that
	// identify product entries on its pages.
	ProductSelectors map[string][]string
	// PatternRetention is how long unobserved failure patterns are
	// kept before cleanup removes them.
	PatternRetention time.Duration
}

// DefaultConfig returns the detector tuning the control plane ships
// with.
func DefaultConfig() Config {
	return Config{
		ProductSelectors: make(map[string][]string),
		PatternRetention: 7 * 24 * time.Hour,
	}
}

// Metrics receives analysis outcomes. The Prometheus collectors
// satisfy it; a nil sink disables export.
type Metrics interface {
	RecordBlockingProbability(probability float64)
	RecordPatternLearned(errorType string)
}

// Detector classifies fetched pages as blocked, suspicious or clean
// and learns recurring failure patterns per source.
type Detector struct {
	cfg        Config
	classifier Classifier
	patterns   *PatternStore
	metrics    Metrics
	log        logger.Interface
}

// New builds a detector with the rule-based probability fallback and
// an empty pattern store.
func New(cfg Config, log logger.Interface) *Detector {
	if cfg.ProductSelectors == nil {
		cfg.ProductSelectors = make(map[string][]string)
	}
	if cfg.PatternRetention <= 0 {
		cfg.PatternRetention = 7 * 24 * time.Hour
	}
	return &Detector{
		cfg:      cfg,
		patterns: newPatternStore(),
		log:      log.WithComponent("detector"),
	}
}

// SetClassifier wires a trained model in front of the rule fallback.
func (d *Detector) SetClassifier(c Classifier) {
	d.classifier = c
}

// SetMetrics wires the analysis metrics sink.
func (d *Detector) SetMetrics(m Metrics) {
	d.metrics = m
}

// Patterns exposes the learned failure patterns.
func (d *Detector) Patterns() *PatternStore {
	return d.patterns
}

// Analyze inspects one fetched page and returns a verdict. Any
// internal failure degrades to a conservative blocked verdict so
// callers never schedule optimistically on bad diagnostic input.
func (d *Detector) Analyze(ctx context.Context, markup string, screenshot []byte, source, pageURL string) PageAnalysis {
	start := time.Now()
	analysis := PageAnalysis{
		URL:           pageURL,
		Source:        source,
		AnalyzedAt:    start,
		ContentLength: len(markup),
	}

	if err := ctx.Err(); err != nil {
		return d.degraded(analysis, start, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return d.degraded(analysis, start, fmt.Errorf("parsing markup: %w", err))
	}

	features := extractFeatures(doc, markup)
	analysis.Probability = d.probability(features)
	analysis.Blocked = analysis.Probability >= blockedThreshold
	analysis.Indicators = findIndicators(doc, strings.ToLower(doc.Text()))
	analysis.CaptchaFound = features.CaptchaElement
	analysis.RateLimited = isRateLimited(doc)
	analysis.HasProducts = d.hasProducts(doc, source)

	if len(screenshot) > 0 {
		analysis.VisualFindings = analyzeScreenshot(screenshot)
	}

	analysis.Duration = time.Since(start)
	if d.metrics != nil {
		d.metrics.RecordBlockingProbability(analysis.Probability)
	}

	if pattern := d.patterns.Observe(&analysis); pattern != nil {
		if d.metrics != nil {
			d.metrics.RecordPatternLearned(pattern.ErrorType)
		}
		d.log.Info("failure pattern observed",
			"source", source,
			"url_pattern", pattern.URLPattern,
			"verdict", pattern.Verdict,
			"error_type", pattern.ErrorType,
			"frequency", pattern.Frequency,
			"confidence", pattern.Confidence,
		)
	}

	return analysis
}

// probability asks the wired classifier first and falls back to the
// rule weights when it is absent or errors.
func (d *Detector) probability(f Features) float64 {
	if d.classifier != nil {
		p, err := d.classifier.ClassifyBlock(f)
		if err == nil && p >= 0 && p <= 1 {
			return p
		}
		if err != nil {
			d.log.Warn("classifier failed, using rule fallback", "error", err)
		}
	}
	return ruleBasedProbability(f)
}

// degraded is the conservative verdict for analysis failures.
func (d *Detector) degraded(analysis PageAnalysis, start time.Time, err error) PageAnalysis {
	d.log.Error("page analysis failed", "url", analysis.URL, "source", analysis.Source, "error", err)
	analysis.Blocked = true
	analysis.Probability = 1.0
	analysis.Indicators = []string{fmt.Sprintf("analysis error: %v", err)}
	analysis.Duration = time.Since(start)
	if d.metrics != nil {
		d.metrics.RecordBlockingProbability(analysis.Probability)
	}
	return analysis
}

// hasProducts checks the source's configured selectors first, then
// falls back to counting commerce keywords in the visible text.
func (d *Detector) hasProducts(doc *goquery.Document, source string) bool {
	selectors, ok := d.cfg.ProductSelectors[source]
	if !ok {
		selectors = defaultProductSelectors
	}
	for _, selector := range selectors {
		if doc.Find(selector).Length() > 0 {
			return true
		}
	}

	text := strings.ToLower(doc.Text())
	hits := 0
	for _, keyword := range commerceKeywords {
		if strings.Contains(text, keyword) {
			hits++
		}
	}
	return hits >= minCommerceKeywords
}

// findIndicators collects the concrete evidence list for the
// analysis: matched error messages plus structural error markers.
func findIndicators(doc *goquery.Document, lowerText string) []string {
	var indicators []string

	for _, message := range errorMessages {
		if strings.Contains(lowerText, message) {
			indicators = append(indicators, "error_message: "+message)
		}
	}

	errorDiv := false
	doc.Find("div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, ok := s.Attr("class")
		if ok && strings.Contains(strings.ToLower(class), "error") {
			errorDiv = true
			return false
		}
		return true
	})
	if errorDiv {
		indicators = append(indicators, "error_div_found")
	}

	title := strings.ToLower(doc.Find("title").Text())
	for _, word := range []string{"error", "forbidden", "denied"} {
		if strings.Contains(title, word) {
			indicators = append(indicators, "error_in_title")
			break
		}
	}

	noindex := false
	doc.Find(`meta[name="robots"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		content, ok := s.Attr("content")
		if ok && strings.Contains(strings.ToLower(content), "noindex") {
			noindex = true
			return false
		}
		return true
	})
	if noindex {
		indicators = append(indicators, "noindex_meta_tag")
	}

	return indicators
}

// isRateLimited scans the visible text for throttling phrases.
func isRateLimited(doc *goquery.Document) bool {
	text := strings.ToLower(doc.Text())
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
