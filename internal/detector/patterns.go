package detector

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonesrussell/goharvest/internal/state"
)

const (
	// initialConfidence is where a freshly observed pattern starts;
	// each repeat observation adds confidenceStep up to 1.0.
	initialConfidence = 0.5
	confidenceStep    = 0.1

	// maxSignatures bounds the representative evidence kept per
	// pattern.
	maxSignatures = 5

	// maxReportPatterns bounds the top pattern list in reports.
	maxReportPatterns = 10

	// longSegment is the path segment length above which a segment is
	// generalized as an opaque identifier.
	longSegment = 20
)

// Error types a failure pattern can be classified as.
const (
	ErrorTypeCaptcha   = "captcha"
	ErrorTypeRateLimit = "rate_limit"
	ErrorTypeWAF       = "waf"
	ErrorTypeEmpty     = "empty_response"
	ErrorTypeNoItems   = "no_products"
	ErrorTypeUnknown   = "unknown_blocking"
)

// FailurePattern aggregates repeated failure observations that share
// a source, URL shape and verdict.
type FailurePattern struct {
	Key         string    `json:"key"`
	Source      string    `json:"source"`
	URLPattern  string    `json:"url_pattern"`
	Verdict     string    `json:"verdict"`
	ErrorType   string    `json:"error_type"`
	Frequency   int       `json:"frequency"`
	Confidence  float64   `json:"confidence"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Signatures  []string  `json:"signatures,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// PatternStore keeps the learned failure patterns. Patterns only ever
// leave through retention cleanup.
type PatternStore struct {
	mu       sync.RWMutex
	patterns map[string]*FailurePattern
}

func newPatternStore() *PatternStore {
	return &PatternStore{patterns: make(map[string]*FailurePattern)}
}

// Observe folds one non-clean analysis into the store and returns the
// touched pattern. Clean analyses return nil.
func (s *PatternStore) Observe(analysis *PageAnalysis) *FailurePattern {
	verdict := analysis.Verdict()
	if verdict == VerdictClean {
		return nil
	}

	urlPattern := generalizeURL(analysis.URL)
	key := analysis.Source + "|" + urlPattern + "|" + verdict

	signatures := analysis.Indicators
	if len(signatures) > 3 {
		signatures = signatures[:3]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pattern, exists := s.patterns[key]
	if !exists {
		pattern = &FailurePattern{
			Key:        key,
			Source:     analysis.Source,
			URLPattern: urlPattern,
			Verdict:    verdict,
			ErrorType:  classifyErrorType(analysis),
			Frequency:  1,
			Confidence: initialConfidence,
			FirstSeen:  analysis.AnalyzedAt,
			LastSeen:   analysis.AnalyzedAt,
		}
		pattern.Suggestions = recoverySuggestions(pattern.ErrorType)
		s.patterns[key] = pattern
	} else {
		pattern.Frequency++
		pattern.LastSeen = analysis.AnalyzedAt
		pattern.Confidence = pattern.Confidence + confidenceStep
		if pattern.Confidence > 1.0 {
			pattern.Confidence = 1.0
		}
	}

	for _, signature := range signatures {
		if !slices.Contains(pattern.Signatures, signature) {
			pattern.Signatures = append(pattern.Signatures, signature)
		}
	}
	if len(pattern.Signatures) > maxSignatures {
		pattern.Signatures = pattern.Signatures[len(pattern.Signatures)-maxSignatures:]
	}

	return pattern.copy()
}

// Get returns one pattern by key.
func (s *PatternStore) Get(key string) (*FailurePattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pattern, ok := s.patterns[key]
	if !ok {
		return nil, false
	}
	return pattern.copy(), true
}

// List returns every pattern, most frequent first.
func (s *PatternStore) List() []*FailurePattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*FailurePattern, 0, len(s.patterns))
	for _, pattern := range s.patterns {
		out = append(out, pattern.copy())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// ForSource returns the patterns learned for one source, most
// frequent first.
func (s *PatternStore) ForSource(source string) []*FailurePattern {
	all := s.List()
	out := all[:0]
	for _, pattern := range all {
		if pattern.Source == source {
			out = append(out, pattern)
		}
	}
	return out
}

// CleanupOldPatterns removes patterns not observed within maxAge and
// returns how many were dropped.
func (s *PatternStore) CleanupOldPatterns(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, pattern := range s.patterns {
		if pattern.LastSeen.Before(cutoff) {
			delete(s.patterns, key)
			removed++
		}
	}
	return removed
}

// SaveTo checkpoints the pattern store through the state store.
func (s *PatternStore) SaveTo(ctx context.Context, store *state.Store) error {
	s.mu.RLock()
	snapshot := make(map[string]*FailurePattern, len(s.patterns))
	for key, pattern := range s.patterns {
		snapshot[key] = pattern.copy()
	}
	s.mu.RUnlock()

	if err := store.Persist(ctx, state.KeyPatterns, snapshot); err != nil {
		return fmt.Errorf("saving failure patterns: %w", err)
	}
	return nil
}

// LoadFrom restores patterns saved by an earlier run, merging over
// anything already present.
func (s *PatternStore) LoadFrom(ctx context.Context, store *state.Store) error {
	var snapshot map[string]*FailurePattern
	if err := store.Load(ctx, state.KeyPatterns, &snapshot); err != nil {
		return fmt.Errorf("loading failure patterns: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, pattern := range snapshot {
		if pattern == nil || key == "" {
			continue
		}
		s.patterns[key] = pattern
	}
	return nil
}

func (p *FailurePattern) copy() *FailurePattern {
	c := *p
	c.Signatures = append([]string(nil), p.Signatures...)
	c.Suggestions = append([]string(nil), p.Suggestions...)
	return &c
}

// generalizeURL reduces a URL to its shape: numeric path segments
// become {id} and opaque long segments become {long_id}, so repeat
// failures across item pages collapse into one pattern.
func generalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if i := strings.IndexByte(rawURL, '?'); i >= 0 {
			return rawURL[:i]
		}
		return rawURL
	}

	segments := strings.Split(parsed.Path, "/")
	for i, segment := range segments {
		switch {
		case segment == "":
		case isDigits(segment):
			segments[i] = "{id}"
		case len(segment) > longSegment:
			segments[i] = "{long_id}"
		}
	}
	return parsed.Host + strings.Join(segments, "/")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// classifyErrorType names the dominant indicator category of one
// analysis.
func classifyErrorType(analysis *PageAnalysis) string {
	switch {
	case analysis.CaptchaFound:
		return ErrorTypeCaptcha
	case analysis.RateLimited:
		return ErrorTypeRateLimit
	case strings.Contains(strings.ToLower(strings.Join(analysis.Indicators, " ")), "cloudflare"):
		return ErrorTypeWAF
	case analysis.ContentLength < tinyPayloadBytes:
		return ErrorTypeEmpty
	case !analysis.HasProducts:
		return ErrorTypeNoItems
	default:
		return ErrorTypeUnknown
	}
}

// recoverySuggestions ranks mitigations for one error type.
func recoverySuggestions(errorType string) []string {
	switch errorType {
	case ErrorTypeCaptcha:
		return []string{
			"rotate to a different egress identity",
			"slow down the request rate for this source",
			"switch the user agent before retrying",
		}
	case ErrorTypeRateLimit:
		return []string{
			"apply exponential backoff before the next attempt",
			"reduce concurrency for this source",
			"rotate egress points more frequently",
		}
	case ErrorTypeWAF:
		return []string{
			"switch to a residential egress class",
			"use a browser-grade fetcher for this source",
			"change egress geography",
		}
	case ErrorTypeEmpty:
		return []string{
			"verify the target URL still resolves to a listing",
			"retry through a different egress point",
		}
	case ErrorTypeNoItems:
		return []string{
			"review the product selectors for this source",
			"check whether the page layout changed",
		}
	default:
		return []string{
			"review recent markup for this source",
			"inspect detector indicators on the latest captures",
		}
	}
}
