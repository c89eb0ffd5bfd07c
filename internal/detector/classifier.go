package detector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Rule weights for the fallback probability. Probabilities cap at 1.0.
const (
	weightKeyword      = 0.3
	weightCaptcha      = 0.4
	weightWAF          = 0.35
	weightTinyPayload  = 0.2
	weightVerification = 0.15
)

// tinyPayloadBytes is the markup size under which a response is
// treated as suspiciously small.
const tinyPayloadBytes = 1 << 10

// Features is the structural description of one page handed to a
// block classifier.
type Features struct {
	ContentLength      int  `json:"content_length"`
	Elements           int  `json:"elements"`
	Scripts            int  `json:"scripts"`
	Images             int  `json:"images"`
	Links              int  `json:"links"`
	Forms              int  `json:"forms"`
	Iframes            int  `json:"iframes"`
	TextLength         int  `json:"text_length"`
	Words              int  `json:"words"`
	KeywordHit         bool `json:"keyword_hit"`
	CaptchaElement     bool `json:"captcha_element"`
	WAFFingerprint     bool `json:"waf_fingerprint"`
	TinyPayload        bool `json:"tiny_payload"`
	VerificationScript bool `json:"verification_script"`
}

// Classifier turns page features into a blocking probability. A
// trained model can be plugged in via Detector.SetClassifier; when
// none is wired, or the model errors, the rule weights decide.
type Classifier interface {
	ClassifyBlock(features Features) (float64, error)
}

// ruleBasedProbability is the deterministic fallback. Each indicator
// contributes a fixed weight and the sum caps at 1.0.
func ruleBasedProbability(f Features) float64 {
	score := 0.0
	if f.KeywordHit {
		score += weightKeyword
	}
	if f.CaptchaElement {
		score += weightCaptcha
	}
	if f.WAFFingerprint {
		score += weightWAF
	}
	if f.TinyPayload {
		score += weightTinyPayload
	}
	if f.VerificationScript {
		score += weightVerification
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// blockingKeywords is scanned against the page title and visible text.
var blockingKeywords = []string{
	"blocked",
	"forbidden",
	"403",
	"429",
	"rate limit",
	"too many requests",
	"access denied",
	"cloudflare",
	"captcha",
	"bot detected",
	"bot detection",
	"suspicious activity",
	"temporary block",
	"ip banned",
}

// verificationWords mark challenge scripts.
var verificationWords = []string{"challenge", "verify", "protection"}

// extractFeatures walks the parsed document once and fills the
// feature vector used by both the classifier and the rule fallback.
func extractFeatures(doc *goquery.Document, markup string) Features {
	text := doc.Text()
	lowerText := strings.ToLower(text)
	title := strings.ToLower(doc.Find("title").Text())

	f := Features{
		ContentLength: len(markup),
		Elements:      doc.Find("*").Length(),
		Scripts:       doc.Find("script").Length(),
		Images:        doc.Find("img").Length(),
		Links:         doc.Find("a").Length(),
		Forms:         doc.Find("form").Length(),
		Iframes:       doc.Find("iframe").Length(),
		TextLength:    len(text),
		Words:         len(strings.Fields(text)),
		TinyPayload:   len(strings.TrimSpace(markup)) < tinyPayloadBytes,
	}

	for _, keyword := range blockingKeywords {
		if strings.Contains(lowerText, keyword) || strings.Contains(title, keyword) {
			f.KeywordHit = true
			break
		}
	}

	f.CaptchaElement = hasCaptchaElement(doc)
	f.WAFFingerprint = hasWAFFingerprint(doc, strings.ToLower(markup))

	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		body := strings.ToLower(s.Text())
		if body == "" {
			return true
		}
		for _, word := range verificationWords {
			if strings.Contains(body, word) {
				f.VerificationScript = true
				return false
			}
		}
		return true
	})

	return f
}

// hasCaptchaElement recognizes the widely deployed CAPTCHA widgets
// plus the Cloudflare challenge form.
func hasCaptchaElement(doc *goquery.Document) bool {
	if doc.Find("div.g-recaptcha").Length() > 0 {
		return true
	}
	if doc.Find("div.h-captcha").Length() > 0 {
		return true
	}
	if doc.Find("form#challenge-form").Length() > 0 {
		return true
	}

	found := false
	doc.Find("iframe").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, ok := s.Attr("src")
		if ok && strings.Contains(strings.ToLower(src), "captcha") {
			found = true
			return false
		}
		return true
	})
	return found
}

// hasWAFFingerprint recognizes Cloudflare-style interstitials by
// their data-ray marker or vendor strings in the raw markup.
func hasWAFFingerprint(doc *goquery.Document, lowerMarkup string) bool {
	if doc.Find("[data-ray]").Length() > 0 {
		return true
	}
	return strings.Contains(lowerMarkup, "cloudflare") ||
		strings.Contains(lowerMarkup, "cdn-cgi/challenge")
}
