package detector

import (
	"bytes"
	"image"
	"math"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Visual heuristic thresholds over sampled pixels.
const (
	// blankStdDev is the luminance deviation below which the page
	// renders as a uniform surface.
	blankStdDev = 10.0
	// redDominanceRatio is the share of red-dominant pixels that
	// marks an error page.
	redDominanceRatio = 0.3
	// gridEdgeDensity is the edge share above which dense geometric
	// structure, typical of challenge widgets, is flagged.
	gridEdgeDensity = 0.08
	// minimalEdgeDensity is the edge share below which the page
	// carries almost no rendered text.
	minimalEdgeDensity = 0.005
	// edgeDelta is the luminance step counted as an edge.
	edgeDelta = 40.0
	// sampleStride is the pixel sampling step.
	sampleStride = 4
)

// analyzeScreenshot flags visual anomalies typical of challenge and
// error pages. Findings only annotate the analysis; the blocking
// probability comes from the markup pipeline.
func analyzeScreenshot(screenshot []byte) []string {
	img, _, err := image.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return []string{"screenshot_decode_error"}
	}

	stats := samplePixels(img)
	if stats.samples == 0 {
		return []string{"screenshot_empty"}
	}

	var findings []string
	if stats.lumStdDev() < blankStdDev {
		findings = append(findings, "uniform_blank_page")
	}
	if stats.redRatio() > redDominanceRatio {
		findings = append(findings, "high_red_content")
	}
	switch density := stats.edgeDensity(); {
	case density > gridEdgeDensity:
		findings = append(findings, "geometric_patterns_detected")
	case density < minimalEdgeDensity:
		findings = append(findings, "minimal_text_detected")
	}
	return findings
}

type pixelStats struct {
	samples     int
	lumSum      float64
	lumSquares  float64
	redDominant int
	edges       int
	edgePairs   int
}

// samplePixels walks the image on a fixed stride collecting luminance
// moments, red dominance and horizontal edge counts in one pass.
func samplePixels(img image.Image) pixelStats {
	var stats pixelStats
	bounds := img.Bounds()

	for y := bounds.Min.Y; y < bounds.Max.Y; y += sampleStride {
		prev := -1.0
		for x := bounds.Min.X; x < bounds.Max.X; x += sampleStride {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			r := float64(r16 >> 8)
			g := float64(g16 >> 8)
			b := float64(b16 >> 8)

			lum := 0.299*r + 0.587*g + 0.114*b
			stats.samples++
			stats.lumSum += lum
			stats.lumSquares += lum * lum

			if r > 120 && r > 1.5*g && r > 1.5*b {
				stats.redDominant++
			}

			if prev >= 0 {
				stats.edgePairs++
				if math.Abs(lum-prev) > edgeDelta {
					stats.edges++
				}
			}
			prev = lum
		}
	}
	return stats
}

func (s pixelStats) lumStdDev() float64 {
	if s.samples == 0 {
		return 0
	}
	mean := s.lumSum / float64(s.samples)
	variance := s.lumSquares/float64(s.samples) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func (s pixelStats) redRatio() float64 {
	if s.samples == 0 {
		return 0
	}
	return float64(s.redDominant) / float64(s.samples)
}

func (s pixelStats) edgeDensity() float64 {
	if s.edgePairs == 0 {
		return 0
	}
	return float64(s.edges) / float64(s.edgePairs)
}
