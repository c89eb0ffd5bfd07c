package egress

import (
	"math"
	"testing"
	"time"

	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/logger"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestHealthScoreStaysInBounds(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name  string
		point *Point
	}{
		{
			name: "pristine point",
			point: &Point{
				SuccessRate:      1.0,
				AvgResponseTime:  0.1,
				UptimePercentage: 100,
				LastSuccess:      timePtr(now),
			},
		},
		{
			name: "disaster point",
			point: &Point{
				SuccessRate:         0,
				AvgResponseTime:     30,
				ConsecutiveFailures: 12,
				UptimePercentage:    0,
				BlockedBy: map[string]bool{
					"a": true, "b": true, "c": true, "d": true, "e": true,
				},
				LastFailure: timePtr(now),
			},
		},
		{
			name: "stale point",
			point: &Point{
				SuccessRate:      0.9,
				AvgResponseTime:  1.5,
				UptimePercentage: 80,
				LastSuccess:      timePtr(now.Add(-72 * time.Hour)),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := healthScore(tt.point, now)
			if got < 0 || got > 1 {
				t.Errorf("healthScore() = %v, want within [0,1]", got)
			}
		})
	}
}

func TestHealthScoreComposition(t *testing.T) {
	t.Parallel()

	now := time.Now()
	p := &Point{
		SuccessRate:         0.8,
		AvgResponseTime:     2.0,
		ConsecutiveFailures: 1,
		UptimePercentage:    100,
		BlockedBy:           map[string]bool{"acme": true},
		LastSuccess:         timePtr(now.Add(-12 * time.Hour)),
	}

	// 0.32 success + 0.16 latency + 0.05 recency + 0.10 uptime
	// - 0.10 failures - 0.05 blocking.
	want := 0.48
	if got := healthScore(p, now); math.Abs(got-want) > 1e-9 {
		t.Errorf("healthScore() = %v, want %v", got, want)
	}
}

func TestHealthScoreNeverSucceededKeepsRecencyCredit(t *testing.T) {
	t.Parallel()

	now := time.Now()
	p := &Point{
		SuccessRate:      1.0,
		AvgResponseTime:  2.0,
		UptimePercentage: 100,
	}

	// 0.4 + 0.16 + 0.1 + 0.1 with no penalties.
	want := 0.76
	if got := healthScore(p, now); math.Abs(got-want) > 1e-9 {
		t.Errorf("healthScore() = %v, want %v", got, want)
	}
}

func TestRecencyScore(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name  string
		point *Point
		want  float64
	}{
		{name: "never succeeded", point: &Point{}, want: 0},
		{name: "just succeeded", point: &Point{LastSuccess: timePtr(now)}, want: 1},
		{name: "one day old", point: &Point{LastSuccess: timePtr(now.Add(-24 * time.Hour))}, want: math.Exp(-1)},
		{name: "two days old", point: &Point{LastSuccess: timePtr(now.Add(-48 * time.Hour))}, want: math.Exp(-2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := recencyScore(tt.point, now); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("recencyScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		load     int
		capacity int
		want     float64
	}{
		{name: "idle", load: 0, capacity: 5, want: 1.0},
		{name: "partial", load: 3, capacity: 5, want: 0.4},
		{name: "saturated", load: 5, capacity: 5, want: 0.0},
		{name: "overloaded clamps", load: 9, capacity: 5, want: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &Point{CurrentLoad: tt.load, Capacity: tt.capacity}
			if got := loadScore(p); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("loadScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectionScoreComposition(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultConfig(), logger.NewNoOp())
	p := &Point{
		ID:          "dc-1",
		SuccessRate: 0.9,
		Capacity:    5,
		PerSource:   map[string]float64{"acme": 0.5},
	}

	// 0.4*0.5 historical + 0.3*0.5 predicted + 0 recency + 0.1 load
	// + 0.05 geo.
	want := 0.5
	if got := m.selectionScore(p, "acme", "default", time.Now()); math.Abs(got-want) > 1e-9 {
		t.Errorf("selectionScore() = %v, want %v", got, want)
	}
}

func TestGeoScore(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultConfig(), logger.NewNoOp())
	m.SetSourceRequirements("acme", domain.EgressRequirements{Geo: "us"})

	tests := []struct {
		name   string
		source string
		geo    string
		want   float64
	}{
		{name: "preferred geo", source: "acme", geo: "us", want: 1.0},
		{name: "other geo", source: "acme", geo: "de", want: 0.3},
		{name: "no preference", source: "globex", geo: "de", want: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &Point{Geo: tt.geo}
			if got := m.geoScore(p, tt.source); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("geoScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPickTopCandidate(t *testing.T) {
	t.Parallel()

	three := []candidate{
		{point: &Point{ID: "first"}, score: 0.9},
		{point: &Point{ID: "second"}, score: 0.8},
		{point: &Point{ID: "third"}, score: 0.7},
	}

	tests := []struct {
		name   string
		ranked []candidate
		roll   float64
		want   string
	}{
		{name: "low roll picks best", ranked: three, roll: 0.0, want: "first"},
		{name: "just under first band", ranked: three, roll: 0.59, want: "first"},
		{name: "second band", ranked: three, roll: 0.6, want: "second"},
		{name: "third band", ranked: three, roll: 0.95, want: "third"},
		{name: "two candidates renormalize", ranked: three[:2], roll: 0.7, want: "second"},
		{name: "two candidates low roll", ranked: three[:2], roll: 0.5, want: "first"},
		{name: "single candidate", ranked: three[:1], roll: 0.99, want: "first"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := pickTopCandidate(tt.ranked, tt.roll); got.point.ID != tt.want {
				t.Errorf("pickTopCandidate(roll=%v) = %s, want %s", tt.roll, got.point.ID, tt.want)
			}
		})
	}
}

func TestIsBlockingReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		reason string
		want   bool
	}{
		{reason: "HTTP 403 Forbidden", want: true},
		{reason: "Rate Limit exceeded", want: true},
		{reason: "cloudflare challenge page", want: true},
		{reason: "CAPTCHA required", want: true},
		{reason: "connection refused", want: false},
		{reason: "context deadline exceeded", want: false},
		{reason: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			t.Parallel()
			if got := isBlockingReason(tt.reason); got != tt.want {
				t.Errorf("isBlockingReason(%q) = %v, want %v", tt.reason, got, tt.want)
			}
		})
	}
}
