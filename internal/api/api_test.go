package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/goharvest/internal/api"
	"github.com/jonesrussell/goharvest/internal/config"
	"github.com/jonesrussell/goharvest/internal/detector"
	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/egress"
	"github.com/jonesrussell/goharvest/internal/logger"
	"github.com/jonesrussell/goharvest/internal/orchestrator"
)

// stubScheduler records submissions and serves canned responses.
type stubScheduler struct {
	accept    bool
	scheduled []*domain.Job
	recent    []*domain.Job
	report    *orchestrator.DiagnosticReport
	diagErr   error
}

func (s *stubScheduler) Schedule(job *domain.Job) bool {
	s.scheduled = append(s.scheduled, job)
	return s.accept
}

func (s *stubScheduler) RecentJobs(limit int) []*domain.Job {
	if limit < len(s.recent) {
		return s.recent[:limit]
	}
	return s.recent
}

func (s *stubScheduler) Statistics() orchestrator.Statistics {
	return orchestrator.Statistics{Running: true, QueueDepth: 3}
}

func (s *stubScheduler) Diagnose(_ context.Context, source, url string) (*orchestrator.DiagnosticReport, error) {
	if s.diagErr != nil {
		return nil, s.diagErr
	}
	report := *s.report
	report.Source = source
	report.URL = url
	return &report, nil
}

type stubEgress struct{}

func (stubEgress) Statistics() egress.Statistics {
	return egress.Statistics{Total: 2, Available: 1}
}

type stubPatterns struct {
	lastSource string
	lastWindow time.Duration
}

func (s *stubPatterns) Report(source string, window time.Duration) detector.Report {
	s.lastSource = source
	s.lastWindow = window
	return detector.Report{Source: source, Window: window, TotalPatterns: 1}
}

func newTestRouter(t *testing.T, scheduler *stubScheduler) (http.Handler, *stubPatterns) {
	t.Helper()

	patterns := &stubPatterns{}
	cfg := &config.ServerConfig{Address: ":0"}
	router, _ := api.SetupRouter(cfg, api.Deps{
		Logger:    logger.NewNoOp(),
		Scheduler: scheduler,
		Egress:    stubEgress{},
		Patterns:  patterns,
	})
	return router, patterns
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t, &stubScheduler{accept: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	assert.Equal(t, http.StatusOK, w.Code)
}

type stubHealth struct{ healthy bool }

func (s stubHealth) IsHealthy() bool { return s.healthy }

func TestHealthz_ReflectsReporter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		healthy        bool
		expectedStatus int
	}{
		{name: "healthy", healthy: true, expectedStatus: http.StatusOK},
		{name: "unhealthy", healthy: false, expectedStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &config.ServerConfig{Address: ":0"}
			router, _ := api.SetupRouter(cfg, api.Deps{
				Logger:    logger.NewNoOp(),
				Scheduler: &stubScheduler{accept: true},
				Egress:    stubEgress{},
				Patterns:  &stubPatterns{},
				Health:    stubHealth{healthy: tt.healthy},
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			if tt.healthy {
				assert.Equal(t, "ok", resp["status"])
			} else {
				assert.Equal(t, "unhealthy", resp["status"])
			}
		})
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t, &stubScheduler{accept: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", http.NoBody))

	require.Equal(t, http.StatusOK, w.Code)

	var resp api.StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Orchestrator.Running)
	assert.Equal(t, 3, resp.Orchestrator.QueueDepth)
	assert.Equal(t, 2, resp.Egress.Total)
}

func TestSubmitJob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		accept         bool
		body           string
		expectedStatus int
	}{
		{
			name:           "accepted",
			accept:         true,
			body:           `{"source":"acme","category":"widgets","url":"https://acme.test/widgets","tier":1}`,
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "rejected by scheduler",
			accept:         false,
			body:           `{"source":"acme","url":"https://acme.test/widgets"}`,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "missing source",
			accept:         true,
			body:           `{"url":"https://acme.test"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "malformed payload",
			accept:         true,
			body:           `{"source":`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			scheduler := &stubScheduler{accept: tt.accept}
			router, _ := newTestRouter(t, scheduler)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestSubmitJob_InvalidTierFallsBackToMedium(t *testing.T) {
	t.Parallel()

	scheduler := &stubScheduler{accept: true}
	router, _ := newTestRouter(t, scheduler)

	body := `{"source":"acme","url":"https://acme.test","tier":9}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, scheduler.scheduled, 1)
	assert.Equal(t, domain.TierMedium, scheduler.scheduled[0].Tier)
}

func TestRecentJobs(t *testing.T) {
	t.Parallel()

	scheduler := &stubScheduler{
		accept: true,
		recent: []*domain.Job{
			domain.NewJob("acme", "widgets", "https://acme.test/1", domain.TierCritical),
			domain.NewJob("acme", "widgets", "https://acme.test/2", domain.TierCritical),
		},
	}
	router, _ := newTestRouter(t, scheduler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?limit=1", http.NoBody))

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Jobs []*domain.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Jobs, 1)
}

func TestRecentJobs_InvalidLimit(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t, &stubScheduler{accept: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?limit=bogus", http.NoBody))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPatterns(t *testing.T) {
	t.Parallel()

	router, patterns := newTestRouter(t, &stubScheduler{accept: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(
		http.MethodGet, "/api/v1/patterns?source=acme&window=1h", http.NoBody))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acme", patterns.lastSource)
	assert.Equal(t, time.Hour, patterns.lastWindow)
}

func TestDiagnose(t *testing.T) {
	t.Parallel()

	scheduler := &stubScheduler{
		accept: true,
		report: &orchestrator.DiagnosticReport{Verdict: detector.VerdictBlocked},
	}
	router, _ := newTestRouter(t, scheduler)

	body := `{"source":"acme","url":"https://acme.test/widgets"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/diagnose", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var report orchestrator.DiagnosticReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "acme", report.Source)
	assert.Equal(t, detector.VerdictBlocked, report.Verdict)
}

func TestDiagnose_FetchError(t *testing.T) {
	t.Parallel()

	scheduler := &stubScheduler{
		accept:  true,
		diagErr: errors.New("no egress available"),
	}
	router, _ := newTestRouter(t, scheduler)

	body := `{"source":"acme"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/diagnose", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}
