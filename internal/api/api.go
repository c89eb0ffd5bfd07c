// Package api implements the HTTP surface of the control plane:
// health, statistics, job submission, egress and pattern reports, and
// on-demand diagnosis.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/goharvest/internal/api/middleware"
	"github.com/jonesrussell/goharvest/internal/config"
	"github.com/jonesrussell/goharvest/internal/detector"
	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/egress"
	"github.com/jonesrussell/goharvest/internal/logger"
	"github.com/jonesrussell/goharvest/internal/orchestrator"
)

// Scheduler is the orchestrator surface the API needs.
type Scheduler interface {
	// Schedule submits a job; false means rejected.
	Schedule(job *domain.Job) bool

	// RecentJobs returns finished jobs, newest first.
	RecentJobs(limit int) []*domain.Job

	// Statistics snapshots the scheduling state.
	Statistics() orchestrator.Statistics

	// Diagnose runs a deep diagnosis of one source URL.
	Diagnose(ctx context.Context, source, url string) (*orchestrator.DiagnosticReport, error)
}

// HealthReporter answers whether the control plane can take work.
type HealthReporter interface {
	IsHealthy() bool
}

// EgressReporter is the egress manager surface the API needs.
type EgressReporter interface {
	Statistics() egress.Statistics
}

// PatternReporter is the detector surface the API needs.
type PatternReporter interface {
	Report(source string, window time.Duration) detector.Report
}

// Deps are the collaborators the router exposes.
type Deps struct {
	Logger    logger.Interface
	Scheduler Scheduler
	Egress    EgressReporter
	Patterns  PatternReporter
	// Health drives /healthz when set; without it the endpoint only
	// confirms the process is serving.
	Health HealthReporter
	// Registry serves /metrics when set.
	Registry *prometheus.Registry
}

const (
	defaultJobsLimit     = 50
	maxJobsLimit         = 500
	defaultPatternWindow = 24 * time.Hour
	diagnoseTimeout      = 2 * time.Minute
)

// SetupRouter creates and configures the gin router with all routes.
func SetupRouter(cfg *config.ServerConfig, deps Deps) (*gin.Engine, middleware.SecurityMiddlewareInterface) {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(deps.Logger))

	security := middleware.NewSecurityMiddleware(cfg, deps.Logger)

	router.GET("/healthz", handleHealth(deps.Health))

	if deps.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
			deps.Registry,
			promhttp.HandlerOpts{},
		)))
	}

	v1 := router.Group("/api/v1")
	v1.GET("/stats", handleStats(deps))
	v1.GET("/jobs", handleRecentJobs(deps.Scheduler))
	v1.GET("/egress", handleEgress(deps.Egress))
	v1.GET("/patterns", handlePatterns(deps.Patterns))

	protected := v1.Group("")
	protected.Use(security.Middleware())
	protected.POST("/jobs", handleSubmitJob(deps.Scheduler))
	protected.POST("/diagnose", handleDiagnose(deps.Scheduler))

	return router, security
}

// loggingMiddleware logs every HTTP request with latency and status.
func loggingMiddleware(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Debug("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

// handleHealth reports readiness. The scheduler's pool health decides
// the verdict when a reporter is wired.
func handleHealth(health HealthReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if health != nil && !health.IsHealthy() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// handleStats combines the orchestrator and egress snapshots.
func handleStats(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, StatsResponse{
			Orchestrator: deps.Scheduler.Statistics(),
			Egress:       deps.Egress.Statistics(),
		})
	}
}

// handleRecentJobs returns finished jobs, newest first.
func handleRecentJobs(scheduler Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultJobsLimit
		if raw, ok := c.GetQuery("limit"); ok {
			parsed, err := parsePositiveInt(raw, maxJobsLimit)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			limit = parsed
		}
		c.JSON(http.StatusOK, gin.H{"jobs": scheduler.RecentJobs(limit)})
	}
}

// handleSubmitJob validates a submission and hands it to the
// scheduler.
func handleSubmitJob(scheduler Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req JobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
			return
		}
		if req.Source == "" || req.URL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "source and url are required"})
			return
		}

		tier := domain.Tier(req.Tier)
		if !tier.Valid() {
			tier = domain.TierMedium
		}
		job := domain.NewJob(req.Source, req.Category, req.URL, tier)
		if req.MaxRetries > 0 {
			job.MaxRetries = req.MaxRetries
		}

		if !scheduler.Schedule(job) {
			c.JSON(http.StatusConflict, gin.H{
				"error":  "job rejected",
				"job_id": job.ID,
			})
			return
		}
		c.JSON(http.StatusAccepted, JobResponse{
			ID:       job.ID,
			Status:   string(job.Status),
			Priority: job.Priority,
		})
	}
}

// handleEgress returns the egress pool statistics.
func handleEgress(reporter EgressReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, reporter.Statistics())
	}
}

// handlePatterns returns the failure pattern report, optionally
// filtered to one source.
func handlePatterns(reporter PatternReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		window := defaultPatternWindow
		if raw, ok := c.GetQuery("window"); ok {
			parsed, err := time.ParseDuration(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window"})
				return
			}
			window = parsed
		}
		c.JSON(http.StatusOK, reporter.Report(c.Query("source"), window))
	}
}

// handleDiagnose runs an on-demand deep diagnosis.
func handleDiagnose(scheduler Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DiagnoseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
			return
		}
		if req.Source == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "source is required"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), diagnoseTimeout)
		defer cancel()

		report, err := scheduler.Diagnose(ctx, req.Source, req.URL)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
