package api

import (
	"github.com/jonesrussell/goharvest/internal/egress"
	"github.com/jonesrussell/goharvest/internal/orchestrator"
)

// JobRequest is the payload for POST /api/v1/jobs.
type JobRequest struct {
	Source     string `json:"source"`
	Category   string `json:"category"`
	URL        string `json:"url"`
	Tier       int    `json:"tier"`
	MaxRetries int    `json:"max_retries"`
}

// JobResponse acknowledges an accepted job.
type JobResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Priority int    `json:"priority"`
}

// DiagnoseRequest is the payload for POST /api/v1/diagnose. An empty
// URL falls back to the source's first configured target.
type DiagnoseRequest struct {
	Source string `json:"source"`
	URL    string `json:"url"`
}

// StatsResponse combines the orchestrator and egress snapshots for
// the dashboard.
type StatsResponse struct {
	Orchestrator orchestrator.Statistics `json:"orchestrator"`
	Egress       egress.Statistics       `json:"egress"`
}
