package archive_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/goharvest/internal/archive"
	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/logger"
)

func finishedJob() *domain.Job {
	job := domain.NewJob("acme", "listings", "https://acme.example.com/catalog", domain.TierHigh)
	started := time.Now().Add(-3 * time.Second)
	completed := time.Now()
	job.Status = domain.JobCompleted
	job.StartedAt = &started
	job.CompletedAt = &completed
	job.EgressID = "dc-1"
	job.ItemsFound = 24
	job.Duration = 3 * time.Second
	return job
}

func TestDisabledArchiveAcceptsRecords(t *testing.T) {
	a, err := archive.New(archive.Config{Enabled: false}, logger.NewNoOp())
	require.NoError(t, err)

	assert.False(t, a.Enabled())
	assert.NoError(t, a.Record(archive.NewRecord(finishedJob(), false)))
	assert.NoError(t, a.HealthCheck(context.Background()))

	stats, err := a.SourceStats(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, stats)

	deleted, err := a.Cleanup(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, deleted)

	assert.NoError(t, a.Close())
}

func TestNewRecordCopiesJobState(t *testing.T) {
	job := finishedJob()
	job.RetryCount = 1
	job.LastError = "connection reset"

	record := archive.NewRecord(job, true)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, job.ID, record.JobID)
	assert.Equal(t, "acme", record.Source)
	assert.Equal(t, "listings", record.Category)
	assert.Equal(t, "dc-1", record.EgressID)
	assert.Equal(t, string(domain.JobCompleted), record.Status)
	assert.Equal(t, 24, record.ItemsFound)
	assert.Equal(t, int64(3000), record.DurationMs)
	assert.Equal(t, 1, record.RetryAttempt)
	assert.True(t, record.Blocked)
	require.NotNil(t, record.ErrorMessage)
	assert.Equal(t, "connection reset", *record.ErrorMessage)
	assert.Equal(t, *job.StartedAt, record.StartedAt)
	assert.Equal(t, *job.CompletedAt, record.CompletedAt)
	assert.True(t, record.Succeeded())
}

func TestNewRecordDerivesStartWhenUnset(t *testing.T) {
	job := domain.NewJob("acme", "listings", "https://acme.example.com/catalog", domain.TierLow)
	job.Status = domain.JobFailed
	job.Duration = 2 * time.Second

	record := archive.NewRecord(job, false)

	assert.False(t, record.StartedAt.IsZero())
	assert.Equal(t, 2*time.Second, record.CompletedAt.Sub(record.StartedAt))
	assert.False(t, record.Succeeded())
	assert.Nil(t, record.ErrorMessage)
}

func TestConfigDSN(t *testing.T) {
	cfg := archive.Config{
		Host:     "db.internal",
		Port:     5432,
		User:     "harvest",
		Password: "secret",
		DBName:   "goharvest",
		SSLMode:  "disable",
	}

	assert.Equal(t,
		"host=db.internal port=5432 user=harvest password=secret dbname=goharvest sslmode=disable",
		cfg.DSN(),
	)
}
