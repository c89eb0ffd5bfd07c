package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/jonesrussell/goharvest/internal/domain"
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
	// DefaultPingTimeout is the default timeout for ping operations
	DefaultPingTimeout = 5 * time.Second
)

// schema creates the executions table on first start.
const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id            TEXT PRIMARY KEY,
	job_id        TEXT NOT NULL,
	source        TEXT NOT NULL,
	category      TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL,
	egress_id     TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	items_found   INTEGER NOT NULL DEFAULT 0,
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	retry_attempt INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	blocked       BOOLEAN NOT NULL DEFAULT FALSE,
	started_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ NOT NULL,
	metadata      JSONB
);
CREATE INDEX IF NOT EXISTS idx_executions_source ON executions (source, completed_at DESC);
CREATE INDEX IF NOT EXISTS idx_executions_job ON executions (job_id, completed_at DESC);
CREATE INDEX IF NOT EXISTS idx_executions_completed_at ON executions (completed_at);
`

// NewPostgresConnection creates a new PostgreSQL database connection.
func NewPostgresConnection(cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return db, nil
}

// ExecutionRepository handles database operations for execution records.
type ExecutionRepository struct {
	db *sqlx.DB
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sqlx.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// InitSchema creates the executions table and indexes if missing.
func (r *ExecutionRepository) InitSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize archive schema: %w", err)
	}
	return nil
}

// Create inserts a new execution record into the database.
func (r *ExecutionRepository) Create(ctx context.Context, record *domain.ExecutionRecord) error {
	query := `
		INSERT INTO executions (
			id, job_id, source, category, url, egress_id,
			status, items_found, duration_ms, retry_attempt,
			error_message, blocked, started_at, completed_at, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		record.ID,
		record.JobID,
		record.Source,
		record.Category,
		record.URL,
		record.EgressID,
		record.Status,
		record.ItemsFound,
		record.DurationMs,
		record.RetryAttempt,
		record.ErrorMessage,
		record.Blocked,
		record.StartedAt,
		record.CompletedAt,
		record.Metadata,
	)

	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

// GetByID retrieves an execution record by its ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	var record domain.ExecutionRecord
	query := `
		SELECT id, job_id, source, category, url, egress_id,
		       status, items_found, duration_ms, retry_attempt,
		       error_message, blocked, started_at, completed_at, metadata
		FROM executions
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &record, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("execution not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	return &record, nil
}

// ListBySource retrieves recent executions for a source with pagination.
func (r *ExecutionRepository) ListBySource(
	ctx context.Context, source string, limit, offset int,
) ([]*domain.ExecutionRecord, error) {
	var records []*domain.ExecutionRecord
	query := `
		SELECT id, job_id, source, category, url, egress_id,
		       status, items_found, duration_ms, retry_attempt,
		       error_message, blocked, started_at, completed_at, metadata
		FROM executions
		WHERE source = $1
		ORDER BY completed_at DESC
		LIMIT $2 OFFSET $3
	`

	err := r.db.SelectContext(ctx, &records, query, source, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	if records == nil {
		records = []*domain.ExecutionRecord{}
	}

	return records, nil
}

// ListByJobID retrieves all attempts for a job, newest first.
func (r *ExecutionRepository) ListByJobID(ctx context.Context, jobID string) ([]*domain.ExecutionRecord, error) {
	var records []*domain.ExecutionRecord
	query := `
		SELECT id, job_id, source, category, url, egress_id,
		       status, items_found, duration_ms, retry_attempt,
		       error_message, blocked, started_at, completed_at, metadata
		FROM executions
		WHERE job_id = $1
		ORDER BY completed_at DESC
	`

	err := r.db.SelectContext(ctx, &records, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	if records == nil {
		records = []*domain.ExecutionRecord{}
	}

	return records, nil
}

// GetSourceStats returns aggregate statistics for one source.
func (r *ExecutionRepository) GetSourceStats(ctx context.Context, source string) (*domain.SourceStats, error) {
	var stats domain.SourceStats
	query := `
		SELECT
			$1 as source,
			COUNT(*) as total_executions,
			COUNT(*) FILTER (WHERE status = 'completed') as completed,
			COUNT(*) FILTER (WHERE status = 'failed') as failed,
			COUNT(*) FILTER (WHERE blocked) as blocked,
			COALESCE(AVG(duration_ms), 0) as avg_duration_ms,
			COALESCE(AVG(items_found) FILTER (WHERE status = 'completed'), 0) as avg_items_found,
			MAX(completed_at) as last_execution_at
		FROM executions
		WHERE source = $1
	`

	err := r.db.GetContext(ctx, &stats, query, source)
	if err != nil {
		return nil, fmt.Errorf("failed to get source stats: %w", err)
	}

	return &stats, nil
}

// ListSourceStats returns aggregate statistics for every source with
// at least one archived execution.
func (r *ExecutionRepository) ListSourceStats(ctx context.Context) ([]*domain.SourceStats, error) {
	var stats []*domain.SourceStats
	query := `
		SELECT
			source,
			COUNT(*) as total_executions,
			COUNT(*) FILTER (WHERE status = 'completed') as completed,
			COUNT(*) FILTER (WHERE status = 'failed') as failed,
			COUNT(*) FILTER (WHERE blocked) as blocked,
			COALESCE(AVG(duration_ms), 0) as avg_duration_ms,
			COALESCE(AVG(items_found) FILTER (WHERE status = 'completed'), 0) as avg_items_found,
			MAX(completed_at) as last_execution_at
		FROM executions
		GROUP BY source
		ORDER BY source
	`

	err := r.db.SelectContext(ctx, &stats, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list source stats: %w", err)
	}

	if stats == nil {
		stats = []*domain.SourceStats{}
	}

	return stats, nil
}

// GetFailureRate returns the failure rate within a time window.
func (r *ExecutionRepository) GetFailureRate(ctx context.Context, window time.Duration) (float64, error) {
	cutoff := time.Now().Add(-window)

	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'completed') as completed,
			COUNT(*) FILTER (WHERE status = 'failed') as failed
		FROM executions
		WHERE completed_at >= $1
	`

	var completed, failed int
	err := r.db.QueryRowContext(ctx, query, cutoff).Scan(&completed, &failed)
	if err != nil {
		return 0, fmt.Errorf("failed to get failure rate: %w", err)
	}

	total := completed + failed
	if total == 0 {
		return 0, nil
	}

	return float64(failed) / float64(total), nil
}

// CleanupOldExecutions removes records older than the retention window.
// Returns the number of rows deleted.
func (r *ExecutionRepository) CleanupOldExecutions(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)

	result, err := r.db.ExecContext(ctx, `DELETE FROM executions WHERE completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old executions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}
