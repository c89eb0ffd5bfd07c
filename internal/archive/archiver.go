// Package archive persists finished job executions to Postgres so
// failure analysis can look further back than the orchestrator's
// in-memory history.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/logger"
)

const (
	// defaultQueueSize is the default size for the async write queue.
	defaultQueueSize = 100
)

// Config holds the execution archive configuration.
type Config struct {
	// Enabled turns archiving on.
	Enabled bool
	// Host is the Postgres host.
	Host string
	// Port is the Postgres port.
	Port int
	// User is the Postgres user.
	User string
	// Password is the Postgres password.
	Password string `json:"-"`
	// DBName is the Postgres database name.
	DBName string
	// SSLMode is the Postgres SSL mode.
	SSLMode string
	// FailSilently logs write errors instead of surfacing them.
	FailSilently bool
	// QueueSize bounds the async write queue.
	QueueSize int
	// Retention is how long execution records are kept.
	Retention time.Duration
}

// DSN builds the Postgres connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Archive writes execution records to Postgres through an async
// worker so the scheduling loop never blocks on the database.
type Archive struct {
	config      Config
	db          *sqlx.DB
	repo        *ExecutionRepository
	logger      logger.Interface
	writeChan   chan *domain.ExecutionRecord
	writeWorker *writeWorker
}

// New creates an execution archive. When disabled it accepts and
// drops records so callers need no conditional wiring.
func New(cfg Config, log logger.Interface) (*Archive, error) {
	archive := &Archive{
		config: cfg,
		logger: log,
	}

	// If disabled, return early
	if !cfg.Enabled {
		log.Info("execution archive disabled")
		return archive, nil
	}

	db, err := NewPostgresConnection(cfg)
	if err != nil {
		if cfg.FailSilently {
			log.Warn("failed to connect to archive database, continuing without archiving", "error", err)
			return archive, nil
		}
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	archive.db = db
	archive.repo = NewExecutionRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultPingTimeout)
	defer cancel()
	if err := archive.repo.InitSchema(ctx); err != nil {
		db.Close()
		if cfg.FailSilently {
			log.Warn("failed to initialize archive schema, continuing without archiving", "error", err)
			archive.db = nil
			archive.repo = nil
			return archive, nil
		}
		return nil, err
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	archive.writeChan = make(chan *domain.ExecutionRecord, queueSize)
	archive.writeWorker = newWriteWorker(archive, log)
	archive.writeWorker.Start()

	log.Info("execution archive initialized",
		"host", cfg.Host,
		"dbname", cfg.DBName,
		"queue_size", queueSize,
	)

	return archive, nil
}

// Enabled reports whether records are actually being persisted.
func (a *Archive) Enabled() bool {
	return a.config.Enabled && a.db != nil
}

// Record enqueues an execution record for persistence. It never
// blocks; when the queue is full the record is dropped unless the
// archive is configured to fail loudly.
func (a *Archive) Record(record *domain.ExecutionRecord) error {
	if !a.Enabled() {
		return nil // Archiving disabled
	}

	if record == nil {
		return errors.New("execution record is nil")
	}

	select {
	case a.writeChan <- record:
		return nil
	default:
		a.logger.Warn("archive queue full, dropping record", "job_id", record.JobID)
		if !a.config.FailSilently {
			return errors.New("archive queue full")
		}
		return nil
	}
}

// Repository exposes the underlying repository for read paths. Nil
// when the archive is disabled.
func (a *Archive) Repository() *ExecutionRepository {
	return a.repo
}

// SourceStats returns per-source aggregates from the archive.
func (a *Archive) SourceStats(ctx context.Context) ([]*domain.SourceStats, error) {
	if !a.Enabled() {
		return nil, nil
	}
	return a.repo.ListSourceStats(ctx)
}

// Cleanup removes records past the retention window.
func (a *Archive) Cleanup(ctx context.Context) (int64, error) {
	if !a.Enabled() {
		return 0, nil
	}

	deleted, err := a.repo.CleanupOldExecutions(ctx, a.config.Retention)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		a.logger.Info("archive cleanup removed old executions",
			"deleted", deleted,
			"retention", a.config.Retention,
		)
	}

	return deleted, nil
}

// HealthCheck verifies database connectivity.
func (a *Archive) HealthCheck(ctx context.Context) error {
	if !a.Enabled() {
		return nil // Not enabled, skip health check
	}
	return a.db.PingContext(ctx)
}

// Close drains the write queue and closes the database.
func (a *Archive) Close() error {
	if a.writeWorker != nil {
		a.logger.Info("shutting down archive write worker")
		a.writeWorker.Stop()
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
