package archive

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/logger"
)

const (
	// writeTimeout bounds a single insert.
	writeTimeout = 10 * time.Second
	// queueDrainTimeout is the timeout for draining the write queue.
	queueDrainTimeout = 10 * time.Second
	// maxWriteRetries is how many times a failed insert is retried.
	maxWriteRetries = 3
	// maxBackoffShift caps the exponential backoff exponent.
	maxBackoffShift = 30
	// backoffBase is the base for exponential backoff calculation.
	backoffBase = 2.0
)

// writeWorker persists queued execution records asynchronously.
type writeWorker struct {
	archive *Archive
	logger  logger.Interface
	wg      sync.WaitGroup
	stopCh  chan struct{}
}

// newWriteWorker creates a new write worker.
func newWriteWorker(archive *Archive, log logger.Interface) *writeWorker {
	return &writeWorker{
		archive: archive,
		logger:  log,
		stopCh:  make(chan struct{}),
	}
}

// Start starts the write worker.
func (w *writeWorker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.logger.Debug("archive write worker started")

		for {
			select {
			case record := <-w.archive.writeChan:
				w.processRecord(record)
			case <-w.stopCh:
				w.logger.Debug("archive write worker stopping, draining queue")
				w.drainQueue()
				w.logger.Debug("archive write worker stopped")
				return
			}
		}
	}()
}

// Stop stops the write worker and waits for it to finish.
func (w *writeWorker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

// processRecord inserts a single record with retry logic.
func (w *writeWorker) processRecord(record *domain.ExecutionRecord) {
	var lastErr error

	for attempt := 0; attempt <= maxWriteRetries; attempt++ {
		if attempt > 0 {
			// Limit shift to prevent integer overflow
			shift := attempt - 1
			if shift > maxBackoffShift {
				shift = maxBackoffShift
			}
			backoffSeconds := int64(math.Pow(backoffBase, float64(shift)))
			backoff := time.Duration(backoffSeconds) * time.Second
			w.logger.Debug("retrying archive write",
				"attempt", attempt,
				"backoff", backoff,
				"job_id", record.JobID,
			)
			time.Sleep(backoff)
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := w.archive.repo.Create(ctx, record)
		cancel()
		if err == nil {
			return
		}

		lastErr = err
		w.logger.Warn("archive write failed",
			"attempt", attempt+1,
			"max_retries", maxWriteRetries+1,
			"error", err,
			"job_id", record.JobID,
		)
	}

	// All retries exhausted
	w.logger.Error("archive write failed after all retries",
		"error", lastErr,
		"job_id", record.JobID,
	)
}

// drainQueue drains the write queue with a timeout.
func (w *writeWorker) drainQueue() {
	deadline := time.Now().Add(queueDrainTimeout)
	drained := 0

	for {
		select {
		case record := <-w.archive.writeChan:
			if time.Now().After(deadline) {
				w.logger.Warn("archive drain timeout reached, dropping record",
					"job_id", record.JobID,
					"drained", drained,
				)
				continue
			}
			w.processRecord(record)
			drained++
		default:
			// Queue is empty
			if drained > 0 {
				w.logger.Debug("archive queue drained", "records_written", drained)
			}
			return
		}
	}
}
