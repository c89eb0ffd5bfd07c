package metrics_test

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/goharvest/internal/metrics"
)

func TestNewMetrics(t *testing.T) {
	m := metrics.NewMetrics()
	assert.NotNil(t, m)
	assert.False(t, m.GetStartTime().IsZero())
}

func TestRecordOutcomes(t *testing.T) {
	m := metrics.NewMetrics()

	m.RecordScheduled()
	m.RecordScheduled()
	m.RecordCompleted(12, 3*time.Second)
	m.RecordFailed(time.Second)
	m.RecordRetry()
	m.RecordTimeout()
	m.RecordBlocked()
	m.RecordRejected()

	assert.Equal(t, int64(2), m.GetScheduledCount())
	assert.Equal(t, int64(1), m.GetCompletedCount())
	assert.Equal(t, int64(1), m.GetFailedCount())
	assert.Equal(t, int64(1), m.GetBlockedCount())

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.Retried)
	assert.Equal(t, int64(1), snap.TimedOut)
	assert.Equal(t, int64(1), snap.Rejected)
	assert.Equal(t, int64(12), snap.ItemsHarvested)
	assert.Equal(t, 4*time.Second, snap.FetchDuration)
	assert.False(t, snap.LastCompletedTime.IsZero())
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	m := metrics.NewMetrics()
	m.RecordScheduled()
	m.RecordCompleted(5, 2*time.Second)
	m.RecordFailed(time.Second)

	snap := m.Snapshot()

	restored := metrics.NewMetrics()
	restored.Restore(snap)

	assert.Equal(t, snap, restored.Snapshot())
}

func TestResetMetrics(t *testing.T) {
	m := metrics.NewMetrics()
	m.RecordScheduled()
	m.RecordCompleted(3, time.Second)
	m.RecordBlocked()

	m.ResetMetrics()

	assert.Equal(t, int64(0), m.GetScheduledCount())
	assert.Equal(t, int64(0), m.GetCompletedCount())
	assert.Equal(t, int64(0), m.GetBlockedCount())
	snap := m.Snapshot()
	assert.True(t, snap.LastCompletedTime.IsZero())
	assert.Zero(t, snap.ItemsHarvested)
}

func TestRecordOutcomesConcurrently(t *testing.T) {
	m := metrics.NewMetrics()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.RecordCompleted(1, time.Millisecond)
		}()
		go func() {
			defer wg.Done()
			m.RecordFailed(time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.GetCompletedCount())
	assert.Equal(t, int64(50), m.GetFailedCount())
	assert.Equal(t, int64(50), m.Snapshot().ItemsHarvested)
}

func TestNewCollectorsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollectors(reg)

	c.RecordJobScheduled("critical")
	c.RecordJobExecuted("completed", "acme", 1.5)
	c.RecordJobStarted()
	c.SetQueueDepth(3)
	c.SetConcurrencyCap(8)
	c.SetBreakerState("acme", 1)
	c.RecordBreakerTrip("acme")
	c.RecordEgressSelected("dc-1")
	c.SetEgressHealth("dc-1", 0.92)
	c.RecordBlockingDetected("acme")
	c.RecordBlockingProbability(0.75)
	c.RecordPatternLearned("captcha")

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["goharvest_orchestrator_jobs_scheduled_total"])
	assert.True(t, names["goharvest_orchestrator_breaker_state"])
	assert.True(t, names["goharvest_egress_health_score"])
	assert.True(t, names["goharvest_detector_blocking_detected_total"])
}
