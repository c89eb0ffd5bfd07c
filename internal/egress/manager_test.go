package egress_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/egress"
	"github.com/jonesrussell/goharvest/internal/logger"
)

const (
	testSource    = "acme"
	otherSource   = "globex"
	blockedReason = "HTTP 403 Forbidden"
)

func newTestManager(t *testing.T) *egress.Manager {
	t.Helper()
	return egress.NewManager(egress.DefaultConfig(), logger.NewNoOp())
}

func registerPoint(t *testing.T, m *egress.Manager, id string) {
	t.Helper()
	err := m.Register(&egress.Point{ID: id, Address: id + ".proxy.example:8080"})
	require.NoError(t, err)
}

// seedOutcomes replays a success/failure sequence against a point
// using a neutral source, so blocked sets for the sources under test
// stay untouched. Failures use a transient reason.
func seedOutcomes(t *testing.T, m *egress.Manager, id string, outcomes []bool) {
	t.Helper()
	for _, success := range outcomes {
		reason := ""
		if !success {
			reason = "connection reset"
		}
		require.NoError(t, m.RecordResult(id, "seed", success, 100*time.Millisecond, reason, 0))
	}
}

// repeat builds a sequence of n copies of v.
func repeat(v bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestRegisterAppliesOptimisticDefaults(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	registerPoint(t, m, "dc-1")

	p, ok := m.Get("dc-1")
	require.True(t, ok)
	assert.Equal(t, 1.0, p.SuccessRate)
	assert.Equal(t, 1.0, p.HealthScore)
	assert.Equal(t, 2.0, p.AvgResponseTime)
	assert.Equal(t, egress.DefaultCapacity, p.Capacity)
	assert.Equal(t, 100.0, p.UptimePercentage)
	assert.Equal(t, "http", p.Protocol)
}

func TestRegisterRejectsDuplicatesAndInvalid(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	registerPoint(t, m, "dc-1")

	err := m.Register(&egress.Point{ID: "dc-1", Address: "elsewhere:1080"})
	assert.ErrorIs(t, err, egress.ErrDuplicateEgress)

	err = m.Register(&egress.Point{Address: "no-id:1080"})
	assert.ErrorIs(t, err, egress.ErrInvalidPoint)
}

func TestGetOptimalEgressExcludesLowSuccessRate(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	registerPoint(t, m, "good")
	registerPoint(t, m, "weak")

	// Interleaved outcomes land "weak" at 0.6, under the 0.7 floor,
	// without ever tripping the quarantine threshold.
	seedOutcomes(t, m, "weak", []bool{true, false, true, false, true, false, true, false, true, true})

	for i := 0; i < 5; i++ {
		p, err := m.GetOptimalEgress(testSource, "default", 50)
		require.NoError(t, err)
		assert.Equal(t, "good", p.ID)
		require.NoError(t, m.RecordResult(p.ID, testSource, true, 50*time.Millisecond, "", 0))
	}
}

func TestGetOptimalEgressSkipsBlockedPoint(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	registerPoint(t, m, "dc-1")
	registerPoint(t, m, "dc-2")

	// dc-1 ends up blocked by globex while staying healthy overall:
	// rate 3/4 keeps it above the floor for every other source.
	seedOutcomes(t, m, "dc-1", repeat(true, 3))
	require.NoError(t, m.RecordResult("dc-1", otherSource, false, 0, blockedReason, 0))

	p, ok := m.Get("dc-1")
	require.True(t, ok)
	require.True(t, p.BlockedFor(otherSource))
	require.Greater(t, p.SuccessRate, 0.7)

	for i := 0; i < 10; i++ {
		chosen, err := m.GetOptimalEgress(otherSource, "default", 50)
		require.NoError(t, err)
		assert.Equal(t, "dc-2", chosen.ID)
		require.NoError(t, m.RecordResult(chosen.ID, otherSource, true, 50*time.Millisecond, "", 0))
	}
}

func TestGetOptimalEgressRespectsCapacity(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	require.NoError(t, m.Register(&egress.Point{ID: "tiny", Address: "tiny:8080", Capacity: 2}))

	for i := 0; i < 2; i++ {
		_, err := m.GetOptimalEgress(testSource, "default", 50)
		require.NoError(t, err)
	}

	_, err := m.GetOptimalEgress(testSource, "default", 50)
	assert.ErrorIs(t, err, egress.ErrNoEgressAvailable)

	// Releasing a slot via a result makes the point selectable again.
	require.NoError(t, m.RecordResult("tiny", testSource, true, 50*time.Millisecond, "", 0))
	_, err = m.GetOptimalEgress(testSource, "default", 50)
	assert.NoError(t, err)
}

func TestGetOptimalEgressHonorsResidentialAndGeo(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	require.NoError(t, m.Register(&egress.Point{ID: "dc-us", Address: "dc:8080", Geo: "us"}))
	require.NoError(t, m.Register(&egress.Point{ID: "res-de", Address: "res:8080", Geo: "de", Residential: true}))

	m.SetSourceRequirements(testSource, domain.EgressRequirements{Residential: true})
	p, err := m.GetOptimalEgress(testSource, "default", 50)
	require.NoError(t, err)
	assert.Equal(t, "res-de", p.ID)
	require.NoError(t, m.RecordResult(p.ID, testSource, true, 50*time.Millisecond, "", 0))

	m.SetSourceRequirements(otherSource, domain.EgressRequirements{Geo: "us", StrictGeo: true})
	p, err = m.GetOptimalEgress(otherSource, "default", 50)
	require.NoError(t, err)
	assert.Equal(t, "dc-us", p.ID)
}

func TestGetOptimalEgressEmptyPool(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	_, err := m.GetOptimalEgress(testSource, "default", 50)
	assert.True(t, errors.Is(err, egress.ErrNoEgressAvailable))
}

func TestRecordResultBlockedByRoundTrip(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	registerPoint(t, m, "dc-1")

	require.NoError(t, m.RecordResult("dc-1", testSource, false, 0, blockedReason, 0))
	p, ok := m.Get("dc-1")
	require.True(t, ok)
	assert.True(t, p.BlockedFor(testSource), "blocking failure must add the source")

	require.NoError(t, m.RecordResult("dc-1", testSource, true, 80*time.Millisecond, "", 2048))
	p, ok = m.Get("dc-1")
	require.True(t, ok)
	assert.False(t, p.BlockedFor(testSource), "a success must clear the block")
}

func TestRecordResultTransientFailureDoesNotBlock(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	registerPoint(t, m, "dc-1")

	require.NoError(t, m.RecordResult("dc-1", testSource, false, 0, "connection timed out", 0))
	p, ok := m.Get("dc-1")
	require.True(t, ok)
	assert.False(t, p.BlockedFor(testSource))
	assert.Equal(t, 1, p.ConsecutiveFailures)
}

func TestRecordResultUpdatesRates(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	registerPoint(t, m, "dc-1")

	require.NoError(t, m.RecordResult("dc-1", testSource, true, 100*time.Millisecond, "", 0))
	require.NoError(t, m.RecordResult("dc-1", testSource, true, 200*time.Millisecond, "", 0))
	require.NoError(t, m.RecordResult("dc-1", testSource, true, 300*time.Millisecond, "", 0))
	require.NoError(t, m.RecordResult("dc-1", testSource, false, 0, "connection reset", 0))

	p, ok := m.Get("dc-1")
	require.True(t, ok)
	assert.InDelta(t, 0.75, p.SuccessRate, 1e-9)
	assert.InDelta(t, 0.2, p.AvgResponseTime, 1e-9)

	// Per-source EMA from zero: 0.1, 0.19, 0.271, then one failure.
	assert.InDelta(t, 0.2439, p.SourceRate(testSource), 1e-4)
}

func TestRecordResultUnknownPoint(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	err := m.RecordResult("ghost", testSource, true, 0, "", 0)
	assert.ErrorIs(t, err, egress.ErrUnknownEgress)
}

func TestQuarantineAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	registerPoint(t, m, "flaky")

	// Enough prior successes keep the rate above the floor, so the
	// consecutive failure count is the only thing excluding the point.
	seedOutcomes(t, m, "flaky", repeat(true, 10))
	seedOutcomes(t, m, "flaky", repeat(false, 3))

	p, ok := m.Get("flaky")
	require.True(t, ok)
	require.Greater(t, p.SuccessRate, 0.7)

	_, err := m.GetOptimalEgress(testSource, "default", 50)
	assert.ErrorIs(t, err, egress.ErrNoEgressAvailable)
}

type stubProber struct {
	result egress.ProbeResult
}

func (s stubProber) Probe(_ context.Context, _ *egress.Point, _ string) egress.ProbeResult {
	return s.result
}

func TestHealthCheckRestoresQuarantinedPoint(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	registerPoint(t, m, "flaky")
	seedOutcomes(t, m, "flaky", repeat(true, 10))
	seedOutcomes(t, m, "flaky", repeat(false, 3))
	_, err := m.GetOptimalEgress(testSource, "default", 50)
	require.ErrorIs(t, err, egress.ErrNoEgressAvailable)

	m.SetProber(stubProber{result: egress.ProbeResult{Success: true, StatusCode: 200, ResponseTime: 120 * time.Millisecond}})
	report := m.HealthCheckAll(context.Background())
	assert.Equal(t, 1, report.Healthy)
	assert.Equal(t, 0, report.Quarantined)

	p, errSelect := m.GetOptimalEgress(testSource, "default", 50)
	require.NoError(t, errSelect)
	assert.Equal(t, "flaky", p.ID)
}

func TestHealthCheckBlockingProbe(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	registerPoint(t, m, "dc-1")

	m.SetProber(stubProber{result: egress.ProbeResult{Success: false, StatusCode: 429, Error: "HTTP 429"}})
	report := m.HealthCheckAll(context.Background())

	assert.Equal(t, 0, report.Healthy)
	assert.Equal(t, 1, report.Blocked)

	p, ok := m.Get("dc-1")
	require.True(t, ok)
	assert.Equal(t, 80.0, p.UptimePercentage)
	assert.Equal(t, 1, p.ConsecutiveFailures)
}

func TestHealthCheckWithoutProber(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	registerPoint(t, m, "dc-1")

	report := m.HealthCheckAll(context.Background())
	assert.Equal(t, 1, report.Total)
	assert.Empty(t, report.Outcomes)
}

func TestStatisticsReportsPoolShape(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	registerPoint(t, m, "dc-1")
	registerPoint(t, m, "dc-2")

	p, err := m.GetOptimalEgress(testSource, "default", 50)
	require.NoError(t, err)
	require.NoError(t, m.RecordResult(p.ID, testSource, true, 100*time.Millisecond, "", 4096))
	require.NoError(t, m.RecordResult("dc-2", testSource, false, 0, blockedReason, 0))

	stats := m.Statistics()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Len(t, stats.Problematic, 1)
	assert.Equal(t, "dc-2", stats.Problematic[0].ID)

	breakdown, ok := stats.BySource[testSource]
	require.True(t, ok)
	assert.Equal(t, 1, breakdown.BlockedHere)
}

func TestSessionsAccumulateTraffic(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	registerPoint(t, m, "dc-1")

	p, err := m.GetOptimalEgress(testSource, "default", 50)
	require.NoError(t, err)
	require.NoError(t, m.RecordResult(p.ID, testSource, true, 100*time.Millisecond, "", 1000))

	_, err = m.GetOptimalEgress(testSource, "default", 50)
	require.NoError(t, err)
	require.NoError(t, m.RecordResult(p.ID, testSource, false, 50*time.Millisecond, "connection reset", 200))

	sessions := m.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].Requests)
	assert.Equal(t, 1, sessions[0].Successes)
	assert.Equal(t, int64(1200), sessions[0].Bytes)
}

func TestReleaseSlotLeavesMetricsUntouched(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	registerPoint(t, m, "dc-1")

	// A selection that never turns into a request must not look like a
	// failure: release the slot three times in a row (one past the
	// quarantine threshold) and the point stays pristine and selectable.
	for range 3 {
		p, err := m.GetOptimalEgress(testSource, "default", 50)
		require.NoError(t, err)
		require.Equal(t, 1, p.CurrentLoad)
		require.NoError(t, m.ReleaseSlot(p.ID))
	}

	p, ok := m.Get("dc-1")
	require.True(t, ok)
	assert.Equal(t, 0, p.CurrentLoad)
	assert.Equal(t, int64(0), p.TotalRequests)
	assert.Equal(t, 0, p.ConsecutiveFailures)
	assert.Equal(t, 1.0, p.SuccessRate)
	assert.Equal(t, 1.0, p.HealthScore)
	assert.Nil(t, p.LastFailure)

	_, err := m.GetOptimalEgress(testSource, "default", 50)
	assert.NoError(t, err)
}

func TestReleaseSlotUnknownPointAndFloor(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	registerPoint(t, m, "dc-1")

	err := m.ReleaseSlot("nope")
	assert.ErrorIs(t, err, egress.ErrUnknownEgress)

	// Releasing with no slot held must not drive the load negative.
	require.NoError(t, m.ReleaseSlot("dc-1"))
	p, ok := m.Get("dc-1")
	require.True(t, ok)
	assert.Equal(t, 0, p.CurrentLoad)
}
