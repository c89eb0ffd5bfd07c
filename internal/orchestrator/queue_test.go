package orchestrator

import (
	"testing"
	"time"

	"github.com/jonesrussell/goharvest/internal/domain"
)

func queuedJob(source string, priority int, scheduledAt time.Time) *domain.Job {
	job := domain.NewJob(source, "listings", "https://"+source+".test/catalog", domain.TierHigh)
	job.Priority = priority
	job.ScheduledAt = scheduledAt
	return job
}

func TestJobQueue_SortsByPriorityDescending(t *testing.T) {
	t.Parallel()

	now := time.Now()
	q := newJobQueue(8)
	q.Push(queuedJob("low", 30, now))
	q.Push(queuedJob("high", 90, now))
	q.Push(queuedJob("mid", 50, now))

	q.Sort()

	want := []string{"high", "mid", "low"}
	for i, source := range want {
		if q.items[i].Source != source {
			t.Errorf("position %d: got %s, want %s", i, q.items[i].Source, source)
		}
	}
}

func TestJobQueue_TiesBreakOnScheduledAt(t *testing.T) {
	t.Parallel()

	now := time.Now()
	q := newJobQueue(8)
	q.Push(queuedJob("later", 70, now.Add(time.Minute)))
	q.Push(queuedJob("earlier", 70, now))
	q.Push(queuedJob("latest", 70, now.Add(2*time.Minute)))

	q.Sort()

	want := []string{"earlier", "later", "latest"}
	for i, source := range want {
		if q.items[i].Source != source {
			t.Errorf("position %d: got %s, want %s", i, q.items[i].Source, source)
		}
	}
}

func TestJobQueue_Len(t *testing.T) {
	t.Parallel()

	q := newJobQueue(4)
	if q.Len() != 0 {
		t.Fatalf("new queue length: got %d, want 0", q.Len())
	}
	q.Push(queuedJob("acme", 70, time.Now()))
	q.Push(queuedJob("beta", 50, time.Now()))
	if q.Len() != 2 {
		t.Fatalf("queue length after pushes: got %d, want 2", q.Len())
	}
}
