package orchestrator

import (
	"sort"

	"github.com/jonesrussell/goharvest/internal/domain"
)

// jobQueue is the pending-job priority queue. It is owned exclusively
// by the scheduling loop; a plain slice re-sorted per scan is cheap at
// the queue sizes this system runs at and keeps removal trivial.
type jobQueue struct {
	items []*domain.Job
}

func newJobQueue(capacity int) *jobQueue {
	return &jobQueue{items: make([]*domain.Job, 0, capacity)}
}

// Push appends a job. Ordering is restored by the next Sort.
func (q *jobQueue) Push(job *domain.Job) {
	q.items = append(q.items, job)
}

// Sort orders jobs by descending priority, earliest ScheduledAt first
// within the same priority.
func (q *jobQueue) Sort() {
	sort.SliceStable(q.items, func(i, j int) bool {
		if q.items[i].Priority != q.items[j].Priority {
			return q.items[i].Priority > q.items[j].Priority
		}
		return q.items[i].ScheduledAt.Before(q.items[j].ScheduledAt)
	})
}

// Len returns the number of queued jobs.
func (q *jobQueue) Len() int {
	return len(q.items)
}
