package events_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/events"
)

func TestNewJobEventCopiesJobState(t *testing.T) {
	t.Parallel()

	job := domain.NewJob("acme", "listings", "https://acme.example.com/catalog", domain.TierCritical)
	job.RetryCount = 2
	job.EgressID = "dc-1"
	job.ItemsFound = 14
	job.LastError = "connection reset"

	event := events.NewJobEvent(events.EventRetrying, job)

	assert.Equal(t, events.EventRetrying, event.Type)
	assert.Equal(t, job.ID, event.JobID)
	assert.Equal(t, "acme", event.Source)
	assert.Equal(t, "listings", event.Category)
	assert.Equal(t, 1, event.Tier)
	assert.Equal(t, 2, event.RetryCount)
	assert.Equal(t, "dc-1", event.EgressID)
	assert.Equal(t, 14, event.ItemsFound)
	assert.Equal(t, "connection reset", event.Error)
	assert.False(t, event.EmittedAt.IsZero())
}

func TestJobEventSerializesBlockedFlag(t *testing.T) {
	t.Parallel()

	job := domain.NewJob("acme", "listings", "https://acme.example.com/catalog", domain.TierHigh)
	event := events.NewJobEvent(events.EventFailed, job).WithBlocked(true)

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded events.JobEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Blocked)
	assert.Equal(t, events.EventFailed, decoded.Type)
}

func TestNoopPublisherAcceptsEverything(t *testing.T) {
	t.Parallel()

	pub := events.NewNoopPublisher()

	job := domain.NewJob("acme", "listings", "https://acme.example.com/catalog", domain.TierLow)
	require.NoError(t, pub.Publish(context.Background(), events.NewJobEvent(events.EventScheduled, job)))
	require.NoError(t, pub.Publish(context.Background(), nil))
	require.NoError(t, pub.Close())
}
