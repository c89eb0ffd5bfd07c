package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// EventTypeField is the field name for the event type in stream messages.
	EventTypeField = "type"

	// EventDataField is the field name for the serialized event.
	EventDataField = "event"

	// EmittedAtField is the field name for the emit timestamp.
	EmittedAtField = "emitted_at"

	// DefaultStream is the stream events are published to.
	DefaultStream = "goharvest:events:jobs"

	// Default max stream length to prevent unbounded growth.
	defaultMaxStreamLen = 10000
)

// Publisher emits job lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event *JobEvent) error
	Close() error
}

// RedisPublisher publishes events to a Redis Stream, trimming it to a
// maximum approximate length on every add.
type RedisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// PublisherConfig holds configuration for the Redis publisher.
type PublisherConfig struct {
	Stream string
	MaxLen int64 // Maximum stream length (0 = default)
}

// NewRedisPublisher creates a publisher on an existing Redis client.
func NewRedisPublisher(client *redis.Client, cfg PublisherConfig) *RedisPublisher {
	stream := cfg.Stream
	if stream == "" {
		stream = DefaultStream
	}

	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxStreamLen
	}

	return &RedisPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

// Publish adds the event to the stream.
func (p *RedisPublisher) Publish(ctx context.Context, event *JobEvent) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			EventTypeField: string(event.Type),
			EventDataField: string(data),
			EmittedAtField: event.EmittedAt.UTC().Format(time.RFC3339),
		},
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish event to stream %s: %w", p.stream, err)
	}

	return nil
}

// Stream returns the stream events are published to.
func (p *RedisPublisher) Stream() string {
	return p.stream
}

// Len returns the current stream length.
func (p *RedisPublisher) Len(ctx context.Context) (int64, error) {
	return p.client.XLen(ctx, p.stream).Result()
}

// Close is a no-op; the Redis client is owned by the caller.
func (p *RedisPublisher) Close() error {
	return nil
}

// NoopPublisher drops all events. Used when event publishing is
// disabled.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that drops events.
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

// Publish drops the event.
func (p *NoopPublisher) Publish(context.Context, *JobEvent) error {
	return nil
}

// Close is a no-op.
func (p *NoopPublisher) Close() error {
	return nil
}
