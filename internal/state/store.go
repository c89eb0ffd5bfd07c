// Package state provides the Redis-backed key/value store used to
// checkpoint control-plane state across restarts.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no value exists for a key.
var ErrNotFound = errors.New("state not found")

const (
	// defaultPrefix namespaces all checkpoint keys.
	defaultPrefix = "goharvest"
	// defaultConnectionTimeout bounds the startup ping.
	defaultConnectionTimeout = 2 * time.Second
)

// Well-known checkpoint keys.
const (
	KeyBreakers     = "breakers"
	KeyEgressPool   = "egress:pool"
	KeyPatterns     = "detector:patterns"
	KeyOrchestrator = "orchestrator:metrics"
)

// Config holds Redis connection settings for the store.
type Config struct {
	Addr     string
	Password string `json:"-"`
	DB       int
	Prefix   string
}

// Store persists JSON-encoded state blobs in Redis.
type Store struct {
	client *redis.Client
	prefix string
}

// New creates a store and verifies connectivity.
func New(cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewFromClient(client, cfg.Prefix), nil
}

// NewFromClient wraps an existing Redis client.
func NewFromClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Persist stores value under key, overwriting any previous value.
func (s *Store) Persist(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal state %q: %w", key, err)
	}

	if setErr := s.client.Set(ctx, s.key(key), data, 0).Err(); setErr != nil {
		return fmt.Errorf("failed to persist state %q: %w", key, setErr)
	}

	return nil
}

// Load reads the value stored under key into the given target.
// Returns ErrNotFound when the key has never been persisted.
func (s *Store) Load(ctx context.Context, key string, into any) error {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load state %q: %w", key, err)
	}

	if unmarshalErr := json.Unmarshal(data, into); unmarshalErr != nil {
		return fmt.Errorf("failed to unmarshal state %q: %w", key, unmarshalErr)
	}

	return nil
}

// Delete removes the value stored under key, if any.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete state %q: %w", key, err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client so other components
// (the event publisher) can share the connection.
func (s *Store) Client() *redis.Client {
	return s.client
}

// Close closes the underlying Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(k string) string {
	return s.prefix + ":" + k
}
