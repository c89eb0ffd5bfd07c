// Package helpers provides testing utilities for integration tests.
package helpers

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DefaultRedisStartupTimeout is the default timeout for Redis to
// start.
const DefaultRedisStartupTimeout = 30 * time.Second

// RedisContainer manages a test Redis instance.
type RedisContainer struct {
	Container testcontainers.Container
	Host      string
	Port      string
	Addr      string
}

// StartRedis starts a Redis container for testing. It returns a
// container instance that should be stopped with Stop().
func StartRedis(ctx context.Context) (*RedisContainer, error) {
	container, err := tcredis.Run(
		ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(DefaultRedisStartupTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start Redis container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, "6379")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &RedisContainer{
		Container: container,
		Host:      host,
		Port:      mappedPort.Port(),
		Addr:      net.JoinHostPort(host, mappedPort.Port()),
	}, nil
}

// Stop stops and removes the Redis container.
func (r *RedisContainer) Stop(ctx context.Context) error {
	if r.Container == nil {
		return nil
	}
	return r.Container.Terminate(ctx)
}
