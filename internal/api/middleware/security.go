// Package middleware provides security middleware for the control
// plane API.
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/goharvest/internal/config"
	"github.com/jonesrussell/goharvest/internal/logger"
)

// SecurityMiddlewareInterface defines the interface for security
// middleware.
type SecurityMiddlewareInterface interface {
	// Middleware returns the security middleware function.
	Middleware() gin.HandlerFunc

	// Cleanup starts the background loop that removes expired rate
	// limit entries until the context is cancelled.
	Cleanup(ctx context.Context)

	// WaitCleanup waits for the cleanup goroutine to finish.
	WaitCleanup()
}

// TimeProvider is an interface for getting the current time. Tests
// substitute a fixed clock.
type TimeProvider interface {
	Now() time.Time
}

type realTimeProvider struct{}

func (r *realTimeProvider) Now() time.Time {
	return time.Now()
}

const (
	// DefaultRateLimitWindow is the window for rate limiting.
	DefaultRateLimitWindow = 5 * time.Second
	// DefaultRateLimit is the number of requests allowed per window.
	DefaultRateLimit = 10
	// cleanupInterval is how often expired entries are purged.
	cleanupInterval = time.Minute
)

// apiKeyHeader carries the shared key on protected routes.
const apiKeyHeader = "X-Api-Key"

// rateLimitInfo tracks one client's window.
type rateLimitInfo struct {
	count      int
	lastAccess time.Time
}

// SecurityMiddleware enforces the API key and a per-client rate limit
// on mutating endpoints.
type SecurityMiddleware struct {
	cfg          *config.ServerConfig
	log          logger.Interface
	mu           sync.Mutex
	rateLimiter  map[string]rateLimitInfo
	timeProvider TimeProvider
	window       time.Duration
	maxRequests  int
	cleanupWG    sync.WaitGroup
}

var _ SecurityMiddlewareInterface = (*SecurityMiddleware)(nil)

// NewSecurityMiddleware creates a new security middleware instance.
func NewSecurityMiddleware(cfg *config.ServerConfig, log logger.Interface) *SecurityMiddleware {
	return &SecurityMiddleware{
		cfg:          cfg,
		log:          log,
		rateLimiter:  make(map[string]rateLimitInfo),
		timeProvider: &realTimeProvider{},
		window:       DefaultRateLimitWindow,
		maxRequests:  DefaultRateLimit,
	}
}

// SetTimeProvider replaces the clock. Intended for tests.
func (m *SecurityMiddleware) SetTimeProvider(tp TimeProvider) {
	m.timeProvider = tp
}

// SetRateLimit overrides the per-client request budget.
func (m *SecurityMiddleware) SetRateLimit(maxRequests int, window time.Duration) {
	m.maxRequests = maxRequests
	m.window = window
}

// Middleware returns the gin handler enforcing the configured
// security policy.
func (m *SecurityMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.cfg.SecurityEnabled {
			c.Next()
			return
		}

		if c.GetHeader(apiKeyHeader) != m.cfg.APIKey {
			m.log.Warn("request rejected: invalid api key",
				"path", c.Request.URL.Path,
				"client", c.ClientIP(),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}

		if !m.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// allow applies the fixed-window rate limit for one client.
func (m *SecurityMiddleware) allow(client string) bool {
	now := m.timeProvider.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.rateLimiter[client]
	if !ok || now.Sub(info.lastAccess) > m.window {
		m.rateLimiter[client] = rateLimitInfo{count: 1, lastAccess: now}
		return true
	}
	if info.count >= m.maxRequests {
		return false
	}
	info.count++
	m.rateLimiter[client] = info
	return true
}

// Cleanup starts the expired-entry purge loop.
func (m *SecurityMiddleware) Cleanup(ctx context.Context) {
	m.cleanupWG.Add(1)
	go func() {
		defer m.cleanupWG.Done()
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.purgeExpired()
			}
		}
	}()
}

// WaitCleanup blocks until the cleanup goroutine exits.
func (m *SecurityMiddleware) WaitCleanup() {
	m.cleanupWG.Wait()
}

// purgeExpired drops rate limit entries whose window has passed.
func (m *SecurityMiddleware) purgeExpired() {
	now := m.timeProvider.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	for client, info := range m.rateLimiter {
		if now.Sub(info.lastAccess) > m.window {
			delete(m.rateLimiter, client)
		}
	}
}
