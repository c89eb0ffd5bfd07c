package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/jonesrussell/goharvest/internal/api/middleware"
	"github.com/jonesrussell/goharvest/internal/config"
	loggerMock "github.com/jonesrussell/goharvest/testutils/mocks/logger"
)

// mockTimeProvider is a fixed clock the tests can advance.
type mockTimeProvider struct {
	currentTime time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	return m.currentTime
}

func (m *mockTimeProvider) Advance(d time.Duration) {
	m.currentTime = m.currentTime.Add(d)
}

// setupTestRouter creates a test router behind the security
// middleware.
func setupTestRouter(
	t *testing.T,
	cfg *config.ServerConfig,
) (*gin.Engine, *middleware.SecurityMiddleware, *mockTimeProvider) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(func() { ctrl.Finish() })

	mockLog := loggerMock.NewMockInterface(ctrl)
	mockLog.EXPECT().Warn(gomock.Any(), gomock.Any()).AnyTimes()
	mockLog.EXPECT().Debug(gomock.Any(), gomock.Any()).AnyTimes()

	security := middleware.NewSecurityMiddleware(cfg, mockLog)
	mockTime := &mockTimeProvider{currentTime: time.Now()}
	security.SetTimeProvider(mockTime)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(security.Middleware())
	router.POST("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return router, security, mockTime
}

func doRequest(router *gin.Engine, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/test", http.NoBody)
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSecurityMiddleware_DisabledAllowsAll(t *testing.T) {
	t.Parallel()

	router, _, _ := setupTestRouter(t, &config.ServerConfig{SecurityEnabled: false})

	w := doRequest(router, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSecurityMiddleware_APIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		apiKey         string
		expectedStatus int
	}{
		{name: "valid key", apiKey: "secret", expectedStatus: http.StatusOK},
		{name: "wrong key", apiKey: "nope", expectedStatus: http.StatusUnauthorized},
		{name: "missing key", apiKey: "", expectedStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router, _, _ := setupTestRouter(t, &config.ServerConfig{
				SecurityEnabled: true,
				APIKey:          "secret",
			})

			w := doRequest(router, tt.apiKey)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestSecurityMiddleware_RateLimit(t *testing.T) {
	t.Parallel()

	router, security, mockTime := setupTestRouter(t, &config.ServerConfig{
		SecurityEnabled: true,
		APIKey:          "secret",
	})
	security.SetRateLimit(2, 5*time.Second)

	assert.Equal(t, http.StatusOK, doRequest(router, "secret").Code)
	assert.Equal(t, http.StatusOK, doRequest(router, "secret").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(router, "secret").Code)

	// A fresh window resets the budget.
	mockTime.Advance(6 * time.Second)
	assert.Equal(t, http.StatusOK, doRequest(router, "secret").Code)
}
