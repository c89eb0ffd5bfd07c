package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/egress"
	"github.com/jonesrussell/goharvest/internal/fetch"
	"github.com/jonesrussell/goharvest/internal/logger"
)

func htmlServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchCountsDefaultItems(t *testing.T) {
	body := `<html><body>
		<div class="product-item">alpha</div>
		<div class="product-item">beta</div>
		<div class="product-item">gamma</div>
	</body></html>`
	srv := htmlServer(t, http.StatusOK, body)

	f := fetch.New(fetch.Config{}, logger.NewNoOp())
	job := domain.NewJob("acme", "listings", srv.URL, domain.TierHigh)

	result, err := f.Fetch(context.Background(), job, nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, 3, result.ItemsFound)
	assert.Equal(t, int64(len(body)), result.Bytes)
	assert.Empty(t, result.ErrorReason)
	assert.Nil(t, result.Screenshot)
	assert.Positive(t, result.Duration)
}

func TestFetchUsesSourceSelectors(t *testing.T) {
	body := `<html><body>
		<div data-sku="1"></div>
		<div data-sku="2"></div>
		<div class="product">ignored for this source</div>
	</body></html>`
	srv := htmlServer(t, http.StatusOK, body)

	cfg := fetch.Config{
		ProductSelectors: map[string][]string{"acme": {"[data-sku]"}},
	}
	f := fetch.New(cfg, logger.NewNoOp())
	job := domain.NewJob("acme", "listings", srv.URL, domain.TierMedium)

	result, err := f.Fetch(context.Background(), job, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ItemsFound)
}

func TestFetchKeepsBlockedPageBody(t *testing.T) {
	body := `<html><head><title>Access Denied</title></head><body>access denied</body></html>`
	srv := htmlServer(t, http.StatusForbidden, body)

	f := fetch.New(fetch.Config{}, logger.NewNoOp())
	job := domain.NewJob("acme", "listings", srv.URL, domain.TierHigh)

	result, err := f.Fetch(context.Background(), job, nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, http.StatusForbidden, result.StatusCode)
	assert.Equal(t, "HTTP 403", result.ErrorReason)
	assert.Contains(t, string(result.Content), "access denied")
}

func TestFetchReportsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := srv.URL
	srv.Close()

	f := fetch.New(fetch.Config{}, logger.NewNoOp())
	job := domain.NewJob("acme", "listings", target, domain.TierLow)

	result, err := f.Fetch(context.Background(), job, nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Zero(t, result.StatusCode)
	assert.NotEmpty(t, result.ErrorReason)
}

func TestFetchHonorsJobTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	f := fetch.New(fetch.Config{}, logger.NewNoOp())
	job := domain.NewJob("acme", "listings", srv.URL, domain.TierHigh)
	job.Timeout = 100 * time.Millisecond

	start := time.Now()
	result, err := f.Fetch(context.Background(), job, nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.ErrorReason)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetchRoutesThroughEgressPoint(t *testing.T) {
	body := `<html><body><div class="item">via proxy</div></body></html>`
	var sawAbsoluteURL bool
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.IsAbs() {
			sawAbsoluteURL = true
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(proxySrv.Close)

	point := &egress.Point{
		ID:       "dc-1",
		Address:  strings.TrimPrefix(proxySrv.URL, "http://"),
		Protocol: "http",
	}
	f := fetch.New(fetch.Config{}, logger.NewNoOp())
	job := domain.NewJob("acme", "listings", "http://upstream.invalid/catalog", domain.TierMedium)

	result, err := f.Fetch(context.Background(), job, point)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ItemsFound)
	assert.True(t, sawAbsoluteURL, "request should be sent proxy-style")
}
