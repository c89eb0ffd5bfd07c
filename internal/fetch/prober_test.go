package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/goharvest/internal/egress"
	"github.com/jonesrussell/goharvest/internal/fetch"
	"github.com/jonesrussell/goharvest/internal/logger"
)

func TestProbeReportsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"origin":"127.0.0.1"}`))
	}))
	t.Cleanup(srv.Close)

	p := fetch.NewProber(0, logger.NewNoOp())
	result := p.Probe(context.Background(), nil, srv.URL)

	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Positive(t, result.ResponseTime)
	assert.Empty(t, result.Error)
}

func TestProbeFlagsChallengeStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	p := fetch.NewProber(0, logger.NewNoOp())
	result := p.Probe(context.Background(), nil, srv.URL)

	assert.False(t, result.Success)
	assert.Equal(t, http.StatusTooManyRequests, result.StatusCode)
	assert.Equal(t, "HTTP 429", result.Error)
}

func TestProbeReportsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := srv.URL
	srv.Close()

	p := fetch.NewProber(0, logger.NewNoOp())
	result := p.Probe(context.Background(), nil, target)

	assert.False(t, result.Success)
	assert.Zero(t, result.StatusCode)
	assert.NotEmpty(t, result.Error)
}

func TestProbeRoutesThroughPoint(t *testing.T) {
	var sawAbsoluteURL bool
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.IsAbs() {
			sawAbsoluteURL = true
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(proxySrv.Close)

	point := &egress.Point{
		ID:       "res-9",
		Address:  strings.TrimPrefix(proxySrv.URL, "http://"),
		Protocol: "http",
	}
	p := fetch.NewProber(0, logger.NewNoOp())
	result := p.Probe(context.Background(), point, "http://goharvest.invalid/ip")

	assert.True(t, result.Success)
	assert.True(t, sawAbsoluteURL, "request should be sent proxy-style")
}
