package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jonesrussell/goharvest/internal/egress"
	"github.com/jonesrussell/goharvest/internal/logger"
)

// DefaultProbeTimeout bounds one connectivity probe.
const DefaultProbeTimeout = 10 * time.Second

// probeBodyLimit caps how much of the probe response body is drained.
const probeBodyLimit = 4 * 1024

// HTTPProber checks egress point connectivity with a plain GET against
// a known target, routed through the point's proxy.
type HTTPProber struct {
	timeout time.Duration
	log     logger.Interface
}

// NewProber builds a prober. A non-positive timeout falls back to
// DefaultProbeTimeout.
func NewProber(timeout time.Duration, log logger.Interface) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &HTTPProber{timeout: timeout, log: log.WithComponent("prober")}
}

// Probe issues one GET through the egress point and reports status and
// round trip time. Transport failures carry a zero status code.
func (p *HTTPProber) Probe(ctx context.Context, point *egress.Point, targetURL string) egress.ProbeResult {
	client, err := p.client(point)
	if err != nil {
		return egress.ProbeResult{Error: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, http.NoBody)
	if err != nil {
		return egress.ProbeResult{Error: err.Error()}
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return egress.ProbeResult{ResponseTime: elapsed, Error: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, probeBodyLimit))

	result := egress.ProbeResult{
		StatusCode:   resp.StatusCode,
		ResponseTime: elapsed,
		Success:      resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices,
	}
	if !result.Success {
		result.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return result
}

// client builds the HTTP client for one probe. Points without an
// address probe the target directly.
func (p *HTTPProber) client(point *egress.Point) (*http.Client, error) {
	transport := &http.Transport{
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
	}
	if point != nil && point.Address != "" {
		proxyURL, err := url.Parse(egressProxyURL(point))
		if err != nil {
			return nil, fmt.Errorf("parsing proxy address for %s: %w", point.ID, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &http.Client{Timeout: p.timeout, Transport: transport}, nil
}
