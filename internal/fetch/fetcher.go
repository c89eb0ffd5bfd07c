// Package fetch provides the default fetch collaborator: a colly-backed
// page fetcher that executes one job through an egress point, and a
// net/http prober used by egress health sweeps. Callers that render
// pages can plug in their own collaborator instead.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	colly "github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/proxy"

	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/egress"
	"github.com/jonesrussell/goharvest/internal/logger"
)

// Fetch defaults.
const (
	DefaultUserAgent    = "goharvest/1.0"
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 10 * 1024 * 1024
)

// HTTP transport defaults.
const (
	defaultMaxIdleConns          = 100
	defaultMaxIdleConnsPerHost   = 10
	defaultIdleConnTimeout       = 90 * time.Second
	defaultResponseHeaderTimeout = 30 * time.Second
)

// defaultItemSelectors is tried for sources without configured
// selectors. Kept in sync with the detector's product heuristic.
var defaultItemSelectors = []string{".product-item", ".product", ".item"}

// Config tunes the fetcher.
type Config struct {
	// UserAgent is sent on every request.
	UserAgent string
	// Timeout bounds one fetch when the job carries no timeout of its
	// own.
	Timeout time.Duration
	// MaxBodyBytes truncates response bodies beyond this size.
	MaxBodyBytes int
	// ProductSelectors maps a source name to the CSS selectors counted
	// as harvested items on its pages.
	ProductSelectors map[string][]string
}

// DefaultConfig returns the fetch settings used when the config file
// leaves them unset.
func DefaultConfig() Config {
	return Config{
		UserAgent:    DefaultUserAgent,
		Timeout:      DefaultTimeout,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Fetcher retrieves pages with colly. Each fetch gets its own
// collector so the egress proxy, timeout and user agent apply to that
// request alone. The fetcher never renders, so Screenshot stays nil in
// every result.
type Fetcher struct {
	cfg Config
	log logger.Interface
}

// New builds a fetcher, filling in defaults for zero-valued settings.
func New(cfg Config, log logger.Interface) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Fetcher{cfg: cfg, log: log.WithComponent("fetch")}
}

// Fetch retrieves the job's URL, optionally through an egress point,
// and reports what came back. Transport failures and HTTP error
// statuses are reported inside the result; a non-nil error means the
// fetch could not be attempted at all. Error pages keep their body so
// the detector can inspect challenge markup.
func (f *Fetcher) Fetch(ctx context.Context, job *domain.Job, point *egress.Point) (*domain.FetchResult, error) {
	if job == nil {
		return nil, errors.New("nil job")
	}

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}

	collector, err := f.buildCollector(ctx, timeout, point)
	if err != nil {
		return nil, err
	}

	var (
		statusCode int
		body       []byte
		errReason  string
		items      int
	)

	collector.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = r.Body
	})

	collector.OnHTML(f.itemSelectorGroup(job.Source), func(*colly.HTMLElement) {
		items++
	})

	collector.OnError(func(r *colly.Response, visitErr error) {
		if r != nil && r.StatusCode > 0 {
			statusCode = r.StatusCode
			body = r.Body
		}
		if visitErr != nil {
			errReason = visitErr.Error()
		}
	})

	start := time.Now()
	visitErr := collector.Visit(job.URL)

	if visitErr != nil && errReason == "" {
		errReason = visitErr.Error()
	}

	success := errReason == "" &&
		statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices
	if !success && errReason == "" {
		errReason = fmt.Sprintf("HTTP %d", statusCode)
	}

	result := &domain.FetchResult{
		Success:     success,
		StatusCode:  statusCode,
		Content:     body,
		ErrorReason: errReason,
		Duration:    time.Since(start),
		ItemsFound:  items,
		Bytes:       int64(len(body)),
	}

	f.log.Debug("page fetched",
		"url", job.URL,
		"source", job.Source,
		"status", result.StatusCode,
		"success", result.Success,
		"items", result.ItemsFound,
		"bytes", result.Bytes,
		"duration", result.Duration,
	)
	return result, nil
}

// buildCollector assembles a single-use collector for one fetch.
func (f *Fetcher) buildCollector(ctx context.Context, timeout time.Duration, point *egress.Point) (*colly.Collector, error) {
	collector := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.UserAgent(f.cfg.UserAgent),
		colly.MaxBodySize(f.cfg.MaxBodyBytes),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
	)
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
	})

	// SetProxyFunc mutates the transport, so it has to run after
	// WithTransport.
	if point != nil {
		switcher, err := proxy.RoundRobinProxySwitcher(egressProxyURL(point))
		if err != nil {
			return nil, fmt.Errorf("configuring egress proxy %s: %w", point.ID, err)
		}
		collector.SetProxyFunc(switcher)
	}
	return collector, nil
}

// itemSelectorGroup joins the source's item selectors into one
// selector group so an element matching several selectors is counted
// once.
func (f *Fetcher) itemSelectorGroup(source string) string {
	selectors, ok := f.cfg.ProductSelectors[source]
	if !ok || len(selectors) == 0 {
		selectors = defaultItemSelectors
	}
	return strings.Join(selectors, ", ")
}

// egressProxyURL renders the proxy URL for an egress point. Addresses
// that already carry a scheme are used as-is.
func egressProxyURL(point *egress.Point) string {
	if strings.Contains(point.Address, "://") {
		return point.Address
	}
	protocol := point.Protocol
	if protocol == "" {
		protocol = "http"
	}
	return protocol + "://" + point.Address
}
