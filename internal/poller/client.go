package poller

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jpalmerr/pingagent/internal/proxy"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits; one pool per proxy endpoint plus one direct
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// Response holds the result of an HTTP request made by [Client].
type Response struct {
	// Body contains the HTTP response body, limited to 1MB.
	Body []byte

	// StatusCode is the HTTP status code. Zero if the request failed before
	// receiving a response.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any error that occurred during the request.
	// nil indicates the request completed (though status may indicate an error).
	Error error
}

// Client is an HTTP client wrapper used to send pings.
//
// Client keeps one transport per proxy endpoint so that connections to the
// same proxy are reused across cycles. Timeouts are applied per request via
// context rather than on the underlying http.Client.
type Client struct {
	base   *http.Transport
	logger *slog.Logger

	mu      sync.Mutex
	direct  *http.Client
	proxied map[string]*http.Client
}

// NewClient creates a new [Client]. A nil logger falls back to [slog.Default].
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	base := &http.Transport{
		Proxy:               nil, // proxying is decided per request, never from the environment
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		MaxConnsPerHost:     defaultMaxConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		base:    base,
		logger:  logger,
		direct:  &http.Client{Transport: base},
		proxied: make(map[string]*http.Client),
	}
}

// httpClientFor returns the http.Client routing through ep.
//
// Endpoints that cannot carry traffic are logged and served by the direct
// client; a bad proxy entry never fails the request on its own.
func (c *Client) httpClientFor(ep proxy.Endpoint) *http.Client {
	if ep.IsZero() {
		return c.direct
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if hc, ok := c.proxied[ep.Raw()]; ok {
		return hc
	}

	rt, err := proxy.TransportFor(ep, c.base)
	if err != nil {
		c.logger.Warn("failed to build proxy transport, sending direct",
			"proxy", ep.Masked(),
			"error", err.Error(),
		)
		c.proxied[ep.Raw()] = c.direct
		return c.direct
	}

	hc := &http.Client{Transport: rt}
	c.proxied[ep.Raw()] = hc
	return hc
}

// Post sends body to url through ep (the zero Endpoint means direct).
//
// Post always returns a Response; errors are captured in the Error field
// rather than returned separately. Non-2xx status codes are NOT treated as
// errors here; that decision belongs to the caller.
func (c *Client) Post(ctx context.Context, url string, headers map[string]string, body []byte, timeout time.Duration, ep proxy.Endpoint) Response {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClientFor(ep).Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	limitedReader := io.LimitReader(resp.Body, maxResponseBodySize)
	respBody, err := io.ReadAll(limitedReader)
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return Response{
		Body:       respBody,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// Close closes idle connections in every pool owned by the client.
//
// Safe to call multiple times and on a nil receiver. The client remains
// usable afterwards.
func (c *Client) Close() {
	if c == nil || c.base == nil {
		return
	}

	c.base.CloseIdleConnections()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, hc := range c.proxied {
		hc.CloseIdleConnections()
	}
}
