package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jpalmerr/pingagent/internal/proxy"
)

const (
	// DefaultTimeout bounds a single ping request.
	DefaultTimeout = 10 * time.Second

	// DefaultUserAgent impersonates the desktop client the remote API expects.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Hivello/1.4.0 Chrome/124.0.6367.230 Electron/30.0.8 Safari/537.36"

	// earningStatus is the overall status reported by every ping.
	earningStatus = "Earning"
)

// ErrUnexpectedStatus is wrapped by outcomes whose response was not 2xx.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// chainStatus is one entry of the network_status list.
type chainStatus struct {
	Chain   string `json:"chain"`
	Earning bool   `json:"earning"`
}

// pingPayload is the JSON body of every ping.
type pingPayload struct {
	Status        string        `json:"status"`
	NetworkStatus []chainStatus `json:"network_status"`
}

// networkStatus is fixed; livepeer is the only chain reported as not earning.
var networkStatus = []chainStatus{
	{Chain: "aioz", Earning: true},
	{Chain: "filecoin", Earning: true},
	{Chain: "golem", Earning: true},
	{Chain: "livepeer", Earning: false},
	{Chain: "myst", Earning: true},
	{Chain: "nosana", Earning: true},
	{Chain: "pkt", Earning: true},
	{Chain: "sentinel", Earning: true},
}

// Target is the poller-internal view of a device.
//
// It is decoupled from pingagent.Device to avoid an import cycle.
type Target struct {
	// ID is the device identifier used in the ping URL.
	ID string

	// Token is sent as the bearer token.
	Token string

	// Label is the name used in logs.
	Label string
}

// Outcome is the result of a single ping.
//
// A failed ping is reported through OK=false and Error, never through a
// panic or a separate error return.
type Outcome struct {
	DeviceID string
	Label    string

	// Cycle is the polling cycle that produced this outcome. Zero when the
	// dispatcher was called outside the scheduler.
	Cycle uint64

	// Proxy is the masked proxy URI used, or empty for direct requests.
	Proxy string

	OK         bool
	StatusCode int
	Latency    time.Duration
	SentAt     time.Time
	Error      error
}

// Dispatcher sends one ping for one device.
//
// Implementations must not return errors through panics; every ordinary
// failure is reported in the returned [Outcome].
type Dispatcher interface {
	Dispatch(ctx context.Context, target Target, ep proxy.Endpoint) Outcome
}

// DispatcherConfig holds the settings for a [PingDispatcher].
type DispatcherConfig struct {
	// BaseURL is the API root; pings go to {BaseURL}/devices/{id}/ping.
	BaseURL string

	// Timeout bounds each request. Zero means [DefaultTimeout].
	Timeout time.Duration

	// UserAgent overrides [DefaultUserAgent] when non-empty.
	UserAgent string
}

// PingDispatcher is the [Dispatcher] that talks to the remote API.
type PingDispatcher struct {
	client  *Client
	baseURL string
	timeout time.Duration
	headers map[string]string
	body    []byte
	logger  *slog.Logger
}

// NewPingDispatcher creates a [PingDispatcher] that sends requests with client.
//
// The request body and static headers are built once here.
func NewPingDispatcher(client *Client, cfg DispatcherConfig, logger *slog.Logger) (*PingDispatcher, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	body, err := json.Marshal(pingPayload{
		Status:        earningStatus,
		NetworkStatus: networkStatus,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode ping payload: %w", err)
	}

	return &PingDispatcher{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		headers: map[string]string{
			"Accept":             "application/json",
			"Content-Type":       "application/json",
			"User-Agent":         userAgent,
			"sec-ch-ua":          `"Not-A.Brand";v="99", "Chromium";v="124"`,
			"sec-ch-ua-mobile":   "?0",
			"sec-ch-ua-platform": `"Windows"`,
		},
		body:   body,
		logger: logger,
	}, nil
}

// PingURL returns the ping URL for a device ID.
func (d *PingDispatcher) PingURL(deviceID string) string {
	return d.baseURL + "/devices/" + url.PathEscape(deviceID) + "/ping"
}

// Dispatch sends a single ping for target, through ep unless ep is zero.
//
// Transport errors, timeouts and non-2xx responses are logged with the
// device label and returned as OK=false. There is no retry; the next cycle
// is the retry.
func (d *PingDispatcher) Dispatch(ctx context.Context, target Target, ep proxy.Endpoint) Outcome {
	headers := make(map[string]string, len(d.headers)+1)
	for k, v := range d.headers {
		headers[k] = v
	}
	headers["Authorization"] = "Bearer " + target.Token

	sentAt := time.Now()
	resp := d.client.Post(ctx, d.PingURL(target.ID), headers, d.body, d.timeout, ep)

	outcome := Outcome{
		DeviceID:   target.ID,
		Label:      target.Label,
		StatusCode: resp.StatusCode,
		Latency:    resp.Latency,
		SentAt:     sentAt,
		Error:      resp.Error,
	}
	if !ep.IsZero() {
		outcome.Proxy = ep.Masked()
	}

	if outcome.Error == nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		outcome.Error = fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if outcome.Error != nil {
		d.logger.Error("device ping failed",
			"device", target.Label,
			"status_code", resp.StatusCode,
			"error", outcome.Error.Error(),
		)
		return outcome
	}

	outcome.OK = true
	d.logger.Debug("device ping accepted",
		"device", target.Label,
		"status_code", resp.StatusCode,
		"latency_ms", resp.Latency.Milliseconds(),
	)
	return outcome
}
