package pingagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pingagent/dashboard"
	"github.com/jpalmerr/pingagent/internal/poller"
	"github.com/jpalmerr/pingagent/internal/proxy"
	"github.com/jpalmerr/pingagent/internal/server"
	"github.com/jpalmerr/pingagent/internal/store"
)

const (
	// DefaultBaseURL is the API root pings are sent to.
	DefaultBaseURL = "https://api.hivello.services"

	// DefaultRequestTimeout bounds each ping request.
	DefaultRequestTimeout = poller.DefaultTimeout

	// DefaultPacing is the pause after each device within a cycle.
	DefaultPacing = poller.DefaultPacing

	// DefaultMinInterval and DefaultMaxInterval bound the pause between cycles.
	DefaultMinInterval = poller.DefaultMinInterval
	DefaultMaxInterval = poller.DefaultMaxInterval
)

// Agent keeps a set of devices marked as online by pinging the remote API
// on a randomized schedule.
//
// Agent is created using [New] with functional options and started with
// [Agent.Start]:
//
//	agent, err := pingagent.New(pingagent.WithDevices(devices...))
//	if err != nil {
//	    slog.Error("failed to create agent", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	agent.Start(ctx) // blocks until context cancelled
type Agent struct {
	devices        []Device
	proxies        []string
	useProxy       bool
	baseURL        string
	requestTimeout time.Duration
	pacing         time.Duration
	minInterval    time.Duration
	maxInterval    time.Duration
	userAgent      string
	statusPort     int
	logger         *slog.Logger
	pingCallbacks  []func(PingResult)
}

// New creates a new [Agent] with the given options.
//
// At least one device must be configured via [WithDevice] or [WithDevices],
// and device IDs must be unique. Other settings default to:
//   - Base URL: https://api.hivello.services
//   - Request timeout: 10 seconds
//   - Pacing: 2 seconds
//   - Cycle interval: 6 to 7 minutes
//   - Proxy mode: off
//   - Status server: off
func New(opts ...Option) (*Agent, error) {
	cfg := &agentConfig{
		baseURL:        DefaultBaseURL,
		requestTimeout: DefaultRequestTimeout,
		pacing:         DefaultPacing,
		minInterval:    DefaultMinInterval,
		maxInterval:    DefaultMaxInterval,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.devices) == 0 {
		return nil, errors.New("at least one device is required")
	}

	// device IDs key the status store
	seen := make(map[string]bool, len(cfg.devices))
	for _, d := range cfg.devices {
		if seen[d.id] {
			return nil, fmt.Errorf("duplicate device id: %q", d.id)
		}
		seen[d.id] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		devices:        cfg.devices,
		proxies:        cfg.proxies,
		useProxy:       cfg.useProxy,
		baseURL:        cfg.baseURL,
		requestTimeout: cfg.requestTimeout,
		pacing:         cfg.pacing,
		minInterval:    cfg.minInterval,
		maxInterval:    cfg.maxInterval,
		userAgent:      cfg.userAgent,
		statusPort:     cfg.statusPort,
		logger:         logger,
		pingCallbacks:  cfg.pingCallbacks,
	}, nil
}

// Start runs the polling loop until ctx is cancelled.
//
// The first cycle begins immediately. Devices are pinged one at a time in
// configuration order, each followed by the pacing delay; after a full pass
// the agent sleeps a random interval and repeats. Failed pings are logged and
// retried in the next cycle. When a status port is configured the status
// server runs alongside the loop.
//
// Cancelling ctx aborts any in-flight request. Returns nil on graceful
// shutdown, or an error if the status server cannot bind its port.
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("ping agent starting",
		"device_count", len(a.devices),
		"proxy_count", len(a.proxies),
		"use_proxy", a.useProxy,
		"base_url", a.baseURL,
	)

	if ctx.Err() != nil {
		return nil
	}

	client := poller.NewClient(a.logger)
	defer client.Close()

	dispatcher, err := poller.NewPingDispatcher(client, poller.DispatcherConfig{
		BaseURL:   a.baseURL,
		Timeout:   a.requestTimeout,
		UserAgent: a.userAgent,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	var rotator *proxy.Rotator
	if a.useProxy {
		rotator = proxy.NewRotator(a.proxies, a.logger)
		if rotator.Len() == 0 {
			a.logger.Warn("proxy mode enabled but no proxies configured, pinging direct")
		}
	}

	statusStore := store.NewMemoryStore()
	if a.statusPort > 0 {
		httpServer := server.NewServer(statusStore, a.statusPort, dashboard.Assets, a.logger)
		if err := httpServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
	}

	scheduler := poller.NewScheduler(a.toTargets(), rotator, dispatcher, poller.SchedulerConfig{
		UseProxy:    a.useProxy,
		Pacing:      a.pacing,
		MinInterval: a.minInterval,
		MaxInterval: a.maxInterval,
	}, a.logger)
	scheduler.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for outcome := range scheduler.Results() {
			// store first so callbacks observe persisted data
			statusStore.Update(outcomeToRecord(outcome))

			if len(a.pingCallbacks) > 0 {
				result := outcomeToPublicResult(outcome)
				for _, cb := range a.pingCallbacks {
					invokeCallbackSafe(cb, result, a.logger)
				}
			}
		}
	}()

	<-ctx.Done()
	scheduler.Stop() // closes results channel
	wg.Wait()
	a.logger.Info("ping agent stopped")
	return nil
}

// toTargets converts devices to the poller's view, preserving order.
func (a *Agent) toTargets() []poller.Target {
	targets := make([]poller.Target, len(a.devices))
	for i, d := range a.devices {
		targets[i] = poller.Target{ID: d.id, Token: d.token, Label: d.label}
	}
	return targets
}

// Devices returns a copy of the configured devices in polling order.
func (a *Agent) Devices() []Device {
	cp := make([]Device, len(a.devices))
	copy(cp, a.devices)
	return cp
}

// Proxies returns a copy of the configured proxy URIs.
func (a *Agent) Proxies() []string {
	cp := make([]string, len(a.proxies))
	copy(cp, a.proxies)
	return cp
}

// UsesProxy reports whether proxy mode is on.
func (a *Agent) UsesProxy() bool {
	return a.useProxy
}

// BaseURL returns the API root.
func (a *Agent) BaseURL() string {
	return a.baseURL
}

// CycleInterval returns the bounds of the pause between cycles.
func (a *Agent) CycleInterval() (min, max time.Duration) {
	return a.minInterval, a.maxInterval
}

// Pacing returns the pause after each device.
func (a *Agent) Pacing() time.Duration {
	return a.pacing
}

// StatusPort returns the status server port, zero when disabled.
func (a *Agent) StatusPort() int {
	return a.statusPort
}

func outcomeToRecord(o poller.Outcome) store.PingRecord {
	var errStr *string
	if o.Error != nil {
		s := o.Error.Error()
		errStr = &s
	}

	status := store.StatusOK
	if !o.OK {
		status = store.StatusFailed
	}

	return store.PingRecord{
		DeviceID:       o.DeviceID,
		Label:          o.Label,
		Cycle:          o.Cycle,
		Status:         status,
		Proxy:          o.Proxy,
		StatusCode:     o.StatusCode,
		ResponseTimeMs: o.Latency.Milliseconds(),
		CheckedAt:      o.SentAt,
		Error:          errStr,
	}
}

func outcomeToPublicResult(o poller.Outcome) PingResult {
	return PingResult{
		DeviceID:   o.DeviceID,
		Label:      o.Label,
		Cycle:      o.Cycle,
		Proxy:      o.Proxy,
		OK:         o.OK,
		StatusCode: o.StatusCode,
		Latency:    o.Latency,
		SentAt:     o.SentAt,
		Error:      o.Error,
	}
}

// invokeCallbackSafe calls a ping callback with panic recovery.
// Panics are logged with a correlation ID but do not propagate.
func invokeCallbackSafe(cb func(PingResult), result PingResult, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("ping callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"device", result.Label,
				"stack", string(debug.Stack()),
			)
		}
	}()
	cb(result)
}
