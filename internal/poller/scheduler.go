package poller

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pingagent/internal/proxy"
)

const (
	// DefaultPacing is the pause after each device within a cycle.
	DefaultPacing = 2 * time.Second

	// DefaultMinInterval and DefaultMaxInterval bound the pause between cycles.
	DefaultMinInterval = 6 * time.Minute
	DefaultMaxInterval = 7 * time.Minute
)

// SchedulerConfig holds the pacing settings for a [Scheduler].
type SchedulerConfig struct {
	// UseProxy routes each ping through the next proxy from the rotator.
	// With an empty rotator, pings go direct.
	UseProxy bool

	// Pacing is the pause after each device.
	Pacing time.Duration

	// MinInterval and MaxInterval bound the randomized pause between cycles.
	// MinInterval is also the retry delay when a cycle fails before any
	// interval has been drawn.
	MinInterval time.Duration
	MaxInterval time.Duration
}

// Scheduler runs the polling loop.
//
// Each cycle visits every target in order, one at a time: it picks the next
// proxy (when enabled), dispatches the ping, emits the [Outcome] and sleeps
// the pacing delay. After the last target it sleeps a random interval drawn
// from [MinInterval, MaxInterval] and starts the next cycle. There is no
// terminal state; the loop ends only when its context is cancelled.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	targets    []Target
	rotator    *proxy.Rotator
	dispatcher Dispatcher
	cfg        SchedulerConfig
	results    chan Outcome
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once

	// loop state, owned by the polling goroutine
	cycle     uint64
	lastDelay time.Duration

	// replaceable in tests
	sleep func(ctx context.Context, d time.Duration) error
	intN  func(n int) int
	now   func() time.Time
}

// NewScheduler creates a new polling [Scheduler].
//
// Parameters:
//   - targets: devices to ping, in the order they are visited each cycle
//   - rotator: shared proxy rotation; may be nil when proxies are unused
//   - dispatcher: sends the individual pings
//   - cfg: pacing and interval settings; zero fields take the defaults
//   - logger: logger for cycle events; nil means [slog.Default]
//
// The scheduler must be started with [Scheduler.Start] and stopped with
// [Scheduler.Stop]. Outcomes are available via [Scheduler.Results].
func NewScheduler(targets []Target, rotator *proxy.Rotator, dispatcher Dispatcher, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.Pacing < 0 {
		cfg.Pacing = 0
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultMaxInterval
	}
	if cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = cfg.MinInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		targets:    targets,
		rotator:    rotator,
		dispatcher: dispatcher,
		cfg:        cfg,
		results:    make(chan Outcome, len(targets)),
		logger:     logger,
		lastDelay:  cfg.MinInterval,
		sleep:      sleepContext,
		intN:       rand.IntN,
		now:        time.Now,
	}
}

// Results returns a receive-only channel that emits one [Outcome] per ping.
//
// The channel is closed when the scheduler stops. Consumers should read from
// it until it is closed; the loop blocks while the buffer is full.
func (s *Scheduler) Results() <-chan Outcome {
	return s.results
}

// Start begins the polling loop in a background goroutine.
//
// Start is non-blocking. The first cycle begins immediately. If ctx is nil,
// context.Background() is used. Start is idempotent, and a no-op after Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	pollCtx := s.ctx // capture under lock to avoid race
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		s.run(pollCtx)
	}()
}

// Stop cancels the loop and waits for it to exit.
//
// An in-flight request is aborted through its context rather than awaited.
// Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	// ensure channel is closed even if Start() was never called
	s.closeOnce.Do(func() { close(s.results) })
}

// run is the unbounded loop: cycle, sleep, repeat.
func (s *Scheduler) run(ctx context.Context) {
	for {
		delay, err := s.runCycle(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Error("polling cycle failed",
				"cycle", s.cycle,
				"error", err.Error(),
				"retry_in", delay.String(),
			)
		}

		if err := s.sleep(ctx, delay); err != nil {
			return
		}
	}
}

// runCycle performs one pass over all targets and returns the delay before
// the next cycle.
//
// A panic anywhere in the pass is recovered and reported as an error with a
// correlation ID; the returned delay is then the last interval drawn.
func (s *Scheduler) runCycle(ctx context.Context) (delay time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("polling cycle panic",
				"correlation_id", correlationID,
				"cycle", s.cycle,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			delay = s.lastDelay
			err = fmt.Errorf("cycle panic (correlation_id: %s)", correlationID)
		}
	}()

	s.cycle++
	s.logger.Info("polling cycle started",
		"cycle", s.cycle,
		"time", s.now().Format(time.DateTime),
		"devices", len(s.targets),
	)

	for _, target := range s.targets {
		var ep proxy.Endpoint
		if s.cfg.UseProxy {
			if next, ok := s.rotator.Next(); ok {
				ep = next
				s.logger.Info("using proxy", "device", target.Label, "proxy", ep.Masked())
			}
		}

		outcome := s.dispatcher.Dispatch(ctx, target, ep)
		outcome.Cycle = s.cycle
		if outcome.DeviceID == "" {
			outcome.DeviceID = target.ID
		}
		if outcome.Label == "" {
			outcome.Label = target.Label
		}

		if ctx.Err() != nil {
			return s.lastDelay, ctx.Err()
		}

		if outcome.OK {
			s.logger.Info("ping cycle succeeded", "device", outcome.Label, "cycle", s.cycle)
		} else {
			s.logger.Warn("ping cycle failed, retrying next cycle", "device", outcome.Label, "cycle", s.cycle)
		}

		select {
		case s.results <- outcome:
		case <-ctx.Done():
			return s.lastDelay, ctx.Err()
		}

		if err := s.sleep(ctx, s.cfg.Pacing); err != nil {
			return s.lastDelay, err
		}
	}

	delay = RandomInterval(s.cfg.MinInterval, s.cfg.MaxInterval, s.intN)
	s.lastDelay = delay
	s.logger.Info("polling cycle complete",
		"cycle", s.cycle,
		"next_cycle_in", delay.String(),
	)
	return delay, nil
}

// RandomInterval draws a duration uniformly from the closed range [lo, hi].
//
// Ranges of at least a second are drawn in whole seconds, shorter ranges in
// milliseconds. intN must behave like [rand.IntN]. If hi <= lo, lo is
// returned.
func RandomInterval(lo, hi time.Duration, intN func(n int) int) time.Duration {
	if hi <= lo {
		return lo
	}

	step := time.Second
	if hi-lo < time.Second {
		step = time.Millisecond
	}
	steps := int((hi - lo) / step)
	if steps <= 0 {
		return lo
	}

	return lo + time.Duration(intN(steps+1))*step
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
