package poller

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/pingagent/internal/proxy"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// dispatchCall records a single call made to a fakeDispatcher.
type dispatchCall struct {
	deviceID string
	proxy    string
}

// fakeDispatcher records calls and answers with fn (or success when fn is nil).
type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	fn    func(n int, target Target) Outcome
}

func (f *fakeDispatcher) Dispatch(_ context.Context, target Target, ep proxy.Endpoint) Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, dispatchCall{deviceID: target.ID, proxy: ep.Raw()})
	n := len(f.calls)
	f.mu.Unlock()

	if f.fn != nil {
		return f.fn(n, target)
	}
	return Outcome{DeviceID: target.ID, Label: target.Label, OK: true}
}

func (f *fakeDispatcher) Calls() []dispatchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatchCall(nil), f.calls...)
}

// sleepRecorder replaces Scheduler.sleep. It records every requested delay
// and cancels the loop once stopWhen returns true.
type sleepRecorder struct {
	mu       sync.Mutex
	delays   []time.Duration
	cancel   context.CancelFunc
	stopWhen func(d time.Duration) bool
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	stop := r.stopWhen != nil && r.stopWhen(d)
	r.mu.Unlock()

	if stop {
		r.cancel()
	}
	return ctx.Err()
}

func (r *sleepRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func targets(ids ...string) []Target {
	out := make([]Target, len(ids))
	for i, id := range ids {
		out[i] = Target{ID: id, Token: "tok-" + id, Label: "label-" + id}
	}
	return out
}

// runUntilStopped starts s, drains its results until the loop exits and
// returns them.
func runUntilStopped(t *testing.T, ctx context.Context, s *Scheduler) []Outcome {
	t.Helper()

	s.Start(ctx)

	var outcomes []Outcome
	done := make(chan struct{})
	go func() {
		defer close(done)
		for o := range s.Results() {
			outcomes = append(outcomes, o)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	s.Stop()
	return outcomes
}

// TestScheduler_SingleCycleNoProxies dispatches two devices directly in order
// with a pacing delay after each.
func TestScheduler_SingleCycleNoProxies(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := newTestDispatcher(t, server.URL, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := SchedulerConfig{Pacing: 2 * time.Second, MinInterval: time.Hour, MaxInterval: time.Hour}
	rec := &sleepRecorder{cancel: cancel, stopWhen: func(d time.Duration) bool { return d == time.Hour }}

	s := NewScheduler([]Target{
		{ID: "d1", Token: "tok1", Label: "Device1"},
		{ID: "d2", Token: "tok2", Label: "Device2"},
	}, nil, d, cfg, testLogger())
	s.sleep = rec.sleep

	outcomes := runUntilStopped(t, ctx, s)

	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	if outcomes[0].DeviceID != "d1" || outcomes[1].DeviceID != "d2" {
		t.Errorf("order = %s, %s; want d1, d2", outcomes[0].DeviceID, outcomes[1].DeviceID)
	}
	for _, o := range outcomes {
		if !o.OK {
			t.Errorf("outcome for %s not OK: %v", o.DeviceID, o.Error)
		}
		if o.Cycle != 1 {
			t.Errorf("outcome for %s has cycle %d, want 1", o.DeviceID, o.Cycle)
		}
	}

	mu.Lock()
	gotPaths := append([]string(nil), paths...)
	mu.Unlock()
	if len(gotPaths) != 2 || gotPaths[0] != "/devices/d1/ping" || gotPaths[1] != "/devices/d2/ping" {
		t.Errorf("requests = %v, want d1 then d2", gotPaths)
	}

	want := []time.Duration{2 * time.Second, 2 * time.Second, time.Hour}
	delays := rec.Delays()
	if len(delays) != len(want) {
		t.Fatalf("sleeps = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

// TestScheduler_SharedProxyRotation verifies that the rotation cursor is
// shared across devices: p0, p1, p0 for three devices and two proxies.
func TestScheduler_SharedProxyRotation(t *testing.T) {
	proxies := []string{"http://10.0.0.1:8080", "socks5://10.0.0.2:1080"}
	fd := &fakeDispatcher{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &sleepRecorder{cancel: cancel, stopWhen: func(d time.Duration) bool { return d == time.Hour }}

	s := NewScheduler(targets("d1", "d2", "d3"), proxy.NewRotator(proxies, testLogger()), fd,
		SchedulerConfig{UseProxy: true, Pacing: time.Millisecond, MinInterval: time.Hour, MaxInterval: time.Hour},
		testLogger())
	s.sleep = rec.sleep

	runUntilStopped(t, ctx, s)

	calls := fd.Calls()
	want := []dispatchCall{
		{"d1", proxies[0]},
		{"d2", proxies[1]},
		{"d3", proxies[0]},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call[%d] = %+v, want %+v", i, calls[i], want[i])
		}
	}
}

// TestScheduler_RotationContinuesAcrossCycles verifies the cursor is not
// reset between cycles.
func TestScheduler_RotationContinuesAcrossCycles(t *testing.T) {
	proxies := []string{"http://a:1", "http://b:2", "http://c:3"}
	fd := &fakeDispatcher{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	intervals := 0
	rec := &sleepRecorder{cancel: cancel, stopWhen: func(d time.Duration) bool {
		if d == time.Hour {
			intervals++
		}
		return intervals == 2
	}}

	s := NewScheduler(targets("d1", "d2"), proxy.NewRotator(proxies, testLogger()), fd,
		SchedulerConfig{UseProxy: true, MinInterval: time.Hour, MaxInterval: time.Hour}, testLogger())
	s.sleep = rec.sleep

	runUntilStopped(t, ctx, s)

	calls := fd.Calls()
	wantProxies := []string{"http://a:1", "http://b:2", "http://c:3", "http://a:1"}
	if len(calls) != len(wantProxies) {
		t.Fatalf("got %d calls, want %d", len(calls), len(wantProxies))
	}
	for i, want := range wantProxies {
		if calls[i].proxy != want {
			t.Errorf("call[%d] proxy = %q, want %q", i, calls[i].proxy, want)
		}
	}
}

func TestScheduler_ProxyModeWithEmptyListGoesDirect(t *testing.T) {
	fd := &fakeDispatcher{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &sleepRecorder{cancel: cancel, stopWhen: func(d time.Duration) bool { return d == time.Hour }}

	s := NewScheduler(targets("d1", "d2"), proxy.NewRotator(nil, testLogger()), fd,
		SchedulerConfig{UseProxy: true, MinInterval: time.Hour, MaxInterval: time.Hour}, testLogger())
	s.sleep = rec.sleep

	runUntilStopped(t, ctx, s)

	for _, c := range fd.Calls() {
		if c.proxy != "" {
			t.Errorf("device %s used proxy %q, want direct", c.deviceID, c.proxy)
		}
	}
}

func TestScheduler_ProxyModeDisabledIgnoresRotator(t *testing.T) {
	fd := &fakeDispatcher{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &sleepRecorder{cancel: cancel, stopWhen: func(d time.Duration) bool { return d == time.Hour }}

	rotator := proxy.NewRotator([]string{"http://a:1"}, testLogger())
	s := NewScheduler(targets("d1"), rotator, fd,
		SchedulerConfig{UseProxy: false, MinInterval: time.Hour, MaxInterval: time.Hour}, testLogger())
	s.sleep = rec.sleep

	runUntilStopped(t, ctx, s)

	if calls := fd.Calls(); len(calls) != 1 || calls[0].proxy != "" {
		t.Errorf("calls = %+v, want one direct call", calls)
	}
}

// TestScheduler_FailedPingDoesNotStopCycle verifies a failed device does not
// prevent the remaining devices from being pinged.
func TestScheduler_FailedPingDoesNotStopCycle(t *testing.T) {
	fd := &fakeDispatcher{fn: func(n int, target Target) Outcome {
		return Outcome{DeviceID: target.ID, OK: target.ID != "d1"}
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &sleepRecorder{cancel: cancel, stopWhen: func(d time.Duration) bool { return d == time.Hour }}

	s := NewScheduler(targets("d1", "d2"), nil, fd,
		SchedulerConfig{MinInterval: time.Hour, MaxInterval: time.Hour}, testLogger())
	s.sleep = rec.sleep

	outcomes := runUntilStopped(t, ctx, s)

	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	if outcomes[0].OK || !outcomes[1].OK {
		t.Errorf("OK flags = %v, %v; want false, true", outcomes[0].OK, outcomes[1].OK)
	}
	if outcomes[0].Label != "label-d1" {
		t.Errorf("Label not filled from target: %q", outcomes[0].Label)
	}
}

// TestScheduler_PanicIsRecoveredAndLoopContinues verifies that an unexpected
// failure inside a cycle is logged, followed by the fallback delay, and the
// next cycle still runs.
func TestScheduler_PanicIsRecoveredAndLoopContinues(t *testing.T) {
	fd := &fakeDispatcher{fn: func(n int, target Target) Outcome {
		if n == 1 {
			panic("unexpected dispatcher defect")
		}
		return Outcome{DeviceID: target.ID, OK: true}
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const (
		minInterval = time.Hour
		maxInterval = 2 * time.Hour
	)
	rec := &sleepRecorder{cancel: cancel, stopWhen: func(d time.Duration) bool { return d == maxInterval }}

	s := NewScheduler(targets("d1"), nil, fd,
		SchedulerConfig{Pacing: time.Second, MinInterval: minInterval, MaxInterval: maxInterval}, testLogger())
	s.sleep = rec.sleep
	s.intN = func(n int) int { return n - 1 } // always draw the upper bound

	outcomes := runUntilStopped(t, ctx, s)

	if len(outcomes) != 1 {
		t.Fatalf("got %d outcomes, want 1 (from the second cycle)", len(outcomes))
	}
	if outcomes[0].Cycle != 2 {
		t.Errorf("outcome cycle = %d, want 2", outcomes[0].Cycle)
	}

	// fallback delay after the panic, pacing, then the drawn interval
	want := []time.Duration{minInterval, time.Second, maxInterval}
	delays := rec.Delays()
	if len(delays) != len(want) {
		t.Fatalf("sleeps = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

// TestScheduler_PanicReusesLastInterval verifies the retry delay after a
// failure is the most recently drawn interval once one exists.
func TestScheduler_PanicReusesLastInterval(t *testing.T) {
	fd := &fakeDispatcher{fn: func(n int, target Target) Outcome {
		if n == 2 {
			panic("boom")
		}
		return Outcome{DeviceID: target.ID, OK: true}
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleeps := 0
	rec := &sleepRecorder{cancel: cancel, stopWhen: func(d time.Duration) bool {
		sleeps++
		return sleeps == 3
	}}

	s := NewScheduler(targets("d1"), nil, fd,
		SchedulerConfig{MinInterval: 10 * time.Second, MaxInterval: 20 * time.Second}, testLogger())
	s.sleep = rec.sleep
	s.intN = func(n int) int { return 5 } // 15s

	runUntilStopped(t, ctx, s)

	// pacing (0), drawn interval, retry after panic
	delays := rec.Delays()
	if len(delays) != 3 {
		t.Fatalf("sleeps = %v, want 3 entries", delays)
	}
	if delays[1] != 15*time.Second || delays[2] != 15*time.Second {
		t.Errorf("sleeps = %v, want drawn interval 15s reused after panic", delays)
	}
}

// TestScheduler_CancelDuringPacing verifies that cancellation interrupts the
// real pacing sleep promptly.
func TestScheduler_CancelDuringPacing(t *testing.T) {
	fd := &fakeDispatcher{}
	ctx, cancel := context.WithCancel(context.Background())

	s := NewScheduler(targets("d1", "d2"), nil, fd,
		SchedulerConfig{Pacing: time.Hour, MinInterval: time.Hour, MaxInterval: time.Hour}, testLogger())
	s.Start(ctx)

	// wait for the first outcome, then cancel while the loop sleeps
	select {
	case <-s.Results():
	case <-time.After(5 * time.Second):
		t.Fatal("no outcome received")
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return promptly after cancellation")
	}

	if calls := fd.Calls(); len(calls) != 1 {
		t.Errorf("got %d dispatches, want 1", len(calls))
	}
}

// TestScheduler_StopBeforeStart verifies that calling Stop() on a scheduler
// that was never started does not panic and is a safe no-op.
func TestScheduler_StopBeforeStart(t *testing.T) {
	s := NewScheduler(targets("d1"), nil, &fakeDispatcher{}, SchedulerConfig{}, testLogger())
	s.Stop()
}

// TestScheduler_StopTwice verifies that Stop() is idempotent.
func TestScheduler_StopTwice(t *testing.T) {
	s := NewScheduler(targets("d1"), nil, &fakeDispatcher{}, SchedulerConfig{}, testLogger())
	s.Start(context.Background())

	go func() {
		for range s.Results() {
		}
	}()

	s.Stop()
	s.Stop()
}

// TestScheduler_ConcurrentStartStop verifies that calling Start() and Stop()
// concurrently does not cause a race condition or panic.
// Run with: go test -race ./internal/poller/...
func TestScheduler_ConcurrentStartStop(t *testing.T) {
	for i := 0; i < 100; i++ {
		s := NewScheduler(targets("d1"), nil, &fakeDispatcher{}, SchedulerConfig{}, testLogger())

		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			s.Start(context.Background())
		}()

		go func() {
			defer wg.Done()
			s.Stop()
		}()

		wg.Wait()
		s.Stop()

		for range s.Results() {
		}
	}
}

// TestScheduler_StartTwice verifies that a second Start does not spawn a
// second loop.
func TestScheduler_StartTwice(t *testing.T) {
	fd := &fakeDispatcher{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &sleepRecorder{cancel: cancel, stopWhen: func(d time.Duration) bool { return d == time.Hour }}

	s := NewScheduler(targets("d1"), nil, fd,
		SchedulerConfig{MinInterval: time.Hour, MaxInterval: time.Hour}, testLogger())
	s.sleep = rec.sleep

	s.Start(ctx)
	outcomes := runUntilStopped(t, ctx, s) // calls Start again

	if len(outcomes) != 1 || len(fd.Calls()) != 1 {
		t.Errorf("got %d outcomes and %d calls, want 1 each", len(outcomes), len(fd.Calls()))
	}
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(nil, nil, &fakeDispatcher{}, SchedulerConfig{Pacing: -1}, nil)

	if s.cfg.Pacing != 0 {
		t.Errorf("Pacing = %v, want 0", s.cfg.Pacing)
	}
	if s.cfg.MinInterval != DefaultMinInterval || s.cfg.MaxInterval != DefaultMaxInterval {
		t.Errorf("interval = [%v, %v], want defaults", s.cfg.MinInterval, s.cfg.MaxInterval)
	}
	if s.lastDelay != DefaultMinInterval {
		t.Errorf("fallback delay = %v, want %v", s.lastDelay, DefaultMinInterval)
	}

	s = NewScheduler(nil, nil, &fakeDispatcher{}, SchedulerConfig{MinInterval: time.Minute, MaxInterval: time.Second}, nil)
	if s.cfg.MaxInterval != time.Minute {
		t.Errorf("MaxInterval = %v, want clamped to MinInterval", s.cfg.MaxInterval)
	}
}

// TestRandomInterval_Bounds samples the default range and checks every draw
// lands in [360s, 420s] and the distribution is roughly uniform.
func TestRandomInterval_Bounds(t *testing.T) {
	const samples = 10000
	lo, hi := 360*time.Second, 420*time.Second

	counts := make(map[time.Duration]int)
	for i := 0; i < samples; i++ {
		d := RandomInterval(lo, hi, rand.IntN)
		if d < lo || d > hi {
			t.Fatalf("draw %d = %v outside [%v, %v]", i, d, lo, hi)
		}
		if d%time.Second != 0 {
			t.Fatalf("draw %d = %v is not whole seconds", i, d)
		}
		counts[d]++
	}

	// 61 possible values, ~164 each; allow a generous band
	if len(counts) != 61 {
		t.Errorf("saw %d distinct values, want 61", len(counts))
	}
	for d, c := range counts {
		if c < 80 || c > 260 {
			t.Errorf("value %v drawn %d times, expected roughly %d", d, c, samples/61)
		}
	}
}

func TestRandomInterval_Edges(t *testing.T) {
	tests := []struct {
		name   string
		lo, hi time.Duration
		pick   int
		want   time.Duration
	}{
		{"equal bounds", time.Minute, time.Minute, 0, time.Minute},
		{"inverted bounds", time.Minute, time.Second, 0, time.Minute},
		{"lower edge", 10 * time.Second, 20 * time.Second, 0, 10 * time.Second},
		{"upper edge", 10 * time.Second, 20 * time.Second, 10, 20 * time.Second},
		{"sub-second range", 100 * time.Millisecond, 200 * time.Millisecond, 50, 150 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RandomInterval(tt.lo, tt.hi, func(int) int { return tt.pick })
			if got != tt.want {
				t.Errorf("RandomInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepContext(ctx, time.Hour); err == nil {
		t.Error("sleepContext() on cancelled context returned nil")
	}
	if time.Since(start) > time.Second {
		t.Error("sleepContext() did not return promptly on cancelled context")
	}
}
