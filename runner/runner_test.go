package runner

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2p-interop/harness/driver"
	"github.com/p2p-interop/harness/framework"
	o "github.com/p2p-interop/harness/framework/opt"
	"github.com/p2p-interop/harness/matrix"
	"github.com/p2p-interop/harness/rendezvous"
	"github.com/p2p-interop/harness/roundtrip"
)

// fakeDriver plays scripted participant behavior so runner logic can be tested
// without processes or real hosts. The listener script publishes a rendezvous
// record; the dialer script emits events.
type fakeDriver struct {
	store rendezvous.Store

	// startErr, when set, makes every Start fail.
	startErr error

	// listenerSilent suppresses the listener's rendezvous publication.
	listenerSilent bool

	// dialerEvents is what the dialer reports, in order.
	dialerEvents []roundtrip.Event

	starts   atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	mu       sync.Mutex
	handles  []*fakeHandle
}

type fakeHandle struct {
	events   chan roundtrip.Event
	stopOnce sync.Once
	stops    atomic.Int32
	parent   *fakeDriver
}

func (h *fakeHandle) Events() <-chan roundtrip.Event { return h.events }

func (h *fakeHandle) Stop() {
	h.stops.Add(1)
	h.stopOnce.Do(func() {
		h.parent.inFlight.Add(-1)
	})
}

func (d *fakeDriver) Start(ctx context.Context, role string, testCase matrix.TestCase, _ framework.Logger) (driver.Handle, error) {
	d.starts.Add(1)
	if d.startErr != nil {
		return nil, d.startErr
	}

	n := d.inFlight.Add(1)
	for {
		max := d.maxSeen.Load()
		if n <= max || d.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}

	h := &fakeHandle{events: make(chan roundtrip.Event, 16), parent: d}
	d.mu.Lock()
	d.handles = append(d.handles, h)
	d.mu.Unlock()

	switch role {
	case rendezvous.RoleListener:
		h.events <- roundtrip.Event{Kind: roundtrip.EventReady}
		if !d.listenerSilent {
			_ = d.store.Publish(ctx, rendezvous.Key(testCase.ID(), rendezvous.RoleListener), rendezvous.Record{
				CaseID:    testCase.ID(),
				Role:      rendezvous.RoleListener,
				Multiaddr: "/ip4/127.0.0.1/tcp/4001",
				PeerID:    "12D3KooWTestPeer",
				ReadyAt:   time.Now(),
			})
		}
	case rendezvous.RoleDialer:
		h.events <- roundtrip.Event{Kind: roundtrip.EventReady}
		for _, e := range d.dialerEvents {
			h.events <- e
		}
		close(h.events)
	}
	return h, nil
}

func (d *fakeDriver) allHandleStops() []int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var counts []int32
	for _, h := range d.handles {
		counts = append(counts, h.stops.Load())
	}
	return counts
}

func testEnvironment(name string) *matrix.Environment {
	return &matrix.Environment{
		Name: name,
		Kind: matrix.KindNative,
		Capabilities: matrix.CapabilitySet{
			Transports: []string{"tcp"},
			Securities: []string{"noise"},
			Muxers:     []string{"yamux"},
		},
	}
}

func testCases(n int) []matrix.TestCase {
	var cases []matrix.TestCase
	for i := 0; i < n; i++ {
		cases = append(cases, matrix.TestCase{
			Dialer:    testEnvironment(fmt.Sprintf("dialer%d", i)),
			Listener:  testEnvironment("go"),
			Transport: matrix.TransportTCP,
			Security:  matrix.SecurityNoise,
			Muxer:     matrix.MuxerYamux,
		})
	}
	return cases
}

func newTestConfig(store rendezvous.Store, d driver.Driver, cases []matrix.TestCase) Config {
	drivers := make(map[string]driver.Driver)
	for _, c := range cases {
		drivers[c.Dialer.Name] = d
		drivers[c.Listener.Name] = d
	}
	return Config{
		Drivers:           drivers,
		Store:             store,
		Workers:           2,
		CaseTimeout:       5 * time.Second,
		RendezvousTimeout: 200 * time.Millisecond,
		ConnectTimeout:    time.Second,
		VerifyTimeout:     time.Second,
		InfraRetries:      o.Some(1),
	}
}

func successEvents() []roundtrip.Event {
	return []roundtrip.Event{
		{Kind: roundtrip.EventConnected},
		{Kind: roundtrip.EventResult, Result: roundtrip.Result{OK: true, LatencyMS: 12.5}},
	}
}

func TestRunnerPassingCase(t *testing.T) {
	store := rendezvous.NewMemoryStore()
	cases := testCases(1)
	d := &fakeDriver{store: store, dialerEvents: successEvents()}

	results := New(newTestConfig(store, d, cases)).Run(context.Background(), cases)

	require.Len(t, results.Results, 1)
	result := results.Results[0]
	assert.Equal(t, OutcomePassed, result.Outcome)
	assert.Equal(t, roundtrip.CategoryNone, result.Category)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 12500*time.Microsecond, result.Latency)
	assert.True(t, results.OK())
}

func TestRunnerSkipsUnsupportedCapability(t *testing.T) {
	store := rendezvous.NewMemoryStore()
	cases := testCases(1)
	cases[0].Muxer = matrix.MuxerMplex // not in the environments' capability sets
	d := &fakeDriver{store: store}

	results := New(newTestConfig(store, d, cases)).Run(context.Background(), cases)

	require.Len(t, results.Results, 1)
	assert.Equal(t, OutcomeSkipped, results.Results[0].Outcome)
	assert.Contains(t, results.Results[0].Reason, "does not support")
	assert.Zero(t, d.starts.Load(), "skipped cases must not provision participants")
	assert.True(t, results.OK(), "skips do not fail the run")
}

func TestRunnerSkipsFilteredCase(t *testing.T) {
	store := rendezvous.NewMemoryStore()
	cases := testCases(2)
	d := &fakeDriver{store: store, dialerEvents: successEvents()}

	config := newTestConfig(store, d, cases)
	config.Filter = RegexFilters{MustNotMatch: PatternList{regexp.MustCompile("^dialer1x")}}
	results := New(config).Run(context.Background(), cases)

	require.Len(t, results.Results, 2)
	outcomes := map[string]Outcome{}
	for _, r := range results.Results {
		outcomes[r.Case.Dialer.Name] = r.Outcome
	}
	assert.Equal(t, OutcomePassed, outcomes["dialer0"])
	assert.Equal(t, OutcomeSkipped, outcomes["dialer1"])
}

func TestRunnerRendezvousTimeout(t *testing.T) {
	store := rendezvous.NewMemoryStore()
	cases := testCases(1)
	d := &fakeDriver{store: store, listenerSilent: true}

	config := newTestConfig(store, d, cases)
	config.InfraRetries = o.Some(1)
	results := New(config).Run(context.Background(), cases)

	require.Len(t, results.Results, 1)
	result := results.Results[0]
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, roundtrip.CategoryRendezvousTimeout, result.Category)
	assert.Equal(t, 1, result.Attempts, "rendezvous timeouts are protocol failures, not retried")
	assert.False(t, results.OK())
}

func TestRunnerRetriesInfrastructureFailures(t *testing.T) {
	store := rendezvous.NewMemoryStore()
	cases := testCases(1)
	d := &fakeDriver{store: store, startErr: &driver.InfraError{Err: fmt.Errorf("spawn failed")}}

	config := newTestConfig(store, d, cases)
	config.InfraRetries = o.Some(2)
	results := New(config).Run(context.Background(), cases)

	require.Len(t, results.Results, 1)
	result := results.Results[0]
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, roundtrip.CategoryInfra, result.Category)
	assert.Equal(t, 3, result.Attempts, "initial attempt plus two retries")
	assert.EqualValues(t, 3, d.starts.Load())
}

func TestRunnerZeroRetriesDisablesRetry(t *testing.T) {
	store := rendezvous.NewMemoryStore()
	cases := testCases(1)
	d := &fakeDriver{store: store, startErr: &driver.InfraError{Err: fmt.Errorf("spawn failed")}}

	config := newTestConfig(store, d, cases)
	config.InfraRetries = o.Some(0)
	results := New(config).Run(context.Background(), cases)

	require.Len(t, results.Results, 1)
	result := results.Results[0]
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, 1, result.Attempts, "explicit zero means no retries, not the default")
	assert.EqualValues(t, 1, d.starts.Load())
}

func TestRunnerDoesNotRetryProtocolFailures(t *testing.T) {
	store := rendezvous.NewMemoryStore()
	cases := testCases(1)
	d := &fakeDriver{store: store, dialerEvents: []roundtrip.Event{
		{Kind: roundtrip.EventResult, Result: roundtrip.Result{
			OK: false, Category: roundtrip.CategoryHandshake, Error: "failed to negotiate security protocol",
		}},
	}}

	config := newTestConfig(store, d, cases)
	config.InfraRetries = o.Some(3)
	results := New(config).Run(context.Background(), cases)

	require.Len(t, results.Results, 1)
	result := results.Results[0]
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, roundtrip.CategoryHandshake, result.Category)
	assert.Equal(t, 1, result.Attempts)
}

func TestRunnerVerifyTimeoutWhenDialerHangs(t *testing.T) {
	store := rendezvous.NewMemoryStore()
	cases := testCases(1)
	// connected but never a result; the dialer's channel must stay open, so
	// script the hang with an unclosed handle
	d := &hangingDialerDriver{fakeDriver{store: store}}

	config := newTestConfig(store, d, cases)
	config.VerifyTimeout = 200 * time.Millisecond
	results := New(config).Run(context.Background(), cases)

	require.Len(t, results.Results, 1)
	result := results.Results[0]
	assert.Equal(t, OutcomeTimedOut, result.Outcome)
	assert.Equal(t, roundtrip.CategoryTimeout, result.Category)
}

type hangingDialerDriver struct {
	fakeDriver
}

func (d *hangingDialerDriver) Start(ctx context.Context, role string, testCase matrix.TestCase, logger framework.Logger) (driver.Handle, error) {
	if role == rendezvous.RoleListener {
		return d.fakeDriver.Start(ctx, role, testCase, logger)
	}
	d.starts.Add(1)
	h := &fakeHandle{events: make(chan roundtrip.Event, 16), parent: &d.fakeDriver}
	d.inFlight.Add(1)
	d.mu.Lock()
	d.handles = append(d.handles, h)
	d.mu.Unlock()
	h.events <- roundtrip.Event{Kind: roundtrip.EventReady}
	h.events <- roundtrip.Event{Kind: roundtrip.EventConnected}
	return h, nil
}

func TestRunnerTeardown(t *testing.T) {
	store := rendezvous.NewMemoryStore()
	cases := testCases(3)
	d := &fakeDriver{store: store, dialerEvents: successEvents()}

	results := New(newTestConfig(store, d, cases)).Run(context.Background(), cases)

	require.Len(t, results.Results, 3)
	assert.Empty(t, store.Keys(), "every rendezvous key must be deleted at teardown")
	for i, stops := range d.allHandleStops() {
		assert.GreaterOrEqual(t, stops, int32(1), "handle %d was never stopped", i)
	}
	assert.Zero(t, d.inFlight.Load(), "all participants released")
}

func TestRunnerBoundsConcurrency(t *testing.T) {
	store := rendezvous.NewMemoryStore()
	cases := testCases(8)
	d := &fakeDriver{store: store, dialerEvents: successEvents()}

	config := newTestConfig(store, d, cases)
	config.Workers = 2
	results := New(config).Run(context.Background(), cases)

	require.Len(t, results.Results, 8)
	// two participants per case, two cases at a time
	assert.LessOrEqual(t, d.maxSeen.Load(), int32(4))
}

func TestRunnerReporterSequence(t *testing.T) {
	store := rendezvous.NewMemoryStore()
	cases := testCases(1)
	d := &fakeDriver{store: store, dialerEvents: successEvents()}

	var reporter recordingReporter
	config := newTestConfig(store, d, cases)
	config.Reporter = &reporter
	_ = New(config).Run(context.Background(), cases)

	require.Len(t, reporter.started, 1)
	require.Len(t, reporter.finished, 1)
	assert.Equal(t, reporter.started[0], reporter.finished[0].ID)
}

type recordingReporter struct {
	mu       sync.Mutex
	started  []string
	finished []TestResult
}

func (r *recordingReporter) CaseStarted(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
}

func (r *recordingReporter) CaseFinished(result TestResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, result)
}

func (r *recordingReporter) EndLog(Results) error { return nil }

func TestResultsByDimension(t *testing.T) {
	cases := testCases(2)
	results := Results{Results: []TestResult{
		{Case: cases[0], ID: cases[0].ID(), Outcome: OutcomePassed},
		{Case: cases[1], ID: cases[1].ID(), Outcome: OutcomeFailed, Category: roundtrip.CategoryDial},
	}}

	dims := results.ByDimension()
	assert.Equal(t, DimensionCount{Passed: 1, Failed: 1}, dims["transport:tcp"])
	assert.Equal(t, DimensionCount{Passed: 1, Failed: 1}, dims["listener:go"])
	assert.Equal(t, DimensionCount{Passed: 1}, dims["dialer:dialer0"])
	assert.InDelta(t, 0.5, dims["transport:tcp"].PassRate(), 0.001)
}

func TestResultsOKPolicy(t *testing.T) {
	onlySkips := Results{Results: []TestResult{
		{Outcome: OutcomeSkipped},
		{Outcome: OutcomePassed},
	}}
	assert.True(t, onlySkips.OK())

	withTimeout := Results{Results: []TestResult{
		{Outcome: OutcomePassed},
		{Outcome: OutcomeTimedOut},
	}}
	assert.False(t, withTimeout.OK())
}
