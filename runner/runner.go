// Package runner is the matrix executor: it schedules every matrix cell
// through a bounded worker pool, walks each case through its state machine,
// guarantees exactly-once teardown, and aggregates the structured report.
package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/p2p-interop/harness/driver"
	"github.com/p2p-interop/harness/framework"
	o "github.com/p2p-interop/harness/framework/opt"
	"github.com/p2p-interop/harness/matrix"
	"github.com/p2p-interop/harness/rendezvous"
	"github.com/p2p-interop/harness/roundtrip"
)

// Config holds everything a matrix run needs.
type Config struct {
	// Drivers maps environment names to their launchers.
	Drivers map[string]driver.Driver

	// Store is the harness's own rendezvous client, used to detect listener
	// readiness and to clean up case keys at teardown.
	Store rendezvous.Store

	// Workers bounds how many cases run concurrently; zero means 4. The pool
	// is sized to avoid exhausting processes and browser sessions, not for
	// throughput.
	Workers int

	// CaseTimeout bounds one whole case from provisioning to verdict.
	CaseTimeout time.Duration

	// RendezvousTimeout bounds the wait for the listener's record.
	RendezvousTimeout time.Duration

	// ConnectTimeout bounds the dialer's connection establishment, and
	// VerifyTimeout the probe echo after that; VerifyTimeout is the shorter
	// of the two.
	ConnectTimeout time.Duration
	VerifyTimeout  time.Duration

	// InfraRetries is how many extra attempts an infrastructure failure gets;
	// undefined means the default, and Some(0) disables retries entirely.
	// Protocol failures are never retried.
	InfraRetries o.Maybe[int]

	// Filter optionally restricts which cases run; excluded cases are
	// reported as skipped.
	Filter Filter

	Reporter Reporter
}

const (
	defaultWorkers           = 4
	defaultCaseTimeout       = 2 * time.Minute
	defaultRendezvousTimeout = 30 * time.Second
	defaultConnectTimeout    = 30 * time.Second
	defaultVerifyTimeout     = 10 * time.Second
	defaultInfraRetries      = 2
)

type Runner struct {
	config Config
}

func New(config Config) *Runner {
	if config.Workers <= 0 {
		config.Workers = defaultWorkers
	}
	if config.CaseTimeout == 0 {
		config.CaseTimeout = defaultCaseTimeout
	}
	if config.RendezvousTimeout == 0 {
		config.RendezvousTimeout = defaultRendezvousTimeout
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = defaultConnectTimeout
	}
	if config.VerifyTimeout == 0 {
		config.VerifyTimeout = defaultVerifyTimeout
	}
	if !config.InfraRetries.IsDefined() {
		config.InfraRetries = o.Some(defaultInfraRetries)
	}
	if config.Reporter == nil {
		config.Reporter = nullReporter{}
	}
	return &Runner{config: config}
}

// Run executes every case through the worker pool and returns the aggregated
// results. Case failures never abort the run; cancelling ctx is the only way
// to end it early.
func (r *Runner) Run(ctx context.Context, cases []matrix.TestCase) Results {
	jobs := make(chan matrix.TestCase)
	resultCh := make(chan TestResult)

	var workers sync.WaitGroup
	for i := 0; i < r.config.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for testCase := range jobs {
				resultCh <- r.runCase(ctx, testCase)
			}
		}()
	}

	go func() {
		// declaration order; the pool imposes no priority beyond that
		for _, testCase := range cases {
			jobs <- testCase
		}
		close(jobs)
		workers.Wait()
		close(resultCh)
	}()

	var results Results
	for result := range resultCh {
		results.Results = append(results.Results, result)
	}
	return results
}

func (r *Runner) runCase(ctx context.Context, testCase matrix.TestCase) TestResult {
	id := testCase.ID()
	r.config.Reporter.CaseStarted(id)

	result := TestResult{Case: testCase, ID: id}
	switch {
	case r.config.Filter != nil && !r.config.Filter.Match(id):
		result.Outcome = OutcomeSkipped
		result.Reason = "excluded by filter parameters"
	case testCase.SkipReason() != "":
		result.Outcome = OutcomeSkipped
		result.Reason = testCase.SkipReason()
	default:
		retries := r.config.InfraRetries.Value()
		var logger framework.CapturingLogger
		for attempt := 1; ; attempt++ {
			result = r.runCaseOnce(ctx, testCase, &logger)
			result.Attempts = attempt
			if result.Category != roundtrip.CategoryInfra || attempt > retries {
				break
			}
			logger.Printf("retrying after infrastructure failure (attempt %d of %d): %s",
				attempt, retries+1, result.Reason)
		}
		result.Output = logger.Output()
	}

	r.config.Reporter.CaseFinished(result)
	return result
}

// runCaseOnce walks one attempt through provisioning, rendezvous, and
// verification. Teardown is attempted exactly once on every exit path,
// including panics in the verification logic.
func (r *Runner) runCaseOnce(ctx context.Context, testCase matrix.TestCase, logger framework.Logger) (result TestResult) {
	id := testCase.ID()
	result = TestResult{Case: testCase, ID: id}

	caseCtx, cancel := context.WithTimeout(ctx, r.config.CaseTimeout)
	defer cancel()

	var handles []driver.Handle
	defer func() {
		if p := recover(); p != nil {
			result.Outcome = OutcomeFailed
			result.Category = roundtrip.CategoryInfra
			result.Reason = fmt.Sprintf("panic during verification: %v", p)
			logger.Printf("panic during verification: %v\n%s", p, string(debug.Stack()))
		}
		for _, h := range handles {
			h.Stop()
		}
		r.cleanupRendezvous(id, logger)
	}()

	fail := func(outcome Outcome, category roundtrip.FailureCategory, reason string) TestResult {
		result.Outcome = outcome
		result.Category = category
		result.Reason = reason
		logger.Printf("case %s: %s (%s)", id, outcome.terminalState(), reason)
		return result
	}

	// Provisioning: listener first; it must exist before rendezvous can work.
	logger.Printf("case %s: provisioning (%s)", id, StateProvisioning)
	listenerDriver := r.config.Drivers[testCase.Listener.Name]
	dialerDriver := r.config.Drivers[testCase.Dialer.Name]
	if listenerDriver == nil || dialerDriver == nil {
		return fail(OutcomeFailed, roundtrip.CategoryInfra, "no driver configured for environment")
	}

	listenerHandle, err := listenerDriver.Start(caseCtx, rendezvous.RoleListener, testCase,
		framework.LoggerWithPrefix(logger, "listener: "))
	if err != nil {
		return fail(OutcomeFailed, roundtrip.CategoryInfra, err.Error())
	}
	handles = append(handles, listenerHandle)

	// Rendezvousing: the listener's published record doubles as its readiness
	// signal, and is exactly what the dialer will consume.
	logger.Printf("case %s: %s", id, StateRendezvousing)
	rendezvousCtx, cancelRendezvous := context.WithTimeout(caseCtx, r.config.RendezvousTimeout)
	record, err := r.config.Store.Await(rendezvousCtx, rendezvous.Key(id, rendezvous.RoleListener))
	cancelRendezvous()
	if err != nil {
		if caseCtx.Err() != nil {
			return fail(OutcomeTimedOut, roundtrip.CategoryTimeout, "case deadline exceeded during rendezvous")
		}
		return fail(OutcomeFailed, roundtrip.CategoryRendezvousTimeout,
			fmt.Sprintf("listener never published its rendezvous record: %s", err))
	}
	logger.Printf("case %s: listener ready at %s (peer %s)", id, record.Multiaddr, record.PeerID)

	dialerHandle, err := dialerDriver.Start(caseCtx, rendezvous.RoleDialer, testCase,
		framework.LoggerWithPrefix(logger, "dialer: "))
	if err != nil {
		return fail(OutcomeFailed, roundtrip.CategoryInfra, err.Error())
	}
	handles = append(handles, dialerHandle)

	// Verifying: connection established first, then the probe echo under its
	// own, shorter deadline.
	logger.Printf("case %s: %s", id, StateVerifying)
	connectCtx, cancelConnect := context.WithTimeout(caseCtx, r.config.ConnectTimeout)
	event, err := driver.AwaitEvent(connectCtx, dialerHandle, roundtrip.EventConnected)
	cancelConnect()
	if err != nil {
		if caseCtx.Err() != nil || connectCtx.Err() != nil {
			return fail(OutcomeTimedOut, roundtrip.CategoryTimeout, "dialer never reported an established connection")
		}
		return fail(OutcomeFailed, roundtrip.CategoryInfra,
			fmt.Sprintf("dialer ended before reporting a connection: %s", err))
	}

	if event.Kind == roundtrip.EventConnected {
		verifyCtx, cancelVerify := context.WithTimeout(caseCtx, r.config.VerifyTimeout)
		event, err = driver.AwaitEvent(verifyCtx, dialerHandle, roundtrip.EventResult)
		cancelVerify()
		if err != nil {
			return fail(OutcomeTimedOut, roundtrip.CategoryTimeout, "dialer never reported a probe result")
		}
	}

	probe := event.Result
	if !probe.OK {
		return fail(OutcomeFailed, probe.Category, probe.Error)
	}
	result.Outcome = OutcomePassed
	result.Latency = time.Duration(probe.LatencyMS * float64(time.Millisecond))
	logger.Printf("case %s: %s in %s", id, OutcomePassed.terminalState(), result.Latency)
	return result
}

// cleanupRendezvous deletes both roles' keys. Deleting an absent key is a
// no-op in every backend, so repeated or racing cleanup is harmless. The
// deletes use a fresh context because the case's own context is usually
// already cancelled by the time teardown runs.
func (r *Runner) cleanupRendezvous(caseID string, logger framework.Logger) {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, role := range []string{rendezvous.RoleListener, rendezvous.RoleDialer} {
		if err := r.config.Store.Delete(cleanupCtx, rendezvous.Key(caseID, role)); err != nil {
			logger.Printf("failed to clean up rendezvous key for %s/%s: %s", caseID, role, err)
		}
	}
}
