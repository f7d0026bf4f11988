package runner

import (
	"fmt"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/p2p-interop/harness/framework"
	"github.com/p2p-interop/harness/matrix"
	"github.com/p2p-interop/harness/roundtrip"
)

// TestResult is the immutable record of one finished case.
type TestResult struct {
	Case     matrix.TestCase
	ID       string
	Outcome  Outcome
	Category roundtrip.FailureCategory

	// Latency is the measured probe round trip for passed cases.
	Latency time.Duration

	// Reason explains skips and failures in one line.
	Reason string

	// Attempts counts driver launches, >1 only when infrastructure failures
	// were retried.
	Attempts int

	// Output is everything the case logged: driver activity and both
	// participants' output.
	Output framework.CapturedOutput
}

// Results aggregates every case of a matrix run, in completion order.
type Results struct {
	Results []TestResult
}

// OK reports whether the run should gate as successful: no failures and no
// timeouts. Skipped cases are excluded from the verdict by design.
func (r Results) OK() bool {
	for _, result := range r.Results {
		if result.Outcome == OutcomeFailed || result.Outcome == OutcomeTimedOut {
			return false
		}
	}
	return true
}

// Counts returns the number of cases per outcome.
func (r Results) Counts() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, result := range r.Results {
		counts[result.Outcome]++
	}
	return counts
}

// Failures returns the failed and timed-out cases.
func (r Results) Failures() []TestResult {
	var failures []TestResult
	for _, result := range r.Results {
		if result.Outcome == OutcomeFailed || result.Outcome == OutcomeTimedOut {
			failures = append(failures, result)
		}
	}
	return failures
}

// DimensionCount is the outcome tally for all cases sharing one capability or
// environment value.
type DimensionCount struct {
	Passed  int
	Failed  int
	Skipped int
}

// PassRate is the pass fraction over the cases that actually ran; skipped
// cases are excluded from the denominator.
func (d DimensionCount) PassRate() float64 {
	ran := d.Passed + d.Failed
	if ran == 0 {
		return 0
	}
	return float64(d.Passed) / float64(ran)
}

// ByDimension groups outcomes along every capability axis and environment
// role, so a report can localize which capability is broken rather than just
// which combinations. Keys look like "transport:quic" or "dialer:js-browser".
func (r Results) ByDimension() map[string]DimensionCount {
	dims := make(map[string]DimensionCount)
	add := func(key string, result TestResult) {
		d := dims[key]
		switch result.Outcome {
		case OutcomePassed:
			d.Passed++
		case OutcomeFailed, OutcomeTimedOut:
			d.Failed++
		case OutcomeSkipped:
			d.Skipped++
		}
		dims[key] = d
	}
	for _, result := range r.Results {
		add(fmt.Sprintf("transport:%s", result.Case.Transport), result)
		if !result.Case.Transport.Standalone() {
			add(fmt.Sprintf("security:%s", result.Case.Security), result)
			add(fmt.Sprintf("muxer:%s", result.Case.Muxer), result)
		}
		add(fmt.Sprintf("dialer:%s", result.Case.Dialer.Name), result)
		add(fmt.Sprintf("listener:%s", result.Case.Listener.Name), result)
	}
	return dims
}

// DimensionKeys returns the dimension names in stable sorted order.
func DimensionKeys(dims map[string]DimensionCount) []string {
	keys := maps.Keys(dims)
	slices.Sort(keys)
	return keys
}
