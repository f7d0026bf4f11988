// Package driver launches test participants in their execution environments
// and normalizes their progress reports. A native participant is an OS process
// whose stdout is scanned for marker lines; a browser participant is a script
// in a remote-controlled browser session whose console buffer is polled for
// the same markers. Both appear to the runner as the same Handle.
package driver

import (
	"context"
	"fmt"

	"github.com/p2p-interop/harness/framework"
	"github.com/p2p-interop/harness/matrix"
	"github.com/p2p-interop/harness/roundtrip"
)

// Environment variable / query parameter names of the participant contract.
const (
	ParamCaseID         = "HARNESS_CASE_ID"
	ParamRole           = "HARNESS_ROLE"
	ParamTransport      = "HARNESS_TRANSPORT"
	ParamSecurity       = "HARNESS_SECURITY"
	ParamMuxer          = "HARNESS_MUXER"
	ParamStoreBackend   = "HARNESS_RENDEZVOUS_BACKEND"
	ParamStoreAddr      = "HARNESS_RENDEZVOUS_ADDR"
	ParamTimeoutSeconds = "HARNESS_TIMEOUT_SECONDS"
)

// StoreTarget tells a participant how to reach the rendezvous store.
type StoreTarget struct {
	Backend string // "redis" or "consul"
	Addr    string
}

// Driver launches participants for one environment.
type Driver interface {
	// Start launches a participant. The logger receives all of the
	// participant's output and belongs to the test case, so its output lands
	// in that case's captured log. Failure to start is an infrastructure
	// failure, wrapped in *InfraError.
	Start(ctx context.Context, role string, testCase matrix.TestCase, logger framework.Logger) (Handle, error)
}

// Handle is a running participant. Events delivers the participant's parsed
// marker lines in order; the channel closes when the participant ends. Stop is
// idempotent and always releases the underlying process or browser session.
type Handle interface {
	Events() <-chan roundtrip.Event
	Stop()
}

// InfraError marks a failure of the harness's own machinery (spawn error,
// browser session unavailable) as opposed to a protocol failure. The runner
// retries infrastructure failures a bounded number of times; protocol
// failures are never retried.
type InfraError struct {
	Err error
}

func (e *InfraError) Error() string { return fmt.Sprintf("infrastructure failure: %s", e.Err) }
func (e *InfraError) Unwrap() error { return e.Err }

func infraErrorf(format string, args ...interface{}) error {
	return &InfraError{Err: fmt.Errorf(format, args...)}
}

// AwaitEvent consumes events from the handle until one of the wanted kind
// arrives, returning an error when the channel closes or ctx expires first.
// Result events are returned to any waiter, since a failed participant may
// never reach the awaited stage.
func AwaitEvent(ctx context.Context, h Handle, kind roundtrip.EventKind) (roundtrip.Event, error) {
	for {
		select {
		case event, ok := <-h.Events():
			if !ok {
				return roundtrip.Event{}, fmt.Errorf("participant ended before reporting the awaited stage")
			}
			if event.Kind == kind || event.Kind == roundtrip.EventResult {
				return event, nil
			}
		case <-ctx.Done():
			return roundtrip.Event{}, ctx.Err()
		}
	}
}

// eventChannelBufferSize is deliberately small; if the runner stops consuming,
// later marker lines are dropped rather than stalling the output scanner.
const eventChannelBufferSize = 16
