package driver

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/p2p-interop/harness/framework"
	"github.com/p2p-interop/harness/framework/helpers"
	"github.com/p2p-interop/harness/matrix"
	"github.com/p2p-interop/harness/roundtrip"
)

// defaultGracePeriod is how long Stop waits after SIGTERM before force-killing
// the participant.
const defaultGracePeriod = 3 * time.Second

// NativeDriver launches participants as OS processes, passing the test-case
// parameters through the environment and scanning stdout for marker lines.
type NativeDriver struct {
	Env   *matrix.Environment
	Store StoreTarget

	// ParticipantTimeout is handed to the participant as its own internal
	// deadline for rendezvous and probe.
	ParticipantTimeout time.Duration

	// GracePeriod overrides the SIGTERM-to-SIGKILL window; zero means the
	// default.
	GracePeriod time.Duration
}

type nativeHandle struct {
	cmd    *exec.Cmd
	events chan roundtrip.Event
	done   chan struct{}
	grace  time.Duration
	logger framework.Logger
	stop   sync.Once
}

func (d *NativeDriver) Start(ctx context.Context, role string, testCase matrix.TestCase, logger framework.Logger) (Handle, error) {
	if logger == nil {
		logger = framework.NullLogger()
	}

	cmd := exec.Command(d.Env.Command) //nolint:gosec // the command comes from the matrix spec
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%s", ParamCaseID, testCase.ID()),
		fmt.Sprintf("%s=%s", ParamRole, role),
		fmt.Sprintf("%s=%s", ParamTransport, testCase.Transport),
		fmt.Sprintf("%s=%s", ParamSecurity, testCase.Security),
		fmt.Sprintf("%s=%s", ParamMuxer, testCase.Muxer),
		fmt.Sprintf("%s=%s", ParamStoreBackend, d.Store.Backend),
		fmt.Sprintf("%s=%s", ParamStoreAddr, d.Store.Addr),
		fmt.Sprintf("%s=%d", ParamTimeoutSeconds, int(d.ParticipantTimeout.Seconds())),
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, infraErrorf("failed to create stdout pipe for %s: %w", d.Env.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, infraErrorf("failed to create stderr pipe for %s: %w", d.Env.Name, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, infraErrorf("failed to start %s participant %q: %w", role, d.Env.Command, err)
	}
	logger.Printf("started %s participant (pid %d)", role, cmd.Process.Pid)

	h := &nativeHandle{
		cmd:    cmd,
		events: make(chan roundtrip.Event, eventChannelBufferSize),
		done:   make(chan struct{}),
		grace:  d.GracePeriod,
		logger: logger,
	}
	if h.grace == 0 {
		h.grace = defaultGracePeriod
	}

	// both pipes must be fully drained before Wait, or trailing output is lost
	var scanners sync.WaitGroup
	scanners.Add(2)
	go func() {
		defer scanners.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Printf("stderr: %s", scanner.Text())
		}
	}()
	go func() {
		defer scanners.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			logger.Println(line)
			if event, ok := roundtrip.ParseLine(line); ok {
				if !helpers.NonBlockingSend(h.events, event) {
					logger.Printf("dropped unconsumed marker: %s", line)
				}
			}
		}
	}()
	go func() {
		scanners.Wait()
		err := cmd.Wait()
		logger.Printf("%s participant exited: %v", role, exitDescription(err))
		close(h.events)
		close(h.done)
	}()

	// the context covers only this case; cancelling it must reap the process
	go func() {
		select {
		case <-ctx.Done():
			h.Stop()
		case <-h.done:
		}
	}()

	return h, nil
}

func (h *nativeHandle) Events() <-chan roundtrip.Event { return h.events }

func (h *nativeHandle) Stop() {
	h.stop.Do(func() {
		if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			// the process may already be gone
			if !strings.Contains(err.Error(), "already finished") {
				h.logger.Printf("SIGTERM failed: %s", err)
			}
		}
		select {
		case <-h.done:
			return
		case <-time.After(h.grace):
		}
		h.logger.Printf("participant did not exit within %s, killing it", h.grace)
		_ = h.cmd.Process.Kill()
		<-h.done
	})
}

func exitDescription(err error) string {
	if err == nil {
		return "status 0"
	}
	return err.Error()
}
