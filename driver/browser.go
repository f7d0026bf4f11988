package driver

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/p2p-interop/harness/framework"
	"github.com/p2p-interop/harness/framework/helpers"
	"github.com/p2p-interop/harness/matrix"
	"github.com/p2p-interop/harness/roundtrip"
)

// defaultLogPollInterval bounds how often the browser driver drains the page's
// log buffer. Like the Redis rendezvous backend, this is an explicit bounded
// polling loop; WebDriver has no push channel for page output.
const defaultLogPollInterval = 200 * time.Millisecond

// drainLogScript atomically removes and returns the marker lines the test
// page has accumulated. The page contract is a plain array of strings in
// window.__harnessLog.
const drainLogScript = `return window.__harnessLog ? window.__harnessLog.splice(0) : [];`

// BrowserDriver launches participants as scripts in a remote browser session.
// The test case is encoded in the query string of the asset server's test
// page; progress markers are read back by polling the page's log buffer over
// the automation protocol.
type BrowserDriver struct {
	Env   *matrix.Environment
	Store StoreTarget

	// AssetBaseURL is the harness's own asset server, which the browser
	// session navigates to in order to load the test client.
	AssetBaseURL string

	ParticipantTimeout time.Duration
	LogPollInterval    time.Duration
}

type browserHandle struct {
	client    *webDriverClient
	sessionID string
	events    chan roundtrip.Event
	cancel    context.CancelFunc
	done      chan struct{}
	logger    framework.Logger
	stop      sync.Once
}

func (d *BrowserDriver) Start(ctx context.Context, role string, testCase matrix.TestCase, logger framework.Logger) (Handle, error) {
	if logger == nil {
		logger = framework.NullLogger()
	}

	client := newWebDriverClient(d.Env.AutomationURL)
	sessionID, err := client.NewSession(ctx)
	if err != nil {
		return nil, infraErrorf("no browser session available from %s: %w", d.Env.AutomationURL, err)
	}
	logger.Printf("created browser session %s", sessionID)

	pageURL := d.AssetBaseURL + "/?" + url.Values{
		ParamCaseID:         {testCase.ID()},
		ParamRole:           {role},
		ParamTransport:      {string(testCase.Transport)},
		ParamSecurity:       {string(testCase.Security)},
		ParamMuxer:          {string(testCase.Muxer)},
		ParamStoreBackend:   {d.Store.Backend},
		ParamStoreAddr:      {d.Store.Addr},
		ParamTimeoutSeconds: {strconv.Itoa(int(d.ParticipantTimeout.Seconds()))},
	}.Encode()

	if err := client.Navigate(ctx, sessionID, pageURL); err != nil {
		_ = client.DeleteSession(context.WithoutCancel(ctx), sessionID)
		return nil, infraErrorf("failed to load test page in session %s: %w", sessionID, err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	h := &browserHandle{
		client:    client,
		sessionID: sessionID,
		events:    make(chan roundtrip.Event, eventChannelBufferSize),
		cancel:    cancel,
		done:      make(chan struct{}),
		logger:    logger,
	}

	interval := d.LogPollInterval
	if interval == 0 {
		interval = defaultLogPollInterval
	}
	go h.pollLog(pollCtx, interval)

	return h, nil
}

func (h *browserHandle) Events() <-chan roundtrip.Event { return h.events }

func (h *browserHandle) pollLog(ctx context.Context, interval time.Duration) {
	defer close(h.done)
	defer close(h.events)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		value, err := h.client.ExecuteScript(ctx, h.sessionID, drainLogScript)
		if err != nil {
			if ctx.Err() == nil {
				h.logger.Printf("failed to read browser log: %s", err)
			}
			return
		}
		var lines []string
		if err := json.Unmarshal(value, &lines); err != nil {
			h.logger.Printf("unexpected browser log payload: %s", string(value))
			continue
		}
		for _, line := range lines {
			h.logger.Println(line)
			if event, ok := roundtrip.ParseLine(line); ok {
				if !helpers.NonBlockingSend(h.events, event) {
					h.logger.Printf("dropped unconsumed marker: %s", line)
				}
				if event.Kind == roundtrip.EventResult {
					return
				}
			}
		}
	}
}

// Stop ends log polling and closes the browser session. The session is closed
// whether or not the script completed, so failed cases cannot leak sessions.
func (h *browserHandle) Stop() {
	h.stop.Do(func() {
		h.cancel()
		<-h.done
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.client.DeleteSession(ctx, h.sessionID); err != nil {
			h.logger.Printf("failed to close browser session %s: %s", h.sessionID, err)
		} else {
			h.logger.Printf("closed browser session %s", h.sessionID)
		}
	})
}
