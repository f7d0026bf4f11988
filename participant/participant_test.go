package participant

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2p-interop/harness/framework/helpers"
	"github.com/p2p-interop/harness/matrix"
	"github.com/p2p-interop/harness/rendezvous"
	"github.com/p2p-interop/harness/roundtrip"
)

func TestBuildHostListenerHasAddress(t *testing.T) {
	h, err := BuildHost(matrix.TransportTCP, matrix.SecurityNoise, matrix.MuxerYamux, true)
	require.NoError(t, err)
	defer h.Close()

	require.NotEmpty(t, h.Addrs())
	assert.Contains(t, h.Addrs()[0].String(), "/tcp/")
}

func TestBuildHostDialerDoesNotListen(t *testing.T) {
	h, err := BuildHost(matrix.TransportTCP, matrix.SecurityTLS, matrix.MuxerYamux, false)
	require.NoError(t, err)
	defer h.Close()

	assert.Empty(t, h.Addrs())
}

func TestBuildHostRejectsUnsupportedCapabilities(t *testing.T) {
	_, err := BuildHost(matrix.TransportTCP, matrix.SecurityNoise, matrix.MuxerMplex, true)
	assert.Error(t, err)

	_, err = BuildHost(matrix.Transport("carrier-pigeon"), matrix.SecurityNoise, matrix.MuxerYamux, true)
	assert.Error(t, err)

	_, err = BuildHost(matrix.TransportTCP, matrix.Security("rot13"), matrix.MuxerYamux, true)
	assert.Error(t, err)
}

// Runs both roles in-process against an in-memory rendezvous store, over a
// real loopback TCP connection with noise and yamux.
func TestListenerAndDialerRoundTrip(t *testing.T) {
	store := rendezvous.NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()

	listenerCtx, stopListener := context.WithCancel(ctx)
	defer stopListener()

	var listenerOut bytes.Buffer
	listenerDone := make(chan error, 1)
	go func() {
		listenerDone <- Run(listenerCtx, Params{
			CaseID:    "inproc_tcp_noise_yamux",
			Role:      rendezvous.RoleListener,
			Transport: matrix.TransportTCP,
			Security:  matrix.SecurityNoise,
			Muxer:     matrix.MuxerYamux,
			Store:     store,
			Out:       &listenerOut,
			Timeout:   time.Second * 10,
		})
	}()

	var dialerOut bytes.Buffer
	err := Run(ctx, Params{
		CaseID:    "inproc_tcp_noise_yamux",
		Role:      rendezvous.RoleDialer,
		Transport: matrix.TransportTCP,
		Security:  matrix.SecurityNoise,
		Muxer:     matrix.MuxerYamux,
		Store:     store,
		Out:       &dialerOut,
		Timeout:   time.Second * 10,
	})
	require.NoError(t, err)

	stopListener()
	listenerErr := helpers.TryReceive(listenerDone, time.Second*5)
	require.True(t, listenerErr.IsDefined(), "listener did not exit after cancellation")
	require.NoError(t, listenerErr.Value())

	assert.Contains(t, listenerOut.String(), roundtrip.ReadyMarker())

	lines := strings.Split(strings.TrimSpace(dialerOut.String()), "\n")
	var sawConnected, sawResult bool
	for _, line := range lines {
		event, ok := roundtrip.ParseLine(line)
		if !ok {
			continue
		}
		switch event.Kind {
		case roundtrip.EventConnected:
			sawConnected = true
		case roundtrip.EventResult:
			sawResult = true
			assert.True(t, event.Result.OK)
			assert.Greater(t, event.Result.LatencyMS, float64(0))
		}
	}
	assert.True(t, sawConnected)
	assert.True(t, sawResult)
}

func TestDialerReportsRendezvousTimeout(t *testing.T) {
	// the listener never publishes its record
	store := rendezvous.NewMemoryStore()
	ctx := context.Background()

	var out bytes.Buffer
	err := Run(ctx, Params{
		CaseID:    "silent_listener",
		Role:      rendezvous.RoleDialer,
		Transport: matrix.TransportTCP,
		Security:  matrix.SecurityNoise,
		Muxer:     matrix.MuxerYamux,
		Store:     store,
		Out:       &out,
		Timeout:   time.Millisecond * 100,
	})
	require.Error(t, err)

	event, ok := roundtrip.ParseLine(lastLine(out.String()))
	require.True(t, ok)
	assert.Equal(t, roundtrip.EventResult, event.Kind)
	assert.Equal(t, roundtrip.CategoryRendezvousTimeout, event.Result.Category)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
