// Package roundtrip implements the application-level probe that proves two
// peers negotiated a working connection: the dialer sends a fixed-size random
// payload over a fresh stream and requires the byte-for-byte echo back before
// its deadline. It also defines the failure taxonomy and the marker-line
// format participants use to report progress to the harness.
package roundtrip

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
)

// ProtocolID identifies the echo probe protocol on the negotiated stream.
const ProtocolID = protocol.ID("/interop-harness/echo/1.0.0")

// ProbeSize is the fixed probe payload length in bytes.
const ProbeSize = 32

// Error wraps a stage failure with its category so callers can report which
// negotiation stage broke.
type Error struct {
	Category FailureCategory
	Err      error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Category, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func stageError(category FailureCategory, err error) *Error {
	return &Error{Category: category, Err: err}
}

// RegisterEchoHandler installs the listener side of the probe protocol: every
// inbound stream is echoed back until the dialer half-closes it.
func RegisterEchoHandler(h host.Host) {
	h.SetStreamHandler(ProtocolID, func(s network.Stream) {
		defer s.Close()
		if _, err := io.Copy(s, s); err != nil {
			_ = s.Reset()
			return
		}
		_ = s.CloseWrite()
	})
}

// Probe connects to the listener, opens a probe stream, and verifies the echo.
// On success it returns the measured round-trip latency; on failure the
// returned error is an *Error carrying the stage category.
func Probe(ctx context.Context, h host.Host, listener peer.AddrInfo) (time.Duration, error) {
	if err := h.Connect(ctx, listener); err != nil {
		return 0, stageError(classifyConnectError(ctx, err), err)
	}

	start := time.Now()
	s, err := h.NewStream(ctx, listener.ID, ProtocolID)
	if err != nil {
		if ctx.Err() != nil {
			return 0, stageError(CategoryTimeout, err)
		}
		return 0, stageError(CategoryStream, err)
	}
	defer s.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(deadline)
	}

	probe := make([]byte, ProbeSize)
	if _, err := rand.Read(probe); err != nil {
		return 0, stageError(CategoryInfra, err)
	}

	if _, err := s.Write(probe); err != nil {
		return 0, stageError(CategoryStream, err)
	}
	if err := s.CloseWrite(); err != nil {
		return 0, stageError(CategoryStream, err)
	}

	echo, err := io.ReadAll(s)
	if err != nil {
		if ctx.Err() != nil {
			return 0, stageError(CategoryTimeout, err)
		}
		return 0, stageError(CategoryStream, err)
	}
	latency := time.Since(start)

	if !bytes.Equal(echo, probe) {
		return 0, stageError(CategoryMismatch,
			fmt.Errorf("echoed %d bytes, payload differs from %d-byte probe", len(echo), len(probe)))
	}
	return latency, nil
}

// ResultFor converts a Probe outcome into the Result a dialer reports in its
// final marker line.
func ResultFor(latency time.Duration, err error) Result {
	if err == nil {
		return Result{OK: true, LatencyMS: float64(latency.Microseconds()) / 1000}
	}
	category := CategoryDial
	var stage *Error
	if errors.As(err, &stage) {
		category = stage.Category
	}
	return Result{OK: false, Category: category, Error: err.Error()}
}

// WrapConnectError turns a raw libp2p dial error into a stage *Error, for
// callers that establish the connection themselves before running Probe.
func WrapConnectError(ctx context.Context, err error) error {
	return stageError(classifyConnectError(ctx, err), err)
}

// classifyConnectError separates the stages hidden inside a libp2p dial error.
// The upgrader reports security and muxer negotiation failures as distinct
// messages; anything else on an unexpired context counts as a dial failure.
func classifyConnectError(ctx context.Context, err error) FailureCategory {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "failed to negotiate security protocol"):
		return CategoryHandshake
	case strings.Contains(msg, "failed to negotiate stream multiplexer"):
		return CategoryMuxer
	case ctx.Err() != nil:
		return CategoryTimeout
	default:
		return CategoryDial
	}
}
