// Package matrix defines the test matrix data model: capability axes,
// execution environments, and the test cases produced by crossing them.
package matrix

import (
	"fmt"

	"github.com/p2p-interop/harness/framework"
)

// Transport names a wire transport capability.
type Transport string

const (
	TransportTCP          Transport = "tcp"
	TransportQUIC         Transport = "quic"
	TransportWebSocket    Transport = "ws"
	TransportWebTransport Transport = "webtransport"
	TransportWebRTCDirect Transport = "webrtc-direct"
)

// Standalone reports whether the transport carries its own encryption and
// stream multiplexing, in which case the security and muxer capabilities of a
// test case are not separately negotiated.
func (t Transport) Standalone() bool {
	switch t {
	case TransportQUIC, TransportWebTransport, TransportWebRTCDirect:
		return true
	}
	return false
}

// Security names a connection security scheme capability.
type Security string

const (
	SecurityNoise Security = "noise"
	SecurityTLS   Security = "tls"
)

// Muxer names a stream multiplexer capability.
type Muxer string

const (
	MuxerYamux Muxer = "yamux"
	MuxerMplex Muxer = "mplex"
)

// EnvironmentKind distinguishes the two ways a participant can be executed.
type EnvironmentKind string

const (
	// KindNative runs the participant as an OS process.
	KindNative EnvironmentKind = "native"
	// KindBrowser runs the participant as a script in a remote-controlled
	// browser session, loaded from the harness's asset server.
	KindBrowser EnvironmentKind = "browser"
)

// CapabilitySet is the declared list of options an environment supports on
// each capability axis.
type CapabilitySet struct {
	Transports framework.Capabilities `yaml:"transports"`
	Securities framework.Capabilities `yaml:"securities"`
	Muxers     framework.Capabilities `yaml:"muxers"`
}

// Supports reports whether every chosen capability of the tuple is in the set.
// For standalone transports only the transport itself has to match.
func (cs CapabilitySet) Supports(transport Transport, security Security, muxer Muxer) bool {
	if !cs.Transports.Has(string(transport)) {
		return false
	}
	if transport.Standalone() {
		return true
	}
	return cs.Securities.Has(string(security)) && cs.Muxers.Has(string(muxer))
}

// Environment describes one implementation under test and how to launch it.
type Environment struct {
	// Name identifies the environment in test case IDs and reports.
	Name string          `yaml:"name"`
	Kind EnvironmentKind `yaml:"kind"`

	// Command is the participant executable for native environments.
	Command string `yaml:"command,omitempty"`

	// AutomationURL is the remote browser-control endpoint for browser
	// environments.
	AutomationURL string `yaml:"automationUrl,omitempty"`

	Capabilities CapabilitySet `yaml:"capabilities"`
}

// TestCase is one matrix cell: a dialer environment, a listener environment,
// and the capability tuple both sides will be asked to negotiate.
type TestCase struct {
	Dialer    *Environment
	Listener  *Environment
	Transport Transport
	Security  Security
	Muxer     Muxer
}

// ID returns the unique identifier of the cell, used for report keys and for
// namespacing rendezvous keys.
func (c TestCase) ID() string {
	return fmt.Sprintf("%sx%s_%s_%s_%s",
		c.Dialer.Name, c.Listener.Name, c.Transport, c.Security, c.Muxer)
}

func (c TestCase) String() string { return c.ID() }

// SkipReason returns a non-empty explanation if either side does not advertise
// the case's capability tuple. Such cases are skipped, never failed.
func (c TestCase) SkipReason() string {
	if !c.Dialer.Capabilities.Supports(c.Transport, c.Security, c.Muxer) {
		return fmt.Sprintf("dialer environment %q does not support %s/%s/%s",
			c.Dialer.Name, c.Transport, c.Security, c.Muxer)
	}
	if !c.Listener.Capabilities.Supports(c.Transport, c.Security, c.Muxer) {
		return fmt.Sprintf("listener environment %q does not support %s/%s/%s",
			c.Listener.Name, c.Transport, c.Security, c.Muxer)
	}
	return ""
}
