package participant

import (
	"crypto/rand"
	"fmt"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	libp2ptls "github.com/libp2p/go-libp2p/p2p/security/tls"
	libp2pquic "github.com/libp2p/go-libp2p/p2p/transport/quic"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/libp2p/go-libp2p/p2p/transport/websocket"
	libp2pwebrtc "github.com/libp2p/go-libp2p/p2p/transport/webrtc"
	libp2pwebtransport "github.com/libp2p/go-libp2p/p2p/transport/webtransport"

	"github.com/p2p-interop/harness/matrix"
)

// BuildHost constructs a libp2p host restricted to exactly the capability
// tuple under test, so nothing but the chosen transport, security scheme, and
// muxer can be negotiated. Listener hosts get a loopback listen address for
// the transport; dialer hosts do not listen at all.
func BuildHost(transport matrix.Transport, security matrix.Security, muxer matrix.Muxer, listen bool) (host.Host, error) {
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity: %w", err)
	}
	opts := []libp2p.Option{libp2p.Identity(priv)}

	transportOpt, err := transportOption(transport)
	if err != nil {
		return nil, err
	}
	opts = append(opts, transportOpt)

	if !transport.Standalone() {
		securityOpt, err := securityOption(security)
		if err != nil {
			return nil, err
		}
		muxerOpt, err := muxerOption(muxer)
		if err != nil {
			return nil, err
		}
		opts = append(opts, securityOpt, muxerOpt)
	}

	if listen {
		opts = append(opts, libp2p.ListenAddrStrings(listenAddr(transport)))
	} else {
		opts = append(opts, libp2p.NoListenAddrs)
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build host for %s/%s/%s: %w", transport, security, muxer, err)
	}
	return h, nil
}

func transportOption(transport matrix.Transport) (libp2p.Option, error) {
	switch transport {
	case matrix.TransportTCP:
		return libp2p.Transport(tcp.NewTCPTransport), nil
	case matrix.TransportWebSocket:
		return libp2p.Transport(websocket.New), nil
	case matrix.TransportQUIC:
		return libp2p.Transport(libp2pquic.NewTransport), nil
	case matrix.TransportWebTransport:
		return libp2p.Transport(libp2pwebtransport.New), nil
	case matrix.TransportWebRTCDirect:
		return libp2p.Transport(libp2pwebrtc.New), nil
	}
	return nil, fmt.Errorf("unsupported transport %q", transport)
}

func securityOption(security matrix.Security) (libp2p.Option, error) {
	switch security {
	case matrix.SecurityNoise:
		return libp2p.Security(noise.ID, noise.New), nil
	case matrix.SecurityTLS:
		return libp2p.Security(libp2ptls.ID, libp2ptls.New), nil
	}
	return nil, fmt.Errorf("unsupported security scheme %q", security)
}

func muxerOption(muxer matrix.Muxer) (libp2p.Option, error) {
	switch muxer {
	case matrix.MuxerYamux:
		return libp2p.Muxer(yamux.ID, yamux.DefaultTransport), nil
	}
	// mplex was retired from go-libp2p; environments that still speak it are
	// tested from their own implementations, not from this reference peer.
	return nil, fmt.Errorf("unsupported muxer %q", muxer)
}

func listenAddr(transport matrix.Transport) string {
	switch transport {
	case matrix.TransportWebSocket:
		return "/ip4/127.0.0.1/tcp/0/ws"
	case matrix.TransportQUIC:
		return "/ip4/127.0.0.1/udp/0/quic-v1"
	case matrix.TransportWebTransport:
		return "/ip4/127.0.0.1/udp/0/quic-v1/webtransport"
	case matrix.TransportWebRTCDirect:
		return "/ip4/127.0.0.1/udp/0/webrtc-direct"
	default:
		return "/ip4/127.0.0.1/tcp/0"
	}
}
