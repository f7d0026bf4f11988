// Package participant implements the reference test participant: one side of
// a matrix cell, playing either the listener or the dialer role. The cmd/peer
// binary wraps it for native execution; the same role logic runs in-process in
// the harness's own end-to-end tests.
package participant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	corepeer "github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/p2p-interop/harness/matrix"
	"github.com/p2p-interop/harness/rendezvous"
	"github.com/p2p-interop/harness/roundtrip"
)

// Params carries everything one participant needs to play its role in a
// single test case.
type Params struct {
	CaseID    string
	Role      string // rendezvous.RoleListener or rendezvous.RoleDialer
	Transport matrix.Transport
	Security  matrix.Security
	Muxer     matrix.Muxer
	Store     rendezvous.Store

	// Out receives the marker lines the harness watches for. For the native
	// binary this is stdout.
	Out io.Writer

	// Timeout bounds the rendezvous wait and the probe exchange.
	Timeout time.Duration
}

// Run executes the participant's role until completion. A listener serves
// echoes until ctx is cancelled; a dialer performs one probe exchange and
// returns an error if the round trip failed.
func Run(ctx context.Context, params Params) error {
	switch params.Role {
	case rendezvous.RoleListener:
		return runListener(ctx, params)
	case rendezvous.RoleDialer:
		return runDialer(ctx, params)
	}
	return fmt.Errorf("unknown role %q", params.Role)
}

func runListener(ctx context.Context, params Params) error {
	h, err := BuildHost(params.Transport, params.Security, params.Muxer, true)
	if err != nil {
		return err
	}
	defer h.Close()

	roundtrip.RegisterEchoHandler(h)

	addrs := h.Addrs()
	if len(addrs) == 0 {
		return errors.New("listener host has no listen address")
	}
	record := rendezvous.Record{
		CaseID:    params.CaseID,
		Role:      rendezvous.RoleListener,
		Multiaddr: addrs[0].String(),
		PeerID:    h.ID().String(),
		ReadyAt:   time.Now().UTC(),
	}
	publishCtx, cancel := context.WithTimeout(ctx, params.Timeout)
	err = params.Store.Publish(publishCtx, rendezvous.Key(params.CaseID, rendezvous.RoleListener), record)
	cancel()
	if err != nil {
		return err
	}
	fmt.Fprintln(params.Out, roundtrip.ReadyMarker())

	// serve echoes until the harness tears the case down
	<-ctx.Done()
	return nil
}

func runDialer(ctx context.Context, params Params) error {
	h, err := BuildHost(params.Transport, params.Security, params.Muxer, false)
	if err != nil {
		return err
	}
	defer h.Close()
	fmt.Fprintln(params.Out, roundtrip.ReadyMarker())

	awaitCtx, cancel := context.WithTimeout(ctx, params.Timeout)
	record, err := params.Store.Await(awaitCtx, rendezvous.Key(params.CaseID, rendezvous.RoleListener))
	cancel()
	if err != nil {
		result := roundtrip.Result{OK: false, Category: roundtrip.CategoryRendezvousTimeout, Error: err.Error()}
		fmt.Fprintln(params.Out, roundtrip.ResultMarker(result))
		return err
	}

	listener, err := addrInfoFromRecord(record)
	if err != nil {
		result := roundtrip.Result{OK: false, Category: roundtrip.CategoryInfra, Error: err.Error()}
		fmt.Fprintln(params.Out, roundtrip.ResultMarker(result))
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, params.Timeout)
	defer cancel()

	if err := h.Connect(probeCtx, listener); err != nil {
		result := roundtrip.ResultFor(0, roundtrip.WrapConnectError(probeCtx, err))
		fmt.Fprintln(params.Out, roundtrip.ResultMarker(result))
		return err
	}
	fmt.Fprintln(params.Out, roundtrip.ConnectedMarker())

	latency, err := roundtrip.Probe(probeCtx, h, listener)
	result := roundtrip.ResultFor(latency, err)
	fmt.Fprintln(params.Out, roundtrip.ResultMarker(result))
	return err
}

func addrInfoFromRecord(record rendezvous.Record) (corepeer.AddrInfo, error) {
	addr, err := ma.NewMultiaddr(record.Multiaddr)
	if err != nil {
		return corepeer.AddrInfo{}, fmt.Errorf("listener published malformed multiaddr %q: %w", record.Multiaddr, err)
	}
	id, err := corepeer.Decode(record.PeerID)
	if err != nil {
		return corepeer.AddrInfo{}, fmt.Errorf("listener published malformed peer ID %q: %w", record.PeerID, err)
	}
	return corepeer.AddrInfo{ID: id, Addrs: []ma.Multiaddr{addr}}, nil
}
