// Command peer is the reference native participant. The harness launches it
// once per test case per role, hands it the case parameters through the
// environment, and watches its stdout for marker lines.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/p2p-interop/harness/driver"
	"github.com/p2p-interop/harness/matrix"
	"github.com/p2p-interop/harness/participant"
	"github.com/p2p-interop/harness/rendezvous"
)

const defaultTimeout = time.Second * 60

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "peer: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	params, store, err := paramsFromEnv()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// the harness stops a listener with SIGTERM once the case is decided
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return participant.Run(ctx, params)
}

func paramsFromEnv() (participant.Params, rendezvous.Store, error) {
	caseID := os.Getenv(driver.ParamCaseID)
	if caseID == "" {
		return participant.Params{}, nil, fmt.Errorf("%s is not set", driver.ParamCaseID)
	}
	role := os.Getenv(driver.ParamRole)
	if role != rendezvous.RoleListener && role != rendezvous.RoleDialer {
		return participant.Params{}, nil, fmt.Errorf("%s must be %q or %q",
			driver.ParamRole, rendezvous.RoleListener, rendezvous.RoleDialer)
	}

	timeout := defaultTimeout
	if s := os.Getenv(driver.ParamTimeoutSeconds); s != "" {
		seconds, err := strconv.Atoi(s)
		if err != nil || seconds <= 0 {
			return participant.Params{}, nil, fmt.Errorf("invalid %s value %q", driver.ParamTimeoutSeconds, s)
		}
		timeout = time.Duration(seconds) * time.Second
	}

	store, err := openStore(os.Getenv(driver.ParamStoreBackend), os.Getenv(driver.ParamStoreAddr))
	if err != nil {
		return participant.Params{}, nil, err
	}

	return participant.Params{
		CaseID:    caseID,
		Role:      role,
		Transport: matrix.Transport(os.Getenv(driver.ParamTransport)),
		Security:  matrix.Security(os.Getenv(driver.ParamSecurity)),
		Muxer:     matrix.Muxer(os.Getenv(driver.ParamMuxer)),
		Store:     store,
		Out:       os.Stdout,
		Timeout:   timeout,
	}, store, nil
}

func openStore(backend, addr string) (rendezvous.Store, error) {
	switch backend {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		return rendezvous.NewRedisStore(ctx, addr)
	case "consul":
		return rendezvous.NewConsulStore(addr)
	}
	return nil, fmt.Errorf("unknown rendezvous backend %q in %s", backend, driver.ParamStoreBackend)
}
