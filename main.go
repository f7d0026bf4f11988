package main

import (
	"context"
	_ "embed" // this is required in order for go:embed to work
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p2p-interop/harness/driver"
	"github.com/p2p-interop/harness/framework"
	"github.com/p2p-interop/harness/matrix"
	"github.com/p2p-interop/harness/rendezvous"
	"github.com/p2p-interop/harness/runner"
	"github.com/p2p-interop/harness/webserver"
)

const defaultPort = 8111
const storeConnectTimeout = time.Second * 10
const participantTimeout = time.Second * 60

//go:embed VERSION
var versionString string // comes from the VERSION file which we update for each release

func main() {
	fmt.Printf("p2p-interop-harness v%s\n", strings.TrimSpace(versionString))

	var params commandParams
	if !params.Read(os.Args) {
		os.Exit(1)
	}

	results, err := run(params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !results.OK() {
		os.Exit(1)
	}
}

func run(params commandParams) (*runner.Results, error) {
	spec, err := matrix.ReadSpecFile(params.matrixFile)
	if err != nil {
		return nil, err
	}
	cases := matrix.Expand(spec)
	fmt.Printf("Matrix expands to %d cases across %d environments\n", len(cases), len(spec.Environments))

	backend, addr := params.storeBackend()
	if backend == "" {
		return nil, fmt.Errorf("a rendezvous store is required; pass -redis or -consul")
	}
	store, err := openStore(backend, addr)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	mainDebugLogger := framework.NullLogger()
	if params.debugAll {
		mainDebugLogger = log.New(os.Stdout, "", log.LstdFlags)
	}

	storeTarget := driver.StoreTarget{Backend: backend, Addr: addr}
	drivers, err := buildDrivers(spec, storeTarget, params, mainDebugLogger)
	if err != nil {
		return nil, err
	}

	runner.PrintFilterDescription(params.filters, missingCapabilities(spec))

	consoleReporter := runner.ConsoleReporter{
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}
	var reporter runner.Reporter = consoleReporter
	if params.jUnitFile != "" || params.jsonFile != "" {
		multi := runner.MultiReporter{Reporters: []runner.Reporter{consoleReporter}}
		if params.jUnitFile != "" {
			multi.Reporters = append(multi.Reporters, runner.NewJUnitReporter(params.jUnitFile, params.filters))
		}
		if params.jsonFile != "" {
			multi.Reporters = append(multi.Reporters, runner.NewJSONReporter(params.jsonFile))
		}
		reporter = multi
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results := runner.New(runner.Config{
		Drivers:      drivers,
		Store:        store,
		Workers:      params.workers,
		InfraRetries: params.infraRetries(),
		Filter:       params.filters,
		Reporter:     reporter,
	}).Run(ctx, cases)

	fmt.Println()
	if err := reporter.EndLog(results); err != nil {
		return nil, fmt.Errorf("error writing log: %v", err)
	}

	return &results, nil
}

func openStore(backend, addr string) (rendezvous.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeConnectTimeout)
	defer cancel()
	switch backend {
	case "redis":
		return rendezvous.NewRedisStore(ctx, addr)
	case "consul":
		return rendezvous.NewConsulStore(addr)
	}
	return nil, fmt.Errorf("unknown rendezvous backend %q", backend)
}

// buildDrivers creates one driver per declared environment. The asset server
// is started only if at least one environment actually needs it.
func buildDrivers(
	spec *matrix.Spec,
	storeTarget driver.StoreTarget,
	params commandParams,
	debugLogger framework.Logger,
) (map[string]driver.Driver, error) {
	assetBaseURL := ""
	for _, env := range spec.Environments {
		if env.Kind == matrix.KindBrowser {
			server := webserver.NewAssetServer(debugLogger)
			baseURL, err := server.Start(params.port)
			if err != nil {
				return nil, fmt.Errorf("failed to start asset server: %w", err)
			}
			fmt.Printf("Serving browser test client at %s\n", baseURL)
			assetBaseURL = baseURL
			break
		}
	}

	drivers := make(map[string]driver.Driver)
	for _, env := range spec.Environments {
		switch env.Kind {
		case matrix.KindNative:
			drivers[env.Name] = &driver.NativeDriver{
				Env:                env,
				Store:              storeTarget,
				ParticipantTimeout: participantTimeout,
			}
		case matrix.KindBrowser:
			drivers[env.Name] = &driver.BrowserDriver{
				Env:                env,
				Store:              storeTarget,
				AssetBaseURL:       assetBaseURL,
				ParticipantTimeout: participantTimeout,
			}
		}
	}
	return drivers, nil
}

// missingCapabilities lists capabilities advertised by some environments but
// not all of them, since those are the cells that will show up as skips.
func missingCapabilities(spec *matrix.Spec) []string {
	all := allCapabilities(spec)
	common := all
	for _, env := range spec.Environments {
		common = common.Intersect(environmentCapabilities(env))
	}
	var missing []string
	for _, c := range all {
		if !common.Has(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

func allCapabilities(spec *matrix.Spec) framework.Capabilities {
	var all framework.Capabilities
	for _, env := range spec.Environments {
		for _, c := range environmentCapabilities(env) {
			if !all.Has(c) {
				all = append(all, c)
			}
		}
	}
	return all
}

func environmentCapabilities(env *matrix.Environment) framework.Capabilities {
	var caps framework.Capabilities
	caps = append(caps, env.Capabilities.Transports...)
	caps = append(caps, env.Capabilities.Securities...)
	caps = append(caps, env.Capabilities.Muxers...)
	return caps
}
