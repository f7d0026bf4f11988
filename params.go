package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/p2p-interop/harness/framework/opt"
	"github.com/p2p-interop/harness/runner"
)

type commandParams struct {
	matrixFile string
	redisAddr  string
	consulAddr string
	port       int
	workers    int
	retries    int
	filters    runner.RegexFilters
	debug      bool
	debugAll   bool
	jUnitFile  string
	jsonFile   string
}

func (c *commandParams) Read(args []string) bool {
	fs := flag.NewFlagSet("", flag.ExitOnError)
	fs.StringVar(&c.matrixFile, "matrix", "", "matrix specification file (YAML)")
	fs.StringVar(&c.redisAddr, "redis", "", "address of the Redis rendezvous store")
	fs.StringVar(&c.consulAddr, "consul", "", "address of the Consul rendezvous store")
	fs.IntVar(&c.port, "port", defaultPort, "port that the asset server will listen on")
	fs.IntVar(&c.workers, "workers", 0, "number of cases to run concurrently (0 = default)")
	fs.IntVar(&c.retries, "retries", -1, "extra attempts for infrastructure failures, 0 to disable (-1 = default)")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select cases to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select cases not to run")
	fs.BoolVar(&c.debug, "debug", false, "enable debug output for failed cases")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug output for all cases")
	fs.StringVar(&c.jUnitFile, "junit", "", "write JUnit XML output to the specified path")
	fs.StringVar(&c.jsonFile, "json", "", "write a JSON report to the specified path")

	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return false
	}
	if c.matrixFile == "" {
		fmt.Fprintln(os.Stderr, "-matrix is required")
		fs.Usage()
		return false
	}
	if c.redisAddr != "" && c.consulAddr != "" {
		fmt.Fprintln(os.Stderr, "-redis and -consul are mutually exclusive")
		fs.Usage()
		return false
	}
	return true
}

func (c *commandParams) infraRetries() opt.Maybe[int] {
	if c.retries < 0 {
		return opt.None[int]()
	}
	return opt.Some(c.retries)
}

func (c *commandParams) storeBackend() (backend, addr string) {
	if c.consulAddr != "" {
		return "consul", c.consulAddr
	}
	if c.redisAddr != "" {
		return "redis", c.redisAddr
	}
	return "", ""
}
