// Package webserver serves the embedded browser test client. A browser-
// sandboxed participant cannot run a local binary, so the environment driver
// points its browser session at this server to load executable code. The
// server is purely static: every response is stateless and idempotent.
package webserver

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/p2p-interop/harness/framework"
)

//go:embed static
var staticFS embed.FS

// BundleVersion identifies the embedded client bundle in responses and logs.
const BundleVersion = "1"

const listenerProbeTimeout = 10 * time.Second

// AssetServer serves the test-client bundle over plain HTTP.
type AssetServer struct {
	logger  framework.Logger
	handler http.Handler
}

func NewAssetServer(logger framework.Logger) *AssetServer {
	if logger == nil {
		logger = framework.NullLogger()
	}
	s := &AssetServer{logger: logger}

	content, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err) // embedded tree is fixed at build time
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET", "HEAD")
	router.PathPrefix("/").Handler(http.FileServer(http.FS(content)))

	s.handler = s.withCORS(s.withTracing(router))
	return s
}

// Handler returns the server's HTTP handler, for tests and embedding.
func (s *AssetServer) Handler() http.Handler { return s.handler }

// Start listens on the given port and blocks until the server is confirmed to
// be accepting requests, returning the base URL browser sessions should load.
func (s *AssetServer) Start(port int) (string, error) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second, // arbitrary but non-infinite timeout to avoid Slowloris Attack
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()

	// Wait till the server is definitely listening before any browser session
	// is pointed at it.
	baseURL := fmt.Sprintf("http://localhost:%d", port)
	deadline := time.NewTimer(listenerProbeTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(time.Millisecond * 10)
	defer ticker.Stop()
	for {
		select {
		case <-deadline.C:
			return "", fmt.Errorf("could not detect own listener at %s", server.Addr)
		case <-ticker.C:
			resp, err := http.DefaultClient.Head(baseURL + "/healthz")
			if err == nil {
				_ = resp.Body.Close()
				return baseURL, nil
			}
		}
	}
}

// withCORS applies a permissive cross-origin policy. The test client is loaded
// by an automation tool, not a production caller, so there is nothing to
// protect here and no reason to be restrictive.
func (s *AssetServer) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("X-Interop-Bundle-Version", BundleVersion)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *AssetServer) withTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Printf("%s %s from %s (%s)", r.Method, r.URL.Path, r.RemoteAddr, time.Since(start))
	})
}
