package webserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wal-g/tracelog"
)

const (
	MetricsPattern = "/metrics"
	pprofPrefix    = "/debug/pprof/"
)

// WebServer is a http endpoint registry with start/stop controls
type WebServer interface {
	HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request))
	Serve() error
	Shutdown(ctx context.Context) error
}

var DefaultWebServer WebServer

// SimpleWebServer serves registered handlers on a single listener.
type SimpleWebServer struct {
	mux  *http.ServeMux
	addr string

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// NewSimpleWebServer builds SimpleWebServer, nothing is listened until Serve is called.
func NewSimpleWebServer(addr string) *SimpleWebServer {
	return &SimpleWebServer{mux: http.NewServeMux(), addr: addr}
}

// HandleFunc registers handler for pattern
func (sw *SimpleWebServer) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	sw.mux.HandleFunc(pattern, handler)
}

// ServeHTTP dispatches request to registered handlers without listener
func (sw *SimpleWebServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sw.mux.ServeHTTP(w, r)
}

// Addr returns bound address while serving, configured one otherwise.
func (sw *SimpleWebServer) Addr() string {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.listener != nil {
		return sw.listener.Addr().String()
	}
	return sw.addr
}

// Serve binds listener and serves connections in background.
// Bind errors are returned to caller.
func (sw *SimpleWebServer) Serve() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.srv != nil {
		return fmt.Errorf("web server on %s is already running", sw.addr)
	}

	l, err := net.Listen("tcp", sw.addr)
	if err != nil {
		return fmt.Errorf("can not listen %s: %w", sw.addr, err)
	}
	srv := &http.Server{Handler: sw.mux}
	sw.srv, sw.listener = srv, l

	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			tracelog.ErrorLogger.Printf("web server on %s failed: %v", l.Addr(), err)
		}
	}()
	tracelog.InfoLogger.Printf("Web server is listening on %s", l.Addr())
	return nil
}

// Shutdown gracefully stops running server.
func (sw *SimpleWebServer) Shutdown(ctx context.Context) error {
	sw.mu.Lock()
	srv := sw.srv
	sw.srv, sw.listener = nil, nil
	sw.mu.Unlock()

	if srv == nil {
		return fmt.Errorf("web server on %s is not started", sw.addr)
	}
	return srv.Shutdown(ctx)
}

// EnableMetricsEndpoint exposes metrics gathered from g in prometheus text format.
func EnableMetricsEndpoint(ws WebServer, g prometheus.Gatherer) {
	ws.HandleFunc(MetricsPattern, promhttp.HandlerFor(g, promhttp.HandlerOpts{}).ServeHTTP)
}

// EnablePprofEndpoints exposes runtime profiles under /debug/pprof/
func EnablePprofEndpoints(ws WebServer) {
	handlers := map[string]http.HandlerFunc{
		"":        pprof.Index,
		"cmdline": pprof.Cmdline,
		"profile": pprof.Profile,
		"symbol":  pprof.Symbol,
		"trace":   pprof.Trace,
	}
	for name, h := range handlers {
		ws.HandleFunc(pprofPrefix+name, h)
	}
}

// SetDefaultWebServer sets process-wide server once.
func SetDefaultWebServer(ws WebServer) error {
	if DefaultWebServer != nil {
		return fmt.Errorf("default web server has been already configured")
	}
	DefaultWebServer = ws
	return nil
}
