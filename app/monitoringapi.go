// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package app

import (
	"net/http"
	"net/http/pprof"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/obolnetwork/permitd/app/lifecycle"
)

// wireMonitoringAPI constructs the monitoring API and registers it with the
// life cycle manager. It serves prometheus metrics, pprof profiling and the
// liveness and readiness probes.
func wireMonitoringAPI(life *lifecycle.Manager, addr string, registry *prometheus.Registry, ready *readyFlag) {
	mux := http.NewServeMux()

	// Serve prometheus metrics wrapped with the token identity labels.
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, "ok")
	})

	// Ready once the lifecycle started the token API.
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !ready.get() {
			writeHealth(w, http.StatusInternalServerError, "token api not started")
			return
		}

		writeHealth(w, http.StatusOK, "ok")
	})

	// Copied from net/http/pprof/pprof.go
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: time.Second,
	}

	life.RegisterStart(lifecycle.AsyncBackground, lifecycle.StartMonitoringAPI, httpServeHook(server.ListenAndServe))
	life.RegisterStart(lifecycle.AsyncAppCtx, lifecycle.StartReadiness, lifecycle.HookFuncMin(ready.set))
	life.RegisterStop(lifecycle.StopMonitoringAPI, lifecycle.HookFunc(server.Shutdown))
}

// readyFlag flips to true once the token API lifecycle hook has started.
type readyFlag struct {
	flag atomic.Bool
}

func (f *readyFlag) set() {
	f.flag.Store(true)
}

func (f *readyFlag) get() bool {
	return f.flag.Load()
}

func writeHealth(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
