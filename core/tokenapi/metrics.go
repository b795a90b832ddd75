// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package tokenapi

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/obolnetwork/permitd/app/promauto"
)

var (
	apiLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "core",
		Subsystem: "tokenapi",
		Name:      "request_latency_seconds",
		Help:      "The tokenapi request latencies in seconds by endpoint",
	}, []string{"endpoint"})

	apiErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "core",
		Subsystem: "tokenapi",
		Name:      "request_error_total",
		Help:      "The total number of tokenapi request errors",
	}, []string{"endpoint", "status_code"})

	sseSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "core",
		Subsystem: "tokenapi",
		Name:      "event_subscribers",
		Help:      "Current number of connected ledger event stream subscribers",
	})
)

func incAPIErrors(endpoint string, statusCode int) {
	apiErrors.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
}

func observeAPILatency(endpoint string) func() {
	t0 := time.Now()

	return func() {
		apiLatency.WithLabelValues(endpoint).Observe(time.Since(t0).Seconds())
	}
}
