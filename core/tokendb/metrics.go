// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package tokendb

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/obolnetwork/permitd/app/promauto"
)

var (
	eventCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "core",
		Subsystem: "tokendb",
		Name:      "events_total",
		Help:      "Total number of ledger events by type",
	}, []string{"type"})

	holdersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "core",
		Subsystem: "tokendb",
		Name:      "holders",
		Help:      "Current number of accounts with a balance entry",
	})
)
