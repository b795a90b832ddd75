// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package noncedb

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/obolnetwork/permitd/app/promauto"
)

var consumedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "core",
	Subsystem: "noncedb",
	Name:      "consumed_total",
	Help:      "Total number of nonces consumed from the ledger",
})
