// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/obolnetwork/permitd/app/promauto"
	"github.com/obolnetwork/permitd/app/version"
)

var (
	versionGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "app",
		Name:      "version",
		Help:      "Constant gauge with label set to current app version",
	}, []string{"version"})

	startGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "app",
		Name:      "start_time_secs",
		Help:      "Gauge set to the app start time of the binary in unix seconds",
	})

	chainIDGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "app",
		Name:      "chain_id",
		Help:      "Constant gauge set to the EIP-155 chain id of the signing domain",
	}, []string{"token"})
)

func initStartupMetrics(tokenName string, chainID uint64) {
	versionGauge.WithLabelValues(version.Version).Set(1)
	startGauge.SetToCurrentTime()
	chainIDGauge.WithLabelValues(tokenName).Set(float64(chainID))
}
