// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package permit

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/obolnetwork/permitd/app/errors"
	"github.com/obolnetwork/permitd/app/k1util"
	"github.com/obolnetwork/permitd/app/promauto"
)

var permitCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "core",
	Subsystem: "permit",
	Name:      "requests_total",
	Help:      "Total number of permit requests by result",
}, []string{"result"})

// resultLabel maps a permit outcome to a stable metric label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrInvalidSigner):
		return "invalid_signer"
	case errors.Is(err, k1util.ErrSignatureLength),
		errors.Is(err, k1util.ErrSignatureS),
		errors.Is(err, k1util.ErrSignatureInvalid):
		return "invalid_signature"
	default:
		return "error"
	}
}
