// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package lifecycle

//go:generate stringer -type=OrderStart -trimprefix=Start
//go:generate stringer -type=OrderStop -trimprefix=Stop

// OrderStart defines the order hooks are started.
type OrderStart int

// OrderStop defines the order hooks are stopped.
type OrderStop int

// Global ordering of start hooks.
const (
	StartMonitoringAPI OrderStart = iota
	StartTokenAPI
	StartReadiness
)

// Global ordering of stop hooks; follows dependency tree from root to leaves.
const (
	StopEvents OrderStop = iota // Close event streams before the token API, since they hold long-lived connections.
	StopTokenAPI
	StopTracing
	StopMonitoringAPI
)
