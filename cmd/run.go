// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/obolnetwork/permitd/app"
	"github.com/obolnetwork/permitd/app/log"
)

func newRunCmd(runFunc func(context.Context, app.Config) error) *cobra.Command {
	var conf app.Config

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the permitd daemon",
		Long:  "Starts the long-running permitd process serving the permit token API, verifying permit signatures and committing approvals to the token ledger.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true // Don't print usage on app errors.

			if err := log.InitLogger(conf.Log); err != nil {
				return err
			}

			printFlags(cmd.Context(), cmd.Flags())

			return runFunc(cmd.Context(), conf)
		},
	}

	bindRunFlags(cmd.Flags(), &conf)
	bindLogFlags(cmd.Flags(), &conf.Log)
	bindFeatureFlags(cmd.Flags(), &conf.Feature)

	return cmd
}

func bindRunFlags(flags *pflag.FlagSet, config *app.Config) {
	flags.StringVar(&config.GenesisFile, "genesis-file", ".permitd/genesis.json", "The path to the genesis file defining the permit token, its signing domain and initial allocations.")
	flags.StringVar(&config.APIAddr, "api-address", "127.0.0.1:3700", "Listening address (ip and port) for the token API.")
	flags.StringVar(&config.MonitoringAddr, "monitoring-address", "127.0.0.1:3620", "Listening address (ip and port) for the monitoring API (prometheus, pprof).")
	flags.StringVar(&config.TracingAddr, "tracing-address", "", "Address of an OTLP gRPC collector endpoint to export traces to (e.g. localhost:4317). Tracing is disabled if empty.")
}
