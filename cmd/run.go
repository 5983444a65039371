// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/trio2o/trio2o/cmd/internal/env"
	"github.com/trio2o/trio2o/runtime"
)

const defaultAddr = ":8181"

func init() {
	var params runtime.Params
	logLevel := newLogLevelFlag()
	logFormat := newLogFormatFlag()

	runCommand := &cobra.Command{
		Use:   "run",
		Short: "Start the trio2o gateway",
		Long: `Start an instance of the trio2o federation gateway.

The gateway exposes an HTTP API that schedules incoming resource requests to
a pod, records the resulting top_id/bottom_id mapping, and proxies
read/update/delete/list calls back through to whichever pod holds the
resource. Pod catalog, resource routing and job-coordination state are kept
either in memory or in a SQL database selected with --db-driver/--db-dsn.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return env.CmdFlags.CheckEnvironmentVariables(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := maxprocs.Set(); err != nil {
				fmt.Fprintln(os.Stderr, "warning: automaxprocs:", err)
			}

			params.Logging = runtime.LoggingConfig{Level: logLevel.String(), Format: logFormat.String()}

			raw, err := configFileBytes(params.ConfigFile)
			if err != nil {
				return err
			}

			ctx := context.Background()
			rt, err := runtime.NewRuntime(ctx, params, raw)
			if err != nil {
				return fmt.Errorf("initializing gateway: %w", err)
			}

			return rt.StartServer(ctx)
		},
	}

	addConfigFileFlag(runCommand.Flags(), &params.ConfigFile)
	addAddrFlag(runCommand.Flags(), &params.Addr, defaultAddr)
	addDBDriverFlag(runCommand.Flags(), &params.DBDriver)
	addDBDSNFlag(runCommand.Flags(), &params.DBDSN)
	addLogLevelFlag(runCommand.Flags(), logLevel)
	addLogFormatFlag(runCommand.Flags(), logFormat)
	runCommand.Flags().StringVarP(&params.ID, "id", "", "", "set the gateway instance id reported in logs and traces")
	runCommand.Flags().IntVar(&params.GracefulShutdownPeriod, "shutdown-grace-period", 10, "set the time (in seconds) the gateway waits to gracefully shut down")

	RootCommand.AddCommand(runCommand)
}
