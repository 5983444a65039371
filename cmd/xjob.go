// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/trio2o/trio2o/cmd/internal/env"
	"github.com/trio2o/trio2o/runtime"
)

func init() {
	var params runtime.Params
	logLevel := newLogLevelFlag()
	logFormat := newLogFormatFlag()

	xjobCommand := &cobra.Command{
		Use:   "xjob",
		Short: "Start the trio2o job worker",
		Long: `Start a standalone trio2o job worker.

The worker periodically sweeps Fail-status job rows and redoes them (the
redo_failed_jobs loop), driven by job.Coordinator's registered handlers
(pod_state_statistics and any future job type). It shares no process with
the API gateway; both talk to the same job store.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return env.CmdFlags.CheckEnvironmentVariables(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := maxprocs.Set(); err != nil {
				fmt.Println("warning: automaxprocs:", err)
			}

			params.Logging = runtime.LoggingConfig{Level: logLevel.String(), Format: logFormat.String()}

			raw, err := configFileBytes(params.ConfigFile)
			if err != nil {
				return err
			}

			ctx := context.Background()
			rt, err := runtime.NewRuntime(ctx, params, raw)
			if err != nil {
				return fmt.Errorf("initializing worker: %w", err)
			}

			return rt.StartWorker(ctx)
		},
	}

	addConfigFileFlag(xjobCommand.Flags(), &params.ConfigFile)
	addDBDriverFlag(xjobCommand.Flags(), &params.DBDriver)
	addDBDSNFlag(xjobCommand.Flags(), &params.DBDSN)
	addLogLevelFlag(xjobCommand.Flags(), logLevel)
	addLogFormatFlag(xjobCommand.Flags(), logFormat)
	xjobCommand.Flags().StringVarP(&params.ID, "id", "", "", "set the worker instance id reported in logs")

	RootCommand.AddCommand(xjobCommand)
}
