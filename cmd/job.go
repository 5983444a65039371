// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/trio2o/trio2o/runtime"
)

func init() {
	var params runtime.Params
	var statusFilter string

	jobCommand := &cobra.Command{
		Use:   "job",
		Short: "Inspect the async job log",
	}

	jobListCommand := &cobra.Command{
		Use:   "list",
		Short: "List the most recent row for every (type, resource_id) job",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, jobs, closeFn, err := runtime.AdminStores(params)
			if err != nil {
				return err
			}
			defer closeFn()

			rows, err := jobs.LatestByResource(context.Background())
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Type", "Resource ID", "Status", "Timestamp"})
			printed := 0
			for _, j := range rows {
				if statusFilter != "" && string(j.Status) != statusFilter {
					continue
				}
				table.Append([]string{j.Type, j.ResourceID, string(j.Status), j.Timestamp.Format("2006-01-02T15:04:05Z07:00")})
				printed++
			}
			table.Render()
			fmt.Fprintf(os.Stdout, "%d job(s)\n", printed)
			return nil
		},
	}
	jobListCommand.Flags().StringVar(&statusFilter, "status", "", "filter by status (New, Running, Success, Fail)")

	addDBDriverFlag(jobCommand.PersistentFlags(), &params.DBDriver)
	addDBDSNFlag(jobCommand.PersistentFlags(), &params.DBDSN)

	jobCommand.AddCommand(jobListCommand)
	RootCommand.AddCommand(jobCommand)
}
