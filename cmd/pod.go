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

	podCommand := &cobra.Command{
		Use:   "pod",
		Short: "Inspect the pod catalog",
	}

	podListCommand := &cobra.Command{
		Use:   "list",
		Short: "List every pod in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, _, closeFn, err := runtime.AdminStores(params)
			if err != nil {
				return err
			}
			defer closeFn()

			pods, err := catalog.ListPods(context.Background())
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Pod ID", "Name", "AZ", "DC", "Maintenance"})
			for _, p := range pods {
				maintenance := "no"
				if p.IsUnderMaintenance {
					maintenance = "yes"
				}
				table.Append([]string{p.PodID, p.PodName, p.AZName, p.DCName, maintenance})
			}
			table.Render()
			fmt.Fprintf(os.Stdout, "%d pod(s)\n", len(pods))
			return nil
		},
	}

	addDBDriverFlag(podCommand.PersistentFlags(), &params.DBDriver)
	addDBDSNFlag(podCommand.PersistentFlags(), &params.DBDSN)

	podCommand.AddCommand(podListCommand)
	RootCommand.AddCommand(podCommand)
}
