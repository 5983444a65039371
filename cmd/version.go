// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"io"
	"os"
	goruntime "runtime"

	"github.com/spf13/cobra"
)

// Version, Vcs and Timestamp are overridden at build time via -ldflags.
var (
	Version   = "0.0.0-dev"
	Vcs       = "unknown"
	Timestamp = "unknown"
)

func init() {
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Print the version of trio2o",
		Long:  "Show version and build information for the trio2o gateway.",
		Run: func(cmd *cobra.Command, args []string) {
			generateCmdOutput(os.Stdout)
		},
	}

	RootCommand.AddCommand(versionCommand)
}

func generateCmdOutput(out io.Writer) {
	fmt.Fprintln(out, "Version: "+Version)
	fmt.Fprintln(out, "Build Commit: "+Vcs)
	fmt.Fprintln(out, "Build Timestamp: "+Timestamp)
	fmt.Fprintln(out, "Go Version: "+goruntime.Version())
}
