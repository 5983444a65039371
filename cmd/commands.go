// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package cmd wires the trio2o binary's subcommands: run (the API
// gateway), xjob (the standalone job worker), pod list, job list and
// version.
package cmd

import (
	"github.com/spf13/cobra"
)

// RootCommand is the base CLI command every subcommand attaches to in its
// init, the way each of the teacher's initXxx functions did.
var RootCommand = &cobra.Command{
	Use:   "trio2o",
	Short: "trio2o federation gateway",
	Long:  "A cross-pod resource-federation gateway: pod scheduling, resource routing and async job coordination across OpenStack-style pods.",
}
