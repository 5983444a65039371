// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"github.com/spf13/pflag"

	"github.com/trio2o/trio2o/util"
)

func addConfigFileFlag(fs *pflag.FlagSet, file *string) {
	fs.StringVarP(file, "config-file", "c", "", "set path of configuration file")
}

func addAddrFlag(fs *pflag.FlagSet, addr *string, value string) {
	fs.StringVarP(addr, "addr", "a", value, "set listening address of the gateway (e.g., [ip]:<port>)")
}

func addDBDriverFlag(fs *pflag.FlagSet, driver *string) {
	fs.StringVarP(driver, "db-driver", "", "", "set the SQL driver (mysql, postgres, sqlserver, sqlite) backing the pod/routing/job stores; empty uses in-memory stores")
}

func addDBDSNFlag(fs *pflag.FlagSet, dsn *string) {
	fs.StringVarP(dsn, "db-dsn", "", "", "set the database/sql data source name, required when --db-driver is set")
}

func newLogLevelFlag() *util.EnumFlag {
	return util.NewEnumFlag("info", []string{"debug", "info", "warn", "error"})
}

func addLogLevelFlag(fs *pflag.FlagSet, level *util.EnumFlag) {
	fs.VarP(level, "log-level", "l", "set log level")
}

func newLogFormatFlag() *util.EnumFlag {
	return util.NewEnumFlag("text", []string{"text", "json"})
}

func addLogFormatFlag(fs *pflag.FlagSet, format *util.EnumFlag) {
	fs.VarP(format, "log-format", "", "set log format")
}
