// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package util

import "fmt"

// EnumFlag implements the pflag.Value interface to provide enumerated
// command line parameter values, e.g. --log-format {text,json}.
type EnumFlag struct {
	Value string
	Flags []string
}

// NewEnumFlag returns a new EnumFlag that has a defaultValue and vs
// enumerated values.
func NewEnumFlag(defaultValue string, vs []string) *EnumFlag {
	return &EnumFlag{Value: defaultValue, Flags: vs}
}

func (ef *EnumFlag) String() string {
	return ef.Value
}

// Set implements pflag.Value.
func (ef *EnumFlag) Set(s string) error {
	for _, v := range ef.Flags {
		if v == s {
			ef.Value = s
			return nil
		}
	}
	return fmt.Errorf("invalid value %q, must be one of %v", s, ef.Flags)
}

// Type implements pflag.Value.
func (*EnumFlag) Type() string {
	return "string"
}
