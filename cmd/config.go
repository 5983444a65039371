// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import "os"

// configFileBytes reads path, or returns an empty document when path is
// unset so runtime.NewRuntime falls back to config.ParseConfig's defaults.
func configFileBytes(path string) ([]byte, error) {
	if path == "" {
		return []byte("{}"), nil
	}
	return os.ReadFile(path)
}
