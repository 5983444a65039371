// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package util

import (
	"io"
	"net/http"
)

// Close reads the remaining bytes from the response and then closes it to
// ensure that the underlying connection is freed for reuse. A nil response
// is ignored.
func Close(resp *http.Response) {
	if resp == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
