// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package util holds small generic helpers shared across the gateway:
// retry backoff, enumerated CLI flags, JSON decoding with numeric
// precision, and response-body cleanup. Anything domain-specific lives in
// its own package.
package util

import (
	"math"
	"math/rand"
	"time"
)

// DefaultBackoff returns a delay with an exponential backoff based on the
// number of retries: factor 2, randomized by +/- 10% jitter.
func DefaultBackoff(base, maxNS float64, retries int) time.Duration {
	return Backoff(base, maxNS, 0.1, 2, retries)
}

// Backoff returns a delay with an exponential backoff based on the number of
// retries. Same algorithm used in gRPC: backoff = base * factor^retries,
// capped at maxNS, randomized by +/- jitter.
func Backoff(base, maxNS, jitter, factor float64, retries int) time.Duration {
	if retries == 0 {
		return time.Duration(base) * time.Nanosecond
	}
	backoff, max := base, maxNS
	for backoff < max && retries > 0 {
		backoff *= factor
		retries--
	}
	if backoff > max {
		backoff = max
	}
	backoff *= 1 + jitter*(rand.Float64()*2-1)
	if backoff < 0 {
		return 0
	}
	return time.Duration(math.Round(backoff)) * time.Nanosecond
}
