// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package scheduler implements pod selection: the FilterPipeline,
// WeigherPipeline, and the Chance and Filter+Weigh Scheduler variants that
// combine them with tenant-binding policy.
package scheduler

import "time"

// RequestSpec is the immutable per-call input to a Scheduler. Zero values
// of optional fields (empty string, zero time, nil map) mean "unset" and
// the corresponding filter/weigher passes through.
type RequestSpec struct {
	ProjectID             string
	RequestedDestination  string
	IgnorePods            map[string]bool
	AZName                string
	AffinityTags          map[string]string
	LoadSensitive         bool
	TimeSensitive         bool
	CreateTime            time.Time
	VCPUs                 int
	MemoryMB              int64
	DiskGB                int64
}

// WithIgnorePods returns a copy of s with additional pod names merged into
// IgnorePods, used by the Filter+Weigh unbound phase to exclude pods the
// tenant is already bound to.
func (s RequestSpec) WithIgnorePods(names ...string) RequestSpec {
	merged := make(map[string]bool, len(s.IgnorePods)+len(names))
	for n := range s.IgnorePods {
		merged[n] = true
	}
	for _, n := range names {
		merged[n] = true
	}
	s.IgnorePods = merged
	return s
}
