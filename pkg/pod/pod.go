// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package pod holds the PodCatalog data model: pods, their per-pod resource
// snapshots, affinity tags and tenant bindings, and the Catalog interface
// the scheduler and forwarder read and write through.
package pod

import "time"

// Pod describes one federated region behind the gateway. A Pod with an
// empty AZName is the "top" pod: it is never a provisioning destination.
type Pod struct {
	PodID            string
	PodName          string
	AZName           string
	DCName           string
	PodAZName        string
	IsUnderMaintenance bool
	CreateTime       time.Time
}

// IsTop reports whether p is the top pod.
func (p Pod) IsTop() bool {
	return p.AZName == ""
}

// State is the most recently pulled resource snapshot for a pod. At most
// one State exists per PodID; callers tolerate staleness between refresh
// cycles.
type State struct {
	PodID              string
	Count              int
	VCPUs              int
	VCPUsUsed          int
	MemoryMB           int64
	MemoryMBUsed       int64
	LocalGB            int64
	LocalGBUsed        int64
	FreeRAMMB          int64
	FreeDiskGB         int64
	CurrentWorkload    int
	RunningVMs         int
	DiskAvailableLeast int64
}

// FreeRAMMBComputed recomputes free RAM from memory/used, preferred over
// the cached FreeRAMMB field where both are available (spec.md's Ram
// weigher and filter both recompute rather than trust the cache).
func (s State) FreeRAMMBComputed() int64 {
	return s.MemoryMB - s.MemoryMBUsed
}

// AffinityTag is one (key, value) fact about a pod. A pod may carry many;
// uniqueness of (PodID, Key) is not enforced at write time — last write
// wins when tags are collapsed into a map for filtering.
type AffinityTag struct {
	AffinityTagID string
	PodID         string
	Key           string
	Value         string
}

// Binding records whether tenant TenantID is currently bound to PodID. For
// a given (TenantID, az) at most one Binding has IsBinding true.
type Binding struct {
	TenantID  string
	PodID     string
	IsBinding bool
}

// AffinityTagFilter narrows ListAffinityTags. Zero-value fields are
// wildcards.
type AffinityTagFilter struct {
	AffinityTagID string
	PodID         string
	Key           string
}
