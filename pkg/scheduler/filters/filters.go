// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package filters implements the FilterPipeline's built-in predicates:
// AllPod, AvailabilityZone, BottomPod, DestinationPod, IgnorePod,
// CreateTime, Disk, Ram, PodAffinityTag and Tenant.
package filters

import (
	"context"

	"github.com/trio2o/trio2o/pkg/scheduler"
)

// All returns every built-in filter, keyed by Name(), ready to seed a
// scheduler.FilterRegistry. tenantBound reports whether tenantID has a
// binding on pod podID — the Tenant filter's sole dependency on external
// state, injected so filters stays free of a direct PodCatalog import.
func All(tenantBound func(ctx context.Context, tenantID, podID string) bool) []scheduler.Filter {
	return []scheduler.Filter{
		allPod{},
		availabilityZone{},
		bottomPod{},
		destinationPod{},
		ignorePod{},
		createTime{},
		disk{},
		ram{},
		podAffinityTag{},
		tenant{bound: tenantBound},
	}
}

type allPod struct{}

func (allPod) Name() string { return "AllPod" }
func (allPod) Passes(_ context.Context, c scheduler.Candidate, _ scheduler.RequestSpec) bool {
	return !c.Pod.IsUnderMaintenance
}

type availabilityZone struct{}

func (availabilityZone) Name() string { return "AvailabilityZone" }
func (availabilityZone) Passes(_ context.Context, c scheduler.Candidate, spec scheduler.RequestSpec) bool {
	if spec.AZName == "" {
		return true
	}
	return spec.AZName == c.Pod.AZName
}

type bottomPod struct{}

func (bottomPod) Name() string { return "BottomPod" }
func (bottomPod) Passes(_ context.Context, c scheduler.Candidate, _ scheduler.RequestSpec) bool {
	return !c.Pod.IsTop()
}

type destinationPod struct{}

func (destinationPod) Name() string { return "DestinationPod" }
func (destinationPod) Passes(_ context.Context, c scheduler.Candidate, spec scheduler.RequestSpec) bool {
	if spec.RequestedDestination == "" {
		return true
	}
	return spec.RequestedDestination == c.Pod.PodName
}

type ignorePod struct{}

func (ignorePod) Name() string { return "IgnorePod" }
func (ignorePod) Passes(_ context.Context, c scheduler.Candidate, spec scheduler.RequestSpec) bool {
	return !spec.IgnorePods[c.Pod.PodName]
}

type createTime struct{}

func (createTime) Name() string { return "CreateTime" }
func (createTime) Passes(_ context.Context, c scheduler.Candidate, spec scheduler.RequestSpec) bool {
	if spec.CreateTime.IsZero() {
		return true
	}
	return !c.Pod.CreateTime.Before(spec.CreateTime)
}

type disk struct{}

func (disk) Name() string { return "Disk" }
func (disk) Passes(_ context.Context, c scheduler.Candidate, spec scheduler.RequestSpec) bool {
	if spec.DiskGB == 0 {
		return true
	}
	return c.State.FreeDiskGB >= spec.DiskGB
}

type ram struct{}

func (ram) Name() string { return "Ram" }
func (ram) Passes(_ context.Context, c scheduler.Candidate, spec scheduler.RequestSpec) bool {
	if spec.MemoryMB == 0 {
		return true
	}
	return c.State.FreeRAMMBComputed() >= spec.MemoryMB
}

type podAffinityTag struct{}

func (podAffinityTag) Name() string { return "PodAffinityTag" }
func (podAffinityTag) Passes(_ context.Context, c scheduler.Candidate, spec scheduler.RequestSpec) bool {
	for k, v := range spec.AffinityTags {
		if c.Tags[k] != v {
			return false
		}
	}
	return true
}

type tenant struct {
	bound func(ctx context.Context, tenantID, podID string) bool
}

func (tenant) Name() string { return "Tenant" }
func (t tenant) Passes(ctx context.Context, c scheduler.Candidate, spec scheduler.RequestSpec) bool {
	if t.bound == nil {
		return false
	}
	return t.bound(ctx, spec.ProjectID, c.Pod.PodID)
}
