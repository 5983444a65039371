// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package handlers holds the job.Handler implementations the gateway
// registers with job.Coordinator — currently pod_state_statistics, the
// periodic refresh of PodState from a pod's hypervisor summary that
// spec.md §4.5 names as a concrete job type this core recognizes.
package handlers

import (
	"context"
	"fmt"

	"github.com/trio2o/trio2o/pkg/forward"
	"github.com/trio2o/trio2o/pkg/pod"
)

// PodStateStatisticsType is the job type string registered with
// job.Coordinator.
const PodStateStatisticsType = "pod_state_statistics"

// HypervisorSummary is the shape Forwarder decodes from a pod's
// hypervisor-statistics endpoint.
type HypervisorSummary struct {
	Count              int   `json:"count"`
	VCPUs              int   `json:"vcpus"`
	VCPUsUsed          int   `json:"vcpus_used"`
	MemoryMB           int64 `json:"memory_mb"`
	MemoryMBUsed       int64 `json:"memory_mb_used"`
	LocalGB            int64 `json:"local_gb"`
	LocalGBUsed        int64 `json:"local_gb_used"`
	FreeRAMMB          int64 `json:"free_ram_mb"`
	FreeDiskGB         int64 `json:"free_disk_gb"`
	CurrentWorkload    int   `json:"current_workload"`
	RunningVMs         int   `json:"running_vms"`
	DiskAvailableLeast int64 `json:"disk_available_least"`
}

// PodStateStatistics returns a job.Handler that pulls a hypervisor summary
// from resourceID's pod via forwarder and upserts it into catalog as that
// pod's State. Idempotent: re-running it after a partial effect simply
// overwrites the row with the latest pull.
func PodStateStatistics(catalog pod.Catalog, forwarder *forward.Forwarder) func(ctx context.Context, resourceID string) error {
	return func(ctx context.Context, resourceID string) error {
		p, ok, err := catalog.GetByID(ctx, resourceID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("pod_state_statistics: pod %s not found", resourceID)
		}

		var summary HypervisorSummary
		if err := forwarder.GetJSON(ctx, p, "os-hypervisors/statistics", &summary); err != nil {
			return err
		}

		return catalog.UpdateState(ctx, pod.State{
			PodID:              p.PodID,
			Count:              summary.Count,
			VCPUs:              summary.VCPUs,
			VCPUsUsed:          summary.VCPUsUsed,
			MemoryMB:           summary.MemoryMB,
			MemoryMBUsed:       summary.MemoryMBUsed,
			LocalGB:            summary.LocalGB,
			LocalGBUsed:        summary.LocalGBUsed,
			FreeRAMMB:          summary.FreeRAMMB,
			FreeDiskGB:         summary.FreeDiskGB,
			CurrentWorkload:    summary.CurrentWorkload,
			RunningVMs:         summary.RunningVMs,
			DiskAvailableLeast: summary.DiskAvailableLeast,
		})
	}
}
