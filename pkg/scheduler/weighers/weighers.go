// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package weighers implements the WeigherPipeline's built-in spread-first
// weighers: Ram, Disk, VCPU and Workload.
package weighers

import "github.com/trio2o/trio2o/pkg/scheduler"

// Multipliers configures the sign-and-scale each built-in weigher applies,
// mirroring config.FilterSchedulerGroup's *_weight_multiplier fields.
type Multipliers struct {
	RAM      float64
	Disk     float64
	VCPU     float64
	Workload float64
}

// All returns the four built-in weighers configured with m's multipliers.
func All(m Multipliers) []scheduler.Weigher {
	return []scheduler.Weigher{
		ramWeigher{mult: m.RAM},
		diskWeigher{mult: m.Disk},
		vcpuWeigher{mult: m.VCPU},
		workloadWeigher{mult: m.Workload},
	}
}

type ramWeigher struct{ mult float64 }

func (ramWeigher) Name() string                          { return "Ram" }
func (w ramWeigher) WeightMultiplier() float64            { return w.mult }
func (ramWeigher) WeighObject(c scheduler.Candidate) float64 {
	return float64(c.State.FreeRAMMBComputed())
}

type diskWeigher struct{ mult float64 }

func (diskWeigher) Name() string               { return "Disk" }
func (w diskWeigher) WeightMultiplier() float64 { return w.mult }
func (diskWeigher) WeighObject(c scheduler.Candidate) float64 {
	return float64(c.State.FreeDiskGB)
}

type vcpuWeigher struct{ mult float64 }

func (vcpuWeigher) Name() string               { return "VCPU" }
func (w vcpuWeigher) WeightMultiplier() float64 { return w.mult }
func (vcpuWeigher) WeighObject(c scheduler.Candidate) float64 {
	return float64(c.State.VCPUs - c.State.VCPUsUsed)
}

// workloadWeigher scores running_vms directly: a positive default
// multiplier raises pods carrying more load, so operators bin-pack by
// leaving the multiplier positive and spread by negating it.
type workloadWeigher struct{ mult float64 }

func (workloadWeigher) Name() string               { return "Workload" }
func (w workloadWeigher) WeightMultiplier() float64 { return w.mult }
func (workloadWeigher) WeighObject(c scheduler.Candidate) float64 {
	return float64(c.State.RunningVMs)
}
