// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package config implements gateway configuration file parsing and
// validation: the filter-scheduler, scheduler, worker and client option
// groups that spec.md §6 names as contracts.
package config

import (
	"fmt"
	"time"

	"github.com/trio2o/trio2o/pkg/telemetry"
	"github.com/trio2o/trio2o/util"
)

// FilterSchedulerGroup holds the weigher multipliers, subset size and
// filter/weight-class registries used by the filter_scheduler driver.
type FilterSchedulerGroup struct {
	RAMWeightMultiplier      float64  `yaml:"ram_weight_multiplier"`
	DiskWeightMultiplier     float64  `yaml:"disk_weight_multiplier"`
	VCPUWeightMultiplier     float64  `yaml:"vcpu_weight_multiplier"`
	WorkloadWeightMultiplier float64  `yaml:"workload_weight_multiplier"`
	PodSubsetSize            int      `yaml:"pod_subset_size"`
	AvailableFilters         []string `yaml:"available_filters"`
	EnabledFilters           []string `yaml:"enabled_filters"`
	WeightClasses            []string `yaml:"weight_classes"`
	ShuffleBestSameWeighed   bool     `yaml:"shuffle_best_same_weighed_pods"`
}

// SchedulerGroup selects which Scheduler implementation is active.
type SchedulerGroup struct {
	Driver string `yaml:"driver"`
}

// WorkerGroup holds the xjob worker's timing knobs, in seconds as spec.md
// §6 names them; Duration accessors convert for callers.
type WorkerGroup struct {
	WorkerHandleTimeout float64 `yaml:"worker_handle_timeout"`
	JobRunExpire        float64 `yaml:"job_run_expire"`
	WorkerSleepTime     float64 `yaml:"worker_sleep_time"`
}

// WorkerHandleTimeoutDuration is WorkerHandleTimeout as a time.Duration.
func (w WorkerGroup) WorkerHandleTimeoutDuration() time.Duration {
	return time.Duration(w.WorkerHandleTimeout * float64(time.Second))
}

// JobRunExpireDuration is JobRunExpire as a time.Duration.
func (w WorkerGroup) JobRunExpireDuration() time.Duration {
	return time.Duration(w.JobRunExpire * float64(time.Second))
}

// WorkerSleepTimeDuration is WorkerSleepTime as a time.Duration.
func (w WorkerGroup) WorkerSleepTimeDuration() time.Duration {
	return time.Duration(w.WorkerSleepTime * float64(time.Second))
}

// ClientGroup holds Forwarder behavior knobs.
type ClientGroup struct {
	TopPodName          string `yaml:"top_pod_name"`
	AutoRefreshEndpoint bool   `yaml:"auto_refresh_endpoint"`
}

// Config is the gateway's configuration file, parsed from YAML or JSON.
// TRIO2O_* environment variables set command-line flags only (see
// cmd/internal/env); they do not override fields of this file.
type Config struct {
	ID              string               `yaml:"id"`
	FilterScheduler FilterSchedulerGroup `yaml:"filter_scheduler"`
	Scheduler       SchedulerGroup       `yaml:"scheduler"`
	Worker          WorkerGroup          `yaml:"worker"`
	Client          ClientGroup          `yaml:"client"`
	Tracing         telemetry.Config     `yaml:"tracing"`
}

const (
	driverFilterScheduler = "filter_scheduler"
	driverChanceScheduler = "chance_scheduler"
)

// ParseConfig returns a valid Config with defaults injected. id is the
// gateway instance id, set on Config.ID when the file does not supply one.
func ParseConfig(raw []byte, id string) (*Config, error) {
	var result Config
	if err := util.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	if err := result.validateAndInjectDefaults(id); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Config) validateAndInjectDefaults(id string) error {
	if c.ID == "" {
		c.ID = id
	}

	fs := &c.FilterScheduler
	if fs.RAMWeightMultiplier == 0 {
		fs.RAMWeightMultiplier = 1.0
	}
	if fs.DiskWeightMultiplier == 0 {
		fs.DiskWeightMultiplier = 1.0
	}
	if fs.VCPUWeightMultiplier == 0 {
		fs.VCPUWeightMultiplier = 1.0
	}
	if fs.WorkloadWeightMultiplier == 0 {
		fs.WorkloadWeightMultiplier = 1.0
	}
	if fs.PodSubsetSize < 1 {
		fs.PodSubsetSize = 1
	}

	available := make(map[string]bool, len(fs.AvailableFilters))
	for _, name := range fs.AvailableFilters {
		available[name] = true
	}
	for _, name := range fs.EnabledFilters {
		if len(fs.AvailableFilters) > 0 && !available[name] {
			return fmt.Errorf("enabled_filters: %q is not in available_filters", name)
		}
	}

	switch c.Scheduler.Driver {
	case "":
		c.Scheduler.Driver = driverFilterScheduler
	case driverFilterScheduler, driverChanceScheduler:
	default:
		return fmt.Errorf("scheduler.driver: invalid value %q", c.Scheduler.Driver)
	}

	if c.Worker.WorkerHandleTimeout == 0 {
		c.Worker.WorkerHandleTimeout = 180
	}
	if c.Worker.JobRunExpire == 0 {
		c.Worker.JobRunExpire = 180
	}
	if c.Worker.WorkerSleepTime == 0 {
		c.Worker.WorkerSleepTime = 10
	}

	if c.Client.TopPodName == "" {
		c.Client.TopPodName = "top"
	}

	return nil
}

// UsesFilterScheduler reports whether the configured driver is
// filter_scheduler (as opposed to chance_scheduler).
func (c Config) UsesFilterScheduler() bool {
	return c.Scheduler.Driver == driverFilterScheduler
}
