// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package job implements the JobCoordinator: per-(type, resource_id)
// at-most-one-concurrent-execution with eventual progress under worker
// crash, grounded on the teacher's download.Downloader retry/backoff/
// register loop (download/download.go) generalized from "download one
// bundle" to "run one named handler against one resource, one attempt at a
// time".
package job

import (
	"context"
	"time"
)

// Status is a Job's lifecycle state. Transitions are New -> Running ->
// {Success, Fail} only.
type Status string

const (
	New     Status = "New"
	Running Status = "Running"
	Success Status = "Success"
	Fail    Status = "Fail"
)

// Job is one row in the job log. SP_EXTRA_ID from spec.md §4.5 — the
// sentinel guaranteeing uniqueness-per-active-job — is ExtraID here.
type Job struct {
	ID         string
	Type       string
	ResourceID string
	ExtraID    string
	Timestamp  time.Time
	Status     Status
}

// Store is the persisted job log Coordinator reads and writes through.
// Register is the coordinator's only compare-and-set primitive: it must
// atomically succeed iff no Running row currently exists for (type,
// resourceID), and otherwise return the existing Running row unchanged.
type Store interface {
	InsertNew(ctx context.Context, jobType, resourceID string) (Job, error)
	// Register attempts to transition to Running. ok is false if a
	// Running row already exists for (jobType, resourceID); in that case
	// existing is that row.
	Register(ctx context.Context, jobType, resourceID, extraID string) (row Job, ok bool, existing Job, err error)
	MarkSuccess(ctx context.Context, jobType, resourceID, extraID string, tNew time.Time) error
	MarkFail(ctx context.Context, jobType, resourceID, extraID string) error
	// LatestSuccessAt returns the timestamp of the most recent Success
	// row for (jobType, resourceID), or the zero Time if none exists.
	LatestSuccessAt(ctx context.Context, jobType, resourceID string) (time.Time, error)
	// ForceFail transitions a specific Running row to Fail, used by the
	// expiry sweep when a Running row is older than job_run_expire.
	ForceFail(ctx context.Context, jobType, resourceID, extraID string) error
	// LatestByResource returns, for every (type, resource_id) pair with
	// at least one row, the single most recent row — the view
	// redo_failed_jobs scans for Fail rows to retry.
	LatestByResource(ctx context.Context) ([]Job, error)
}

// Handler processes one job invocation. Handlers MUST be idempotent:
// redo_failed_jobs can re-invoke one after a partial effect.
type Handler func(ctx context.Context, resourceID string) error

// extraIDSentinel is the fixed SP_EXTRA_ID every Running row for a given
// (type, resource_id) shares, so Register's uniqueness check is a plain
// conditional insert on (type, resource_id, extra_id).
const extraIDSentinel = "job-runner"
