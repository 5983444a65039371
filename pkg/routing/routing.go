// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package routing implements ResourceRouting: the persisted top_id ↔
// (pod_id, bottom_id, resource_type, project_id) mapping that makes
// cross-pod identity stable, including the reservation-row locking scheme
// create handlers use to avoid double-provisioning.
package routing

import (
	"context"
	"time"
)

// ReserveStatus is the outcome of a Reserve call.
type ReserveStatus int

const (
	// Reserved means the caller now owns the reservation row and should
	// proceed to provision downstream.
	Reserved ReserveStatus = iota
	// ResDone means a row already exists with a bottom_id: the downstream
	// resource already exists.
	ResDone
	// NoneDone means another worker holds a live (non-expired)
	// reservation; the caller should back off.
	NoneDone
)

// Row is one ResourceRouting record. BottomID is empty for a reservation
// row that has not yet been completed.
type Row struct {
	TopID        string
	BottomID     string
	PodID        string
	ProjectID    string
	ResourceType string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsReservation reports whether row is an uncompleted reservation (locks a
// (top_id, type) pair against concurrent create attempts).
func (r Row) IsReservation() bool {
	return r.BottomID == ""
}

// Filter narrows Delete. Zero-value fields are wildcards.
type Filter struct {
	TopID        string
	PodID        string
	ProjectID    string
	ResourceType string
}

// Store is the RoutingStore contract.
type Store interface {
	// Reserve creates a reservation row for (topID, resourceType) iff
	// none exists. If one exists and is completed, ResDone is returned
	// with the completed row. If one exists, is uncompleted and younger
	// than ttl, NoneDone is returned. If one exists, is uncompleted and
	// older than ttl, the caller reclaims it (updated_at reset) and
	// Reserved is returned.
	Reserve(ctx context.Context, topID, resourceType string, ttl time.Duration) (Row, ReserveStatus, error)
	// Complete fills in BottomID on the reservation for (topID,
	// resourceType). If the row was removed by expiry handling in the
	// interim, a fresh completed row is inserted.
	Complete(ctx context.Context, topID, resourceType, bottomID, podID, projectID string) (Row, error)
	LookupBottoms(ctx context.Context, topID, resourceType string) ([]Row, error)
	LookupByTenantPod(ctx context.Context, tenantID, podID, resourceType string) (map[string]Row, error)
	Delete(ctx context.Context, filter Filter) error
}
