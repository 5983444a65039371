// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package routing

import (
	"context"
	"sync"
	"time"
)

type key struct {
	topID        string
	resourceType string
}

// inmemStore is a process-local Store. Reserve/Complete/Delete all hold the
// single write lock for their whole operation, matching the teacher's
// storage/inmem transactional-store shape and giving RoutingStore the
// "conditional insert plus TTL reclaim" semantics spec.md §5 requires
// without a real database's row locking.
type inmemStore struct {
	mu   sync.Mutex
	rows map[key]Row
}

// NewInMemory returns a Store backed by process memory.
func NewInMemory() Store {
	return &inmemStore{rows: map[key]Row{}}
}

func (s *inmemStore) Reserve(_ context.Context, topID, resourceType string, ttl time.Duration) (Row, ReserveStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{topID, resourceType}
	now := time.Now()

	row, ok := s.rows[k]
	if !ok {
		row = Row{TopID: topID, ResourceType: resourceType, CreatedAt: now, UpdatedAt: now}
		s.rows[k] = row
		return row, Reserved, nil
	}

	if !row.IsReservation() {
		return row, ResDone, nil
	}

	if now.Sub(row.UpdatedAt) < ttl {
		return row, NoneDone, nil
	}

	// Reservation has expired: reclaim it.
	row.UpdatedAt = now
	s.rows[k] = row
	return row, Reserved, nil
}

func (s *inmemStore) Complete(_ context.Context, topID, resourceType, bottomID, podID, projectID string) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{topID, resourceType}
	now := time.Now()

	row, ok := s.rows[k]
	if !ok {
		row = Row{TopID: topID, ResourceType: resourceType, CreatedAt: now}
	}
	row.BottomID = bottomID
	row.PodID = podID
	row.ProjectID = projectID
	row.UpdatedAt = now
	s.rows[k] = row
	return row, nil
}

func (s *inmemStore) LookupBottoms(_ context.Context, topID, resourceType string) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[key{topID, resourceType}]
	if !ok || row.IsReservation() {
		return nil, nil
	}
	return []Row{row}, nil
}

func (s *inmemStore) LookupByTenantPod(_ context.Context, tenantID, podID, resourceType string) (map[string]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[string]Row{}
	for _, row := range s.rows {
		if row.IsReservation() {
			continue
		}
		if resourceType != "" && row.ResourceType != resourceType {
			continue
		}
		if row.ProjectID != tenantID || row.PodID != podID {
			continue
		}
		out[row.BottomID] = row
	}
	return out, nil
}

func (s *inmemStore) Delete(_ context.Context, filter Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, row := range s.rows {
		if filter.TopID != "" && row.TopID != filter.TopID {
			continue
		}
		if filter.PodID != "" && row.PodID != filter.PodID {
			continue
		}
		if filter.ProjectID != "" && row.ProjectID != filter.ProjectID {
			continue
		}
		if filter.ResourceType != "" && row.ResourceType != filter.ResourceType {
			continue
		}
		delete(s.rows, k)
	}
	return nil
}
