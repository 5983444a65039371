// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package pod

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/trio2o/trio2o/pkg/apierror"
)

// inmemStore is a process-local Catalog, guarded by a single RWMutex in the
// manner of the teacher's storage/inmem transactional store: reads take a
// read lock, writes take the full lock and the whole operation (including
// the binding-switch transaction) runs under it.
type inmemStore struct {
	mu    sync.RWMutex
	pods  map[string]Pod // by pod_id
	byName map[string]string // pod_name -> pod_id
	states map[string]State
	tags   map[string]AffinityTag // by affinity_tag_id
	// bindings is keyed by tenant_id; each tenant has at most one active
	// binding per az, enforced by ChangeBinding.
	bindings map[string][]Binding
}

// NewInMemory returns a Catalog backed by process memory, suitable for
// tests and single-process deployments; production deployments back the
// Catalog with pkg/store/sql instead.
func NewInMemory() Catalog {
	return &inmemStore{
		pods:   map[string]Pod{},
		byName: map[string]string{},
		states: map[string]State{},
		tags:   map[string]AffinityTag{},
		bindings: map[string][]Binding{},
	}
}

func (s *inmemStore) ListPods(_ context.Context) ([]Pod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Pod, 0, len(s.pods))
	for _, p := range s.pods {
		out = append(out, p)
	}
	return out, nil
}

func (s *inmemStore) GetByID(_ context.Context, podID string) (Pod, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pods[podID]
	return p, ok, nil
}

func (s *inmemStore) GetByName(_ context.Context, podName string) (Pod, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[podName]
	if !ok {
		return Pod{}, false, nil
	}
	p := s.pods[id]
	return p, true, nil
}

func (s *inmemStore) ListPodsByTenant(_ context.Context, tenantID string) ([]Pod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	azs := map[string]bool{}
	for _, b := range s.bindings[tenantID] {
		if !b.IsBinding {
			continue
		}
		if p, ok := s.pods[b.PodID]; ok {
			azs[p.AZName] = true
		}
	}
	out := []Pod{}
	for _, p := range s.pods {
		if azs[p.AZName] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *inmemStore) ListAffinityTags(_ context.Context, filter AffinityTagFilter) ([]AffinityTag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []AffinityTag{}
	for _, t := range s.tags {
		if filter.AffinityTagID != "" && t.AffinityTagID != filter.AffinityTagID {
			continue
		}
		if filter.PodID != "" && t.PodID != filter.PodID {
			continue
		}
		if filter.Key != "" && t.Key != filter.Key {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *inmemStore) GetState(_ context.Context, podID string) (State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[podID]
	return st, ok, nil
}

func (s *inmemStore) CreatePod(_ context.Context, p Pod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pods[p.PodID]; ok {
		return apierror.New(apierror.Conflict, "pod %s already exists", p.PodID)
	}
	if _, ok := s.byName[p.PodName]; ok {
		return apierror.New(apierror.Conflict, "pod name %s already in use", p.PodName)
	}
	if p.AZName == "" {
		for _, existing := range s.pods {
			if existing.IsTop() {
				return apierror.New(apierror.Conflict, "a top pod already exists: %s", existing.PodID)
			}
		}
	}
	s.pods[p.PodID] = p
	s.byName[p.PodName] = p.PodID
	return nil
}

func (s *inmemStore) CreateAffinityTag(_ context.Context, tag AffinityTag) (AffinityTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tag.Key == "" || tag.Value == "" || tag.PodID == "" {
		return AffinityTag{}, apierror.New(apierror.InvalidInput, "key, value and pod_id are required")
	}
	if _, ok := s.pods[tag.PodID]; !ok {
		return AffinityTag{}, apierror.New(apierror.PodNotFound, "pod %s not found", tag.PodID)
	}
	if tag.AffinityTagID == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			return AffinityTag{}, err
		}
		tag.AffinityTagID = id.String()
	}
	s.tags[tag.AffinityTagID] = tag
	return tag, nil
}

func (s *inmemStore) DeleteAffinityTag(_ context.Context, affinityTagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tags[affinityTagID]; !ok {
		return apierror.New(apierror.NotFound, "affinity tag %s not found", affinityTagID)
	}
	delete(s.tags, affinityTagID)
	return nil
}

func (s *inmemStore) CreateBinding(_ context.Context, b Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[b.TenantID] = append(s.bindings[b.TenantID], b)
	return nil
}

// ChangeBinding implements the Scheduler's "switch active within az"
// transaction: at most one binding per (tenant, az) is ever active, so the
// prior active row (if on a different pod) is flipped to inactive in the
// same critical section that activates the new one.
func (s *inmemStore) ChangeBinding(_ context.Context, tenantID, azName, podID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.bindings[tenantID]
	foundTarget := false
	for i := range rows {
		p, ok := s.pods[rows[i].PodID]
		if !ok || p.AZName != azName {
			continue
		}
		if rows[i].PodID == podID {
			rows[i].IsBinding = true
			foundTarget = true
		} else if rows[i].IsBinding {
			rows[i].IsBinding = false
		}
	}
	if !foundTarget {
		rows = append(rows, Binding{TenantID: tenantID, PodID: podID, IsBinding: true})
	}
	s.bindings[tenantID] = rows
	return nil
}

func (s *inmemStore) ListBindingsForTenant(_ context.Context, tenantID string) ([]Binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Binding, len(s.bindings[tenantID]))
	copy(out, s.bindings[tenantID])
	return out, nil
}

// UpdateState is the PodState upsert: insert-if-absent, else update-one,
// taking the write lock so concurrent refreshes of the same pod_id never
// race into duplicate or lost-update states.
func (s *inmemStore) UpdateState(_ context.Context, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pods[st.PodID]; !ok {
		return apierror.New(apierror.PodNotFound, "pod %s not found", st.PodID)
	}
	s.states[st.PodID] = st
	return nil
}
