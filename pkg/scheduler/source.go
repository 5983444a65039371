// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package scheduler

import (
	"context"

	"github.com/trio2o/trio2o/pkg/pod"
)

// CatalogSource adapts a pod.Catalog into the Source interface the
// schedulers consume.
type CatalogSource struct {
	Catalog pod.Catalog
}

func (s CatalogSource) Candidates(ctx context.Context) ([]Candidate, error) {
	pods, err := s.Catalog.ListPods(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(pods))
	for _, p := range pods {
		state, _, err := s.Catalog.GetState(ctx, p.PodID)
		if err != nil {
			return nil, err
		}
		tags, err := s.Catalog.ListAffinityTags(ctx, pod.AffinityTagFilter{PodID: p.PodID})
		if err != nil {
			return nil, err
		}
		out = append(out, Candidate{Pod: p, State: state, Tags: AffinityTagsAsMap(tags)})
	}
	return out, nil
}

func (s CatalogSource) BoundPods(ctx context.Context, tenantID string) (map[string]bool, error) {
	bindings, ok := s.Catalog.(pod.Bindings)
	if !ok {
		return nil, nil
	}
	rows, err := bindings.ListBindingsForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, b := range rows {
		if b.IsBinding {
			out[b.PodID] = true
		}
	}
	return out, nil
}

func (s CatalogSource) ChangeBinding(ctx context.Context, tenantID, azName, podID string) error {
	return s.Catalog.ChangeBinding(ctx, tenantID, azName, podID)
}

// TenantBoundFunc returns the tenant-bound predicate the Tenant filter
// needs, backed by catalog.
func TenantBoundFunc(catalog pod.Catalog) func(ctx context.Context, tenantID, podID string) bool {
	return func(ctx context.Context, tenantID, podID string) bool {
		bindings, ok := catalog.(pod.Bindings)
		if !ok {
			return false
		}
		rows, err := bindings.ListBindingsForTenant(ctx, tenantID)
		if err != nil {
			return false
		}
		for _, b := range rows {
			if b.IsBinding && b.PodID == podID {
				return true
			}
		}
		return false
	}
}
