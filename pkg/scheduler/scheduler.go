// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package scheduler

import (
	"context"
	"math/rand"

	"github.com/trio2o/trio2o/pkg/apierror"
	"github.com/trio2o/trio2o/pkg/pod"
)

// Rand is the randomness source a Scheduler draws on for subset selection,
// same-weight shuffling and chance sampling. Tests inject a deterministic
// implementation; production uses rand.New(rand.NewSource(...)).
type Rand interface {
	Intn(n int) int
}

// Source provides the live candidate set and the data a Scheduler needs to
// evaluate bindings, independent of how PodCatalog is backed.
type Source interface {
	Candidates(ctx context.Context) ([]Candidate, error)
	BoundPods(ctx context.Context, tenantID string) (map[string]bool, error)
	ChangeBinding(ctx context.Context, tenantID, azName, podID string) error
}

// Result is what a Scheduler returns on success: the chosen pod, its name
// (convenience for the Forwarder) and whether a tenant binding was
// created/updated as a side effect.
type Result struct {
	Pod           pod.Pod
	PodName       string
	BindingTouched bool
}

// Scheduler is the public selection operation both variants implement.
type Scheduler interface {
	SelectDestination(ctx context.Context, spec RequestSpec) (Result, error)
}

// ErrNoPod is returned when no candidate survives filtering.
var ErrNoPod = apierror.New(apierror.PodNotFound, "no pod available for request")

// ChanceScheduler implements spec.md §4.3's Chance variant: exclude
// maintenance/top/ignored pods and affinity mismatches, then sample
// uniformly from the survivors.
type ChanceScheduler struct {
	Source Source
	Rand   Rand
}

func (s *ChanceScheduler) SelectDestination(ctx context.Context, spec RequestSpec) (Result, error) {
	candidates, err := s.Source.Candidates(ctx)
	if err != nil {
		return Result{}, err
	}

	survivors := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Pod.IsTop() || c.Pod.IsUnderMaintenance {
			continue
		}
		if spec.IgnorePods[c.Pod.PodName] {
			continue
		}
		mismatch := false
		for k, v := range spec.AffinityTags {
			if c.Tags[k] != v {
				mismatch = true
				break
			}
		}
		if mismatch {
			continue
		}
		survivors = append(survivors, c)
	}

	if len(survivors) == 0 {
		return Result{}, ErrNoPod
	}

	chosen := survivors[s.Rand.Intn(len(survivors))]
	return Result{Pod: chosen.Pod, PodName: chosen.Pod.PodName}, nil
}

// FilterScheduler implements spec.md §4.3's Filter+Weigh variant: a
// two-phase selection that prefers a tenant's already-bound pods before
// creating or moving a binding.
type FilterScheduler struct {
	Source                 Source
	Rand                    Rand
	TenantFilters           *FilterRegistry // registry including the Tenant filter, enabled
	NonTenantFilterPipeline *FilterPipeline // pipeline without the Tenant filter
	TenantFilterPipeline    *FilterPipeline // pipeline with the Tenant filter enabled
	Weigher                 *WeigherPipeline
	PodSubsetSize           int
	ShuffleBestSameWeighed  bool
}

func (s *FilterScheduler) SelectDestination(ctx context.Context, spec RequestSpec) (Result, error) {
	candidates, err := s.Source.Candidates(ctx)
	if err != nil {
		return Result{}, err
	}

	// Phase 1: bound. Tenant filter enabled; a hit here never touches
	// bindings.
	bound := s.TenantFilterPipeline.Apply(ctx, candidates, spec)
	if len(bound) > 0 {
		weighed := s.Weigher.Weigh(bound)
		chosen := s.pickFromSubset(weighed)
		return Result{Pod: chosen.Pod, PodName: chosen.Pod.PodName}, nil
	}

	// Phase 2: unbound. Tenant filter disabled; exclude pods the tenant
	// is already bound to elsewhere so we don't rechoose them.
	boundPods, err := s.Source.BoundPods(ctx, spec.ProjectID)
	if err != nil {
		return Result{}, err
	}
	unboundSpec := spec
	for _, c := range candidates {
		if boundPods[c.Pod.PodID] {
			unboundSpec = unboundSpec.WithIgnorePods(c.Pod.PodName)
		}
	}

	survivors := s.NonTenantFilterPipeline.Apply(ctx, candidates, unboundSpec)
	if len(survivors) == 0 {
		return Result{}, ErrNoPod
	}

	weighed := s.Weigher.Weigh(survivors)
	chosen := s.pickFromSubset(weighed)

	if err := s.Source.ChangeBinding(ctx, spec.ProjectID, chosen.Pod.AZName, chosen.Pod.PodID); err != nil {
		return Result{}, err
	}

	return Result{Pod: chosen.Pod, PodName: chosen.Pod.PodName, BindingTouched: true}, nil
}

// pickFromSubset implements the "top pod_subset_size, then uniform
// tie-break over the same-best-weight prefix" selection rule.
func (s *FilterScheduler) pickFromSubset(weighed []Weighed) Candidate {
	n := s.PodSubsetSize
	if n < 1 {
		n = 1
	}
	if n > len(weighed) {
		n = len(weighed)
	}
	subset := weighed[:n]

	if s.ShuffleBestSameWeighed && len(subset) > 1 {
		best := subset[0].Weight
		tieEnd := 1
		for tieEnd < len(subset) && subset[tieEnd].Weight == best {
			tieEnd++
		}
		if tieEnd > 1 {
			idx := s.Rand.Intn(tieEnd)
			return subset[idx].Candidate
		}
	}

	idx := s.Rand.Intn(len(subset))
	return subset[idx].Candidate
}

// DefaultRand returns a Rand backed by math/rand's package-level source,
// suitable for production use.
func DefaultRand() Rand {
	return defaultRand{}
}

type defaultRand struct{}

func (defaultRand) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	return rand.Intn(n)
}
