// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package scheduler

import (
	"context"
	"fmt"

	"github.com/trio2o/trio2o/pkg/apierror"
)

// Filter is a pure predicate over one candidate and one spec.
type Filter interface {
	Name() string
	Passes(ctx context.Context, c Candidate, spec RequestSpec) bool
}

// FilterRegistry is a name-indexed set of available filters. An
// enabled-filter name absent from the registry is a hard configuration
// error at startup (spec.md §4.1's Extension clause).
type FilterRegistry struct {
	byName map[string]Filter
}

// NewFilterRegistry returns a FilterRegistry seeded with filters.
func NewFilterRegistry(filters ...Filter) *FilterRegistry {
	r := &FilterRegistry{byName: map[string]Filter{}}
	for _, f := range filters {
		r.byName[f.Name()] = f
	}
	return r
}

// Pipeline builds a FilterPipeline from names, in order. Every name must
// be registered, else it returns SchedulerPodFilterNotFound — fatal at
// startup per spec.md §7.
func (r *FilterRegistry) Pipeline(names []string) (*FilterPipeline, error) {
	fs := make([]Filter, 0, len(names))
	for _, name := range names {
		f, ok := r.byName[name]
		if !ok {
			return nil, apierror.New(apierror.SchedulerPodFilterNotFound, "unknown filter %q", name)
		}
		fs = append(fs, f)
	}
	return &FilterPipeline{filters: fs}, nil
}

// FilterPipeline narrows a candidate set against a RequestSpec by applying
// each filter in order, short-circuiting per-candidate on first failure.
type FilterPipeline struct {
	filters []Filter
}

// Apply returns the candidates that pass every filter in the pipeline. An
// empty result is valid: the scheduler then returns no pod.
func (p *FilterPipeline) Apply(ctx context.Context, candidates []Candidate, spec RequestSpec) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		ok := true
		for _, f := range p.filters {
			if !f.Passes(ctx, c, spec) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, c)
		}
	}
	return out
}

// String renders the configured filter names, for logging.
func (p *FilterPipeline) String() string {
	names := make([]string, len(p.filters))
	for i, f := range p.filters {
		names[i] = f.Name()
	}
	return fmt.Sprintf("%v", names)
}
