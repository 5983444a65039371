// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package scheduler

import "sort"

// Weigher scores a candidate; WeigherPipeline min-max normalizes the raw
// scores across candidates before applying WeightMultiplier.
type Weigher interface {
	Name() string
	WeighObject(c Candidate) float64
	WeightMultiplier() float64
}

// Weighed pairs a candidate with its final combined weight.
type Weighed struct {
	Candidate Candidate
	Weight    float64
}

// WeigherPipeline scores and sorts candidates descending by combined
// weight.
type WeigherPipeline struct {
	weighers []Weigher
}

// NewWeigherPipeline builds a pipeline from the given weighers, applied in
// the order given (order does not affect the result since contributions
// are summed).
func NewWeigherPipeline(weighers ...Weigher) *WeigherPipeline {
	return &WeigherPipeline{weighers: weighers}
}

// Weigh scores candidates and returns them sorted descending by final
// weight. An empty input returns an empty result.
func (p *WeigherPipeline) Weigh(candidates []Candidate) []Weighed {
	if len(candidates) == 0 {
		return nil
	}

	totals := make([]float64, len(candidates))
	for _, w := range p.weighers {
		raw := make([]float64, len(candidates))
		for i, c := range candidates {
			raw[i] = w.WeighObject(c)
		}
		normalized := minMaxNormalize(raw)
		mult := w.WeightMultiplier()
		for i := range normalized {
			totals[i] += normalized[i] * mult
		}
	}

	out := make([]Weighed, len(candidates))
	for i, c := range candidates {
		out[i] = Weighed{Candidate: c, Weight: totals[i]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out
}

// minMaxNormalize scales raw to [0,1]. A degenerate range (min == max, the
// all-equal case including a single element) normalizes every element to
// 0.0, so a constant score vector contributes exactly 0 to every
// candidate regardless of the weigher's multiplier.
func minMaxNormalize(raw []float64) []float64 {
	out := make([]float64, len(raw))
	if len(raw) == 0 {
		return out
	}
	min, max := raw[0], raw[0]
	for _, v := range raw[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max == min {
		return out // all zero
	}
	for i, v := range raw {
		out[i] = (v - min) / (max - min)
	}
	return out
}
