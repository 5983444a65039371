// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package scheduler

import "github.com/trio2o/trio2o/pkg/pod"

// Candidate bundles a Pod with the per-pod facts filters and weighers
// need: its resource State and its affinity tags already collapsed into a
// map (last write wins for duplicate keys, per spec.md §3's PodAffinityTag
// note).
type Candidate struct {
	Pod   pod.Pod
	State pod.State
	Tags  map[string]string
}

// AffinityTagsAsMap collapses a tag slice into the map Candidate.Tags
// expects.
func AffinityTagsAsMap(tags []pod.AffinityTag) map[string]string {
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		out[t.Key] = t.Value
	}
	return out
}
