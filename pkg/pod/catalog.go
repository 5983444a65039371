// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package pod

import "context"

// Catalog is the PodCatalog contract: read APIs for pod/state/tag/binding
// lookup, write APIs for provisioning and binding changes. Delete of a pod
// referenced by live routings is the caller's responsibility to forbid —
// Catalog itself only tracks pods, not routings.
type Catalog interface {
	ListPods(ctx context.Context) ([]Pod, error)
	GetByID(ctx context.Context, podID string) (Pod, bool, error)
	GetByName(ctx context.Context, podName string) (Pod, bool, error)
	// ListPodsByTenant returns the pods in AZs the tenant is bound to.
	ListPodsByTenant(ctx context.Context, tenantID string) ([]Pod, error)
	ListAffinityTags(ctx context.Context, filter AffinityTagFilter) ([]AffinityTag, error)
	GetState(ctx context.Context, podID string) (State, bool, error)

	CreatePod(ctx context.Context, p Pod) error
	CreateAffinityTag(ctx context.Context, tag AffinityTag) (AffinityTag, error)
	DeleteAffinityTag(ctx context.Context, affinityTagID string) error
	CreateBinding(ctx context.Context, b Binding) error
	// ChangeBinding atomically deactivates any existing active binding for
	// tenantID within azName and activates podID, per the Scheduler's
	// unbound-phase binding policy.
	ChangeBinding(ctx context.Context, tenantID, azName, podID string) error
	// UpdateState is an insert-if-absent/update-one upsert, transactional
	// so concurrent refreshes never duplicate a pod's row.
	UpdateState(ctx context.Context, s State) error
}

// Bindings exposes the binding rows directly, a narrower read surface the
// Scheduler's bound-phase tenant filter needs without pulling in the whole
// Catalog interface.
type Bindings interface {
	ListBindingsForTenant(ctx context.Context, tenantID string) ([]Binding, error)
}
