// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package pod

import (
	"context"
	"testing"
	"time"
)

func TestCreatePodRejectsDuplicateTop(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory()

	if err := c.CreatePod(ctx, Pod{PodID: "top", PodName: "top", AZName: "", CreateTime: time.Now()}); err != nil {
		t.Fatal(err)
	}
	err := c.CreatePod(ctx, Pod{PodID: "top2", PodName: "top2", AZName: "", CreateTime: time.Now()})
	if err == nil {
		t.Fatal("expected error creating a second top pod")
	}
}

func TestChangeBindingSwitchesWithinAZ(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory()

	for _, p := range []Pod{
		{PodID: "p1", PodName: "p1", AZName: "az-a"},
		{PodID: "p2", PodName: "p2", AZName: "az-a"},
	} {
		if err := c.CreatePod(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	if err := c.ChangeBinding(ctx, "tenant-x", "az-a", "p1"); err != nil {
		t.Fatal(err)
	}
	if err := c.ChangeBinding(ctx, "tenant-x", "az-a", "p2"); err != nil {
		t.Fatal(err)
	}

	rows, err := c.(Bindings).ListBindingsForTenant(ctx, "tenant-x")
	if err != nil {
		t.Fatal(err)
	}

	active := 0
	for _, b := range rows {
		if b.IsBinding {
			active++
			if b.PodID != "p2" {
				t.Fatalf("expected p2 active, got %s", b.PodID)
			}
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active binding per az, got %d", active)
	}
}

func TestAffinityTagRequiresFields(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory()
	c.CreatePod(ctx, Pod{PodID: "p1", PodName: "p1", AZName: "az-a"})

	if _, err := c.CreateAffinityTag(ctx, AffinityTag{PodID: "p1", Key: "", Value: "v"}); err == nil {
		t.Fatal("expected error for missing key")
	}
	tag, err := c.CreateAffinityTag(ctx, AffinityTag{PodID: "p1", Key: "rack", Value: "42"})
	if err != nil {
		t.Fatal(err)
	}
	if tag.AffinityTagID == "" {
		t.Fatal("expected generated affinity_tag_id")
	}
	if err := c.DeleteAffinityTag(ctx, tag.AffinityTagID); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteAffinityTag(ctx, tag.AffinityTagID); err == nil {
		t.Fatal("expected not-found deleting twice")
	}
}

func TestListPodsByTenant(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory()
	c.CreatePod(ctx, Pod{PodID: "p1", PodName: "p1", AZName: "az-a"})
	c.CreatePod(ctx, Pod{PodID: "p2", PodName: "p2", AZName: "az-b"})
	c.ChangeBinding(ctx, "tenant-x", "az-a", "p1")

	pods, err := c.ListPodsByTenant(ctx, "tenant-x")
	if err != nil {
		t.Fatal(err)
	}
	if len(pods) != 1 || pods[0].PodID != "p1" {
		t.Fatalf("expected only p1, got %v", pods)
	}
}
