// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package sql

import (
	"context"
	"testing"
	"time"

	"github.com/trio2o/trio2o/pkg/job"
	"github.com/trio2o/trio2o/pkg/pod"
	"github.com/trio2o/trio2o/pkg/routing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(DriverSQLite, "file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(db); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestPodStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewPodStore(newTestDB(t))

	if err := store.CreatePod(ctx, pod.Pod{PodID: "p1", PodName: "p1", AZName: "az1", CreateTime: time.Now()}); err != nil {
		t.Fatal(err)
	}

	got, ok, err := store.GetByID(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || got.PodName != "p1" {
		t.Fatalf("expected pod p1, got %+v ok=%v", got, ok)
	}

	if err := store.CreatePod(ctx, pod.Pod{PodID: "p1", PodName: "dup", AZName: "az2"}); err == nil {
		t.Fatal("expected conflict creating duplicate pod_id")
	}
}

func TestPodStoreChangeBindingSwitchesWithinAZ(t *testing.T) {
	ctx := context.Background()
	store := NewPodStore(newTestDB(t))

	if err := store.CreatePod(ctx, pod.Pod{PodID: "p1", PodName: "p1", AZName: "az1"}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreatePod(ctx, pod.Pod{PodID: "p2", PodName: "p2", AZName: "az1"}); err != nil {
		t.Fatal(err)
	}

	if err := store.ChangeBinding(ctx, "tenant1", "az1", "p1"); err != nil {
		t.Fatal(err)
	}
	if err := store.ChangeBinding(ctx, "tenant1", "az1", "p2"); err != nil {
		t.Fatal(err)
	}

	bindings, err := store.ListBindingsForTenant(ctx, "tenant1")
	if err != nil {
		t.Fatal(err)
	}
	active := 0
	for _, b := range bindings {
		if b.IsBinding {
			active++
			if b.PodID != "p2" {
				t.Fatalf("expected p2 active, got %s", b.PodID)
			}
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active binding, got %d", active)
	}
}

func TestRoutingStoreReserveCompleteLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewRoutingStore(newTestDB(t))

	row, status, err := store.Reserve(ctx, "top-1", "server", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if status != routing.Reserved {
		t.Fatalf("expected Reserved, got %v", status)
	}
	if row.BottomID != "" {
		t.Fatalf("expected empty bottom_id on reservation, got %q", row.BottomID)
	}

	if _, status, err := store.Reserve(ctx, "top-1", "server", time.Minute); err != nil || status != routing.NoneDone {
		t.Fatalf("expected NoneDone for live reservation, got %v err=%v", status, err)
	}

	if _, err := store.Complete(ctx, "top-1", "server", "bottom-1", "p1", "proj1"); err != nil {
		t.Fatal(err)
	}

	if _, status, err := store.Reserve(ctx, "top-1", "server", time.Minute); err != nil || status != routing.ResDone {
		t.Fatalf("expected ResDone after completion, got %v err=%v", status, err)
	}

	rows, err := store.LookupBottoms(ctx, "top-1", "server")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].BottomID != "bottom-1" {
		t.Fatalf("expected completed row, got %v", rows)
	}
}

func TestRoutingStoreExpiredReservationReclaimed(t *testing.T) {
	ctx := context.Background()
	store := NewRoutingStore(newTestDB(t))

	if _, status, err := store.Reserve(ctx, "top-1", "server", time.Millisecond); err != nil || status != routing.Reserved {
		t.Fatalf("expected initial Reserved, got %v err=%v", status, err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, status, err := store.Reserve(ctx, "top-1", "server", time.Millisecond); err != nil || status != routing.Reserved {
		t.Fatalf("expected expired reservation reclaimed as Reserved, got %v err=%v", status, err)
	}
}

func TestJobStoreRegisterMutualExclusion(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(newTestDB(t))

	if _, err := store.InsertNew(ctx, "reconcile", "vol-1"); err != nil {
		t.Fatal(err)
	}

	_, ok, _, err := store.Register(ctx, "reconcile", "vol-1", "worker-a")
	if err != nil || !ok {
		t.Fatalf("expected first Register to succeed, ok=%v err=%v", ok, err)
	}

	_, ok, existing, err := store.Register(ctx, "reconcile", "vol-1", "worker-b")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected second concurrent Register to fail")
	}
	if existing.ExtraID != "worker-a" {
		t.Fatalf("expected existing row to belong to worker-a, got %q", existing.ExtraID)
	}

	if err := store.MarkSuccess(ctx, "reconcile", "vol-1", "worker-a", time.Now()); err != nil {
		t.Fatal(err)
	}

	rows, err := store.LatestByResource(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Status != job.Success {
		t.Fatalf("expected single Success row, got %v", rows)
	}
}
