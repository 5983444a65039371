// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package job

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trio2o/trio2o/log"
)

func newTestCoordinator() *Coordinator {
	c := NewCoordinator(NewInMemory(), log.NewLogger())
	c.Sleep = func(time.Duration) {} // don't actually sleep in tests
	c.WorkerSleepTime = time.Millisecond
	c.JobRunExpire = 20 * time.Millisecond
	c.WorkerHandleTimeout = time.Second
	c.SetRedoRateLimit(time.Millisecond)
	return c
}

func TestJobMutexAtMostOneInvocation(t *testing.T) {
	c := newTestCoordinator()

	var invocations int32
	fn := func(ctx context.Context, resourceID string) error {
		atomic.AddInt32(&invocations, 1)
		time.Sleep(5 * time.Millisecond)
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Run(context.Background(), "reconcile", "vol-1", fn); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if invocations != 1 {
		t.Fatalf("expected exactly one handler invocation, got %d", invocations)
	}
}

func TestExpirySweepReclaimsStuckRunning(t *testing.T) {
	c := newTestCoordinator()
	ctx := context.Background()

	// Simulate a crashed worker: a Running row with no matching
	// Success/Fail, older than JobRunExpire.
	store := c.Store.(*inmemStore)
	store.Register(ctx, "reconcile", "vol-1", "crashed-worker")
	time.Sleep(30 * time.Millisecond)

	var invoked bool
	err := c.Run(ctx, "reconcile", "vol-1", func(ctx context.Context, resourceID string) error {
		invoked = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !invoked {
		t.Fatal("expected run to reclaim the expired Running row and invoke the handler")
	}
}

func TestRedoFailedJobsPicksEligibleFailures(t *testing.T) {
	c := newTestCoordinator()
	ctx := context.Background()

	failingOnce := true
	c.RegisterHandler("reconcile", func(ctx context.Context, resourceID string) error {
		if failingOnce {
			failingOnce = false
			return context.DeadlineExceeded
		}
		return nil
	})

	if err := c.Run(ctx, "reconcile", "vol-1", c.handlers["reconcile"]); err != nil {
		t.Fatal(err)
	}

	rows, _ := c.Store.LatestByResource(ctx)
	if len(rows) != 1 || rows[0].Status != Fail {
		t.Fatalf("expected a Fail row after failing handler, got %v", rows)
	}

	if err := c.RedoFailedJobs(ctx); err != nil {
		t.Fatal(err)
	}

	rows, _ = c.Store.LatestByResource(ctx)
	if len(rows) != 1 || rows[0].Status != Success {
		t.Fatalf("expected redo to succeed and leave a Success row, got %v", rows)
	}
}
