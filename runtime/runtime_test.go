// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package runtime

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestNewRuntimeDefaultsToChanceSchedulerWhenConfigured(t *testing.T) {
	rt, err := NewRuntime(context.Background(), Params{ID: "gw-1"}, []byte(`scheduler: {driver: chance_scheduler}`))
	if err != nil {
		t.Fatal(err)
	}
	if rt.Catalog == nil || rt.Routing == nil || rt.Jobs == nil {
		t.Fatal("expected stores and job coordinator to be wired")
	}
}

func TestNewRuntimeBuildsFilterScheduler(t *testing.T) {
	rt, err := NewRuntime(context.Background(), Params{ID: "gw-1"}, []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if rt.server == nil {
		t.Fatal("expected HTTP server to be wired")
	}
}

func TestStartServerServesHealthzAndShutsDownOnCancel(t *testing.T) {
	rt, err := NewRuntime(context.Background(), Params{ID: "gw-1", Addr: "127.0.0.1:0"}, []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}

	ln := mustFreePort(t)
	rt.Params.Addr = ln

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.StartServer(ctx) }()

	time.Sleep(50 * time.Millisecond)
	resp, err := http.Get("http://" + ln + "/healthz")
	if err != nil {
		t.Fatalf("expected healthz to be reachable, got %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for graceful shutdown")
	}
}

func TestStartWorkerStopsOnCancel(t *testing.T) {
	rt, err := NewRuntime(context.Background(), Params{ID: "gw-1"}, []byte(`worker: {worker_sleep_time: 0.01}`))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.StartWorker(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker to stop")
	}
}

func mustFreePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}
