// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/trio2o/trio2o/log"
	"github.com/trio2o/trio2o/pkg/forward"
	"github.com/trio2o/trio2o/pkg/pod"
	"github.com/trio2o/trio2o/pkg/routing"
	"github.com/trio2o/trio2o/pkg/scheduler"
)

type stubScheduler struct {
	result scheduler.Result
	err    error
}

func (s stubScheduler) SelectDestination(context.Context, scheduler.RequestSpec) (scheduler.Result, error) {
	return s.result, s.err
}

type staticEndpoint struct{ url string }

func (s staticEndpoint) Endpoint(context.Context, string, string) (string, error) {
	return s.url, nil
}

var serverResourceType = ResourceType{PathName: "servers", Name: "server", ServiceType: "compute"}

func newTestServer(t *testing.T, downstream *httptest.Server, sched scheduler.Scheduler) (*Server, pod.Catalog) {
	t.Helper()
	catalog := pod.NewInMemory()
	if err := catalog.CreatePod(context.Background(), pod.Pod{PodID: "p1", PodName: "p1", AZName: "az1"}); err != nil {
		t.Fatal(err)
	}

	fwd := forward.NewForwarder(downstream.Client(), staticEndpoint{url: downstream.URL}, false, log.NewLogger())

	s := New(&Server{
		Catalog:   catalog,
		Routing:   routing.NewInMemory(),
		Scheduler: sched,
		Forwarder: fwd,
		Logger:    log.NewLogger(),
	}, []ResourceType{serverResourceType})

	return s, catalog
}

func TestCreateResourceCompletesRouting(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"srv-1","name":"vm1"}`))
	}))
	defer downstream.Close()

	s, _ := newTestServer(t, downstream, stubScheduler{result: scheduler.Result{Pod: pod.Pod{PodID: "p1", PodName: "p1", AZName: "az1"}}})

	req := httptest.NewRequest(http.MethodPost, "/v1/proj1/servers", strings.NewReader(`{"name":"vm1"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rows, err := s.Routing.LookupBottoms(context.Background(), "srv-1", "server")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].PodID != "p1" {
		t.Fatalf("expected routing row recorded for srv-1, got %v", rows)
	}
}

func TestReadResourceCleansUpOn404(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer downstream.Close()

	s, _ := newTestServer(t, downstream, stubScheduler{})
	if _, err := s.Routing.Complete(context.Background(), "srv-1", "server", "srv-1", "p1", "proj1"); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/proj1/servers/srv-1", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rows, _ := s.Routing.LookupBottoms(context.Background(), "srv-1", "server")
	if len(rows) != 0 {
		t.Fatalf("expected stale routing row deleted, got %v", rows)
	}
}

func TestDeleteResourcePreservesRoutingRow(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer downstream.Close()

	s, _ := newTestServer(t, downstream, stubScheduler{})
	if _, err := s.Routing.Complete(context.Background(), "srv-1", "server", "srv-1", "p1", "proj1"); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/v1/proj1/servers/srv-1", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 passthrough, got %d", rec.Code)
	}
	rows, _ := s.Routing.LookupBottoms(context.Background(), "srv-1", "server")
	if len(rows) != 1 {
		t.Fatalf("expected routing row preserved after async delete, got %v", rows)
	}
}

func TestListResourceAnnotatesAZAndDropsUnrouted(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"servers":[{"id":"srv-1"},{"id":"srv-unrouted"}]}`))
	}))
	defer downstream.Close()

	s, catalog := newTestServer(t, downstream, stubScheduler{})
	if err := catalog.CreateBinding(context.Background(), pod.Binding{TenantID: "proj1", PodID: "p1", IsBinding: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Routing.Complete(context.Background(), "srv-1", "server", "srv-1", "p1", "proj1"); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/proj1/servers", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var decoded struct {
		Servers []map[string]interface{} `json:"servers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded.Servers) != 1 {
		t.Fatalf("expected exactly the routed server, got %v", decoded.Servers)
	}
	if decoded.Servers[0]["az_name"] != "az1" {
		t.Fatalf("expected az_name annotation, got %v", decoded.Servers[0])
	}
}

func TestAffinityTagCreateRequiresFields(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer downstream.Close()
	s, _ := newTestServer(t, downstream, stubScheduler{})

	req := httptest.NewRequest(http.MethodPost, "/v1/pod_affinity_tags", strings.NewReader(`{"pod_affinity_tag":{"key":"","value":"v","pod_id":"p1"}}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty key, got %d", rec.Code)
	}
}

func TestAffinityTagCreateMissingEnvelope(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer downstream.Close()
	s, _ := newTestServer(t, downstream, stubScheduler{})

	req := httptest.NewRequest(http.MethodPost, "/v1/pod_affinity_tags", strings.NewReader(`{"key":"k","value":"v","pod_id":"p1"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing pod_affinity_tag element, got %d", rec.Code)
	}
}

func TestAffinityTagCreateGetDelete(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer downstream.Close()
	s, _ := newTestServer(t, downstream, stubScheduler{})

	req := httptest.NewRequest(http.MethodPost, "/v1/pod_affinity_tags", strings.NewReader(`{"pod_affinity_tag":{"key":"rack","value":"r1","pod_id":"p1"}}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var created struct {
		Tag map[string]interface{} `json:"pod_affinity_tag"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	id, _ := created.Tag["affinity_tag_id"].(string)
	if id == "" {
		t.Fatal("expected a generated affinity_tag_id")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/v1/pod_affinity_tags/"+id, nil)
	getRec := httptest.NewRecorder()
	s.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", getRec.Code)
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/v1/pod_affinity_tags/"+id, nil)
	delRec := httptest.NewRecorder()
	s.ServeHTTP(delRec, delReq)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on delete, got %d", delRec.Code)
	}

	getAgain := httptest.NewRecorder()
	s.ServeHTTP(getAgain, httptest.NewRequest(http.MethodGet, "/v1/pod_affinity_tags/"+id, nil))
	if getAgain.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", getAgain.Code)
	}
}
