// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package forward

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trio2o/trio2o/log"
	"github.com/trio2o/trio2o/pkg/pod"
)

type staticEndpoints struct {
	url string
	n   int
}

func (s *staticEndpoints) Endpoint(_ context.Context, podID, serviceType string) (string, error) {
	s.n++
	return s.url, nil
}

func TestDoRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := NewForwarder(srv.Client(), &staticEndpoints{url: srv.URL}, false, log.NewLogger())

	status, body, err := f.Do(context.Background(), pod.Pod{PodID: "p1"}, "compute", http.MethodGet, "servers/1", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestDoCachesEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	endpoints := &staticEndpoints{url: srv.URL}
	f := NewForwarder(srv.Client(), endpoints, false, log.NewLogger())

	for i := 0; i < 3; i++ {
		if _, _, err := f.Do(context.Background(), pod.Pod{PodID: "p1"}, "compute", http.MethodGet, "servers", nil, nil); err != nil {
			t.Fatal(err)
		}
	}
	if endpoints.n != 1 {
		t.Fatalf("expected endpoint resolved once and cached, got %d resolutions", endpoints.n)
	}
}

func TestDoRetriesOnceAfterRefresh(t *testing.T) {
	endpoints := &staticEndpoints{url: "http://127.0.0.1:1"}
	f := NewForwarder(http.DefaultClient, endpoints, true, log.NewLogger())

	_, _, err := f.Do(context.Background(), pod.Pod{PodID: "p1"}, "compute", http.MethodGet, "servers", nil, nil)
	if err == nil {
		t.Fatal("expected error dialing a closed port even after retry")
	}
	if endpoints.n != 2 {
		t.Fatalf("expected endpoint resolved twice (initial + one refresh), got %d resolutions", endpoints.n)
	}
}

func TestGetJSONNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewForwarder(srv.Client(), &staticEndpoints{url: srv.URL}, false, log.NewLogger())

	var out map[string]interface{}
	err := f.GetJSON(context.Background(), pod.Pod{PodID: "p1"}, "servers/1", &out)
	if err == nil {
		t.Fatal("expected NotFound error")
	}
}
