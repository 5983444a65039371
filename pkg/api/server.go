// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package api implements the REST surface spec.md §6 describes as "thin
// handlers": a mux.Router wiring create/read/update/delete/list per
// resource type to the Scheduler, Forwarder and RoutingStore, plus the
// admin-only pod affinity tag CRUD, grounded on the teacher's
// server/server.go route table and server/writer response helpers.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trio2o/trio2o/log"
	"github.com/trio2o/trio2o/metrics"
	"github.com/trio2o/trio2o/pkg/forward"
	"github.com/trio2o/trio2o/pkg/job"
	"github.com/trio2o/trio2o/pkg/pod"
	"github.com/trio2o/trio2o/pkg/routing"
	"github.com/trio2o/trio2o/pkg/scheduler"
)

// Server wires the gateway's core components to an HTTP router. It holds
// no request-scoped state; every field is safe to share across concurrent
// requests.
type Server struct {
	Catalog    pod.Catalog
	Routing    routing.Store
	Scheduler  scheduler.Scheduler
	Forwarder  *forward.Forwarder
	Jobs       *job.Coordinator
	Metrics    metrics.Metrics
	Logger     log.Logger
	TopPodName string

	router *mux.Router
}

// New builds a Server with routes registered for each of resourceTypes and
// returns it ready to serve.
func New(s *Server, resourceTypes []ResourceType) *Server {
	if s.Metrics == nil {
		s.Metrics = metrics.New()
	}

	r := mux.NewRouter()
	r.UseEncodedPath()

	for _, rt := range resourceTypes {
		h := &resourceHandler{server: s, resourceType: rt}
		prefix := "/v1/{project_id}/" + rt.PathName
		r.Handle(prefix, s.instrument(h.create, rt.PathName+"_create")).Methods(http.MethodPost)
		r.Handle(prefix, s.instrument(h.list, rt.PathName+"_list")).Methods(http.MethodGet)
		r.Handle(prefix+"/{id}", s.instrument(h.read, rt.PathName+"_read")).Methods(http.MethodGet)
		r.Handle(prefix+"/{id}", s.instrument(h.update, rt.PathName+"_update")).Methods(http.MethodPut)
		r.Handle(prefix+"/{id}", s.instrument(h.delete, rt.PathName+"_delete")).Methods(http.MethodDelete)
	}

	tagHandler := &affinityTagHandler{catalog: s.Catalog}
	r.Handle("/v1/pod_affinity_tags", s.instrument(tagHandler.create, "affinity_tag_create")).Methods(http.MethodPost)
	r.Handle("/v1/pod_affinity_tags", s.instrument(tagHandler.list, "affinity_tag_list")).Methods(http.MethodGet)
	r.Handle("/v1/pod_affinity_tags/{id}", s.instrument(tagHandler.get, "affinity_tag_get")).Methods(http.MethodGet)
	r.Handle("/v1/pod_affinity_tags/{id}", s.instrument(tagHandler.delete, "affinity_tag_delete")).Methods(http.MethodDelete)

	r.Handle("/healthz", http.HandlerFunc(s.health)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GlobalMetricsRegistry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// instrument wraps handler with a timer recorded against name, the
// gateway's equivalent of the teacher's Server.instrumentHandler.
func (s *Server) instrument(handler http.HandlerFunc, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := s.Metrics.Timer(name)
		t.Start()
		defer t.Stop()
		handler(w, r)
	})
}
