// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/trio2o/trio2o/pkg/apierror"
	"github.com/trio2o/trio2o/pkg/forward"
	"github.com/trio2o/trio2o/pkg/pod"
	"github.com/trio2o/trio2o/pkg/routing"
	"github.com/trio2o/trio2o/pkg/scheduler"
)

// ResourceType configures the generic create/read/update/delete/list
// handler for one downstream resource kind (servers, volumes, networks...).
// Envelope, when non-empty, is the single top-level JSON key OpenStack-style
// APIs wrap a resource body in ("server", "volume"); empty means the
// request/response body is the resource itself.
type ResourceType struct {
	PathName    string // URL path segment, e.g. "servers"
	Name        string // RoutingStore resource_type, e.g. "server"
	ServiceType string // passed to Forwarder, e.g. "compute"
	Envelope    string
}

func (rt ResourceType) unwrap(body []byte) (map[string]interface{}, error) {
	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, apierror.New(apierror.InvalidInput, "malformed request body: %v", err)
	}
	if rt.Envelope == "" {
		return decoded, nil
	}
	inner, ok := decoded[rt.Envelope]
	if !ok {
		return nil, apierror.New(apierror.InvalidInput, "missing %q element", rt.Envelope)
	}
	m, ok := inner.(map[string]interface{})
	if !ok {
		return nil, apierror.New(apierror.InvalidInput, "%q must be an object", rt.Envelope)
	}
	return m, nil
}

type resourceHandler struct {
	server       *Server
	resourceType ResourceType
}

func intFromBody(body map[string]interface{}, key string) int {
	if v, ok := body[key].(float64); ok {
		return int(v)
	}
	return 0
}

func int64FromBody(body map[string]interface{}, key string) int64 {
	if v, ok := body[key].(float64); ok {
		return int64(v)
	}
	return 0
}

func specFromBody(projectID string, body map[string]interface{}) scheduler.RequestSpec {
	spec := scheduler.RequestSpec{
		ProjectID: projectID,
		VCPUs:     intFromBody(body, "vcpus"),
		MemoryMB:  int64FromBody(body, "memory_mb"),
		DiskGB:    int64FromBody(body, "disk_gb"),
	}
	if az, ok := body["availability_zone"].(string); ok {
		spec.AZName = az
	}
	if meta, ok := body["metadata"].(map[string]interface{}); ok {
		tags := make(map[string]string, len(meta))
		for k, v := range meta {
			if s, ok := v.(string); ok {
				tags[k] = s
			}
		}
		spec.AffinityTags = tags
	}
	return spec
}

// create implements spec.md §6's create-resource contract: Scheduler picks
// a pod, Forwarder provisions there, and on a 2xx response RoutingStore
// records the top_id/bottom_id mapping (both equal to the resource's id,
// per the single-gateway-assigns-ids model this surface uses).
func (h *resourceHandler) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := mux.Vars(r)["project_id"]
	rt := h.resourceType

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		apierror.WriteHTTP(w, apierror.New(apierror.InvalidInput, "reading request body: %v", err))
		return
	}
	decoded, err := rt.unwrap(raw)
	if err != nil {
		apierror.WriteHTTP(w, err)
		return
	}

	result, err := h.server.Scheduler.SelectDestination(ctx, specFromBody(projectID, decoded))
	if err != nil {
		apierror.WriteHTTP(w, err)
		return
	}

	status, respBody, err := h.server.Forwarder.Do(ctx, result.Pod, rt.ServiceType, http.MethodPost, rt.PathName, r.Header, raw)
	if err != nil {
		apierror.WriteHTTP(w, err)
		return
	}
	if status < 200 || status >= 300 {
		proxyThrough(w, status, respBody)
		return
	}

	id, err := extractID(respBody, rt.Envelope)
	if err == nil && id != "" {
		if _, err := h.server.Routing.Complete(ctx, id, rt.Name, id, result.Pod.PodID, projectID); err != nil {
			apierror.WriteHTTP(w, err)
			return
		}
	}

	proxyThrough(w, status, respBody)
}

// read implements spec.md §6's read contract: resolve top_id to a bottom
// pod+id via RoutingStore, forward the GET, and on a 404 response clean up
// the now-stale routing row before surfacing NotFound.
func (h *resourceHandler) read(w http.ResponseWriter, r *http.Request) {
	h.proxyExisting(w, r, http.MethodGet, true)
}

// update implements spec.md §6's update contract, identical cleanup-on-404
// policy as read.
func (h *resourceHandler) update(w http.ResponseWriter, r *http.Request) {
	h.proxyExisting(w, r, http.MethodPut, true)
}

// delete implements spec.md §6's delete contract: DELETE is async and the
// routing row is preserved regardless of the downstream response, since the
// actual teardown may complete well after this call returns.
func (h *resourceHandler) delete(w http.ResponseWriter, r *http.Request) {
	h.proxyExisting(w, r, http.MethodDelete, false)
}

func (h *resourceHandler) proxyExisting(w http.ResponseWriter, r *http.Request, method string, cleanupOn404 bool) {
	ctx := r.Context()
	topID := mux.Vars(r)["id"]
	rt := h.resourceType

	rows, err := h.server.Routing.LookupBottoms(ctx, topID, rt.Name)
	if err != nil {
		apierror.WriteHTTP(w, err)
		return
	}
	if len(rows) == 0 {
		apierror.WriteHTTP(w, apierror.New(apierror.NotFound, "%s %s not found", rt.Name, topID))
		return
	}
	row := rows[0]

	p, ok, err := h.server.Catalog.GetByID(ctx, row.PodID)
	if err != nil {
		apierror.WriteHTTP(w, err)
		return
	}
	if !ok {
		apierror.WriteHTTP(w, apierror.New(apierror.PodNotFound, "pod %s not found for %s", row.PodID, topID))
		return
	}

	var body []byte
	if method != http.MethodGet && method != http.MethodDelete {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			apierror.WriteHTTP(w, apierror.New(apierror.InvalidInput, "reading request body: %v", err))
			return
		}
		body = b
	}

	status, respBody, err := h.server.Forwarder.Do(ctx, p, rt.ServiceType, method, rt.PathName+"/"+row.BottomID, r.Header, body)
	if err != nil {
		apierror.WriteHTTP(w, err)
		return
	}

	if cleanupOn404 && status == http.StatusNotFound {
		_ = h.server.Routing.Delete(ctx, routing.Filter{TopID: topID, ResourceType: rt.Name})
		apierror.WriteHTTP(w, apierror.New(apierror.NotFound, "%s %s not found", rt.Name, topID))
		return
	}

	proxyThrough(w, status, respBody)
}

// list implements spec.md §6's cross-pod tenant list: iterate the pods in
// the AZs the tenant is bound in, forward a GET to each, and keep only items RoutingStore
// confirms were provisioned through this gateway, annotated with az_name.
func (h *resourceHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := mux.Vars(r)["project_id"]
	rt := h.resourceType

	pods, err := h.server.Catalog.ListPodsByTenant(ctx, projectID)
	if err != nil {
		apierror.WriteHTTP(w, err)
		return
	}

	items := make([]map[string]interface{}, 0)
	for _, p := range pods {
		items = append(items, h.listOnePod(ctx, p, projectID)...)
	}

	_ = json.NewEncoder(w).Encode(map[string]interface{}{rt.PathName: items})
}

func (h *resourceHandler) listOnePod(ctx context.Context, p pod.Pod, projectID string) []map[string]interface{} {
	rt := h.resourceType

	status, respBody, err := h.server.Forwarder.Do(ctx, p, rt.ServiceType, http.MethodGet, rt.PathName, nil, nil)
	if err != nil || status < 200 || status >= 300 {
		return nil
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil
	}
	raw, ok := decoded[rt.PathName].([]interface{})
	if !ok {
		return nil
	}
	items := make([]map[string]interface{}, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(map[string]interface{}); ok {
			items = append(items, m)
		}
	}

	routed, err := h.server.Routing.LookupByTenantPod(ctx, projectID, p.PodID, rt.Name)
	if err != nil {
		return nil
	}

	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		id, _ := item["id"].(string)
		if _, ok := routed[id]; !ok {
			continue // never provisioned through the gateway
		}
		out = append(out, forward.AnnotateAZ(item, p.AZName))
	}
	return out
}

func extractID(body []byte, envelope string) (string, error) {
	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", err
	}
	target := decoded
	if envelope != "" {
		inner, ok := decoded[envelope].(map[string]interface{})
		if !ok {
			return "", nil
		}
		target = inner
	}
	id, _ := target["id"].(string)
	return id, nil
}

func proxyThrough(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status == http.StatusNoContent {
		return
	}
	_, _ = w.Write(body)
}
