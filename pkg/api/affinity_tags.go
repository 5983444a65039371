// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/trio2o/trio2o/pkg/apierror"
	"github.com/trio2o/trio2o/pkg/pod"
)

const affinityTagEnvelope = "pod_affinity_tag"

// affinityTagHandler implements spec.md §6's admin-only pod affinity tag
// API: POST creates, GET/GET_ALL/DELETE act by affinity_tag_id.
type affinityTagHandler struct {
	catalog pod.Catalog
}

func (h *affinityTagHandler) create(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		apierror.WriteHTTP(w, apierror.New(apierror.InvalidInput, "reading request body: %v", err))
		return
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		apierror.WriteHTTP(w, apierror.New(apierror.InvalidInput, "malformed request body: %v", err))
		return
	}
	inner, ok := decoded[affinityTagEnvelope].(map[string]interface{})
	if !ok {
		apierror.WriteHTTP(w, apierror.New(apierror.InvalidInput, "missing %q element", affinityTagEnvelope))
		return
	}

	key, _ := inner["key"].(string)
	value, _ := inner["value"].(string)
	podID, _ := inner["pod_id"].(string)
	if key == "" || value == "" || podID == "" {
		apierror.WriteHTTP(w, apierror.New(apierror.InvalidInput, "key, value and pod_id are required"))
		return
	}

	tag, err := h.catalog.CreateAffinityTag(r.Context(), pod.AffinityTag{PodID: podID, Key: key, Value: value})
	if err != nil {
		apierror.WriteHTTP(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{affinityTagEnvelope: tagToWire(tag)})
}

func (h *affinityTagHandler) get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tags, err := h.catalog.ListAffinityTags(r.Context(), pod.AffinityTagFilter{AffinityTagID: id})
	if err != nil {
		apierror.WriteHTTP(w, err)
		return
	}
	if len(tags) == 0 {
		apierror.WriteHTTP(w, apierror.New(apierror.NotFound, "pod affinity tag %s not found", id))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{affinityTagEnvelope: tagToWire(tags[0])})
}

func (h *affinityTagHandler) list(w http.ResponseWriter, r *http.Request) {
	podID := r.URL.Query().Get("pod_id")
	tags, err := h.catalog.ListAffinityTags(r.Context(), pod.AffinityTagFilter{PodID: podID})
	if err != nil {
		apierror.WriteHTTP(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(tags))
	for _, t := range tags {
		out = append(out, tagToWire(t))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"pod_affinity_tags": out})
}

func (h *affinityTagHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tags, err := h.catalog.ListAffinityTags(r.Context(), pod.AffinityTagFilter{AffinityTagID: id})
	if err != nil {
		apierror.WriteHTTP(w, err)
		return
	}
	if len(tags) == 0 {
		apierror.WriteHTTP(w, apierror.New(apierror.NotFound, "pod affinity tag %s not found", id))
		return
	}

	if err := h.catalog.DeleteAffinityTag(r.Context(), id); err != nil {
		apierror.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func tagToWire(t pod.AffinityTag) map[string]interface{} {
	return map[string]interface{}{
		"affinity_tag_id": t.AffinityTagID,
		"pod_id":          t.PodID,
		"key":             t.Key,
		"value":           t.Value,
	}
}
