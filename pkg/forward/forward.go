// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package forward implements the Forwarder: the request-forwarding
// contract every per-resource API handler uses to reach a chosen pod,
// grounded on the teacher's plugins/rest REST client (endpoint resolution,
// HTTP execution, response handling) generalized from "call the control
// plane" to "call whichever pod the Scheduler picked".
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/trio2o/trio2o/log"
	"github.com/trio2o/trio2o/pkg/apierror"
	"github.com/trio2o/trio2o/pkg/pod"
)

// EndpointCatalog resolves a pod's base URL for a service_type. Forwarder
// caches the resolved values itself and drops a cached value when a
// connection attempt to it fails.
type EndpointCatalog interface {
	Endpoint(ctx context.Context, podID, serviceType string) (string, error)
}

// VersionConverter adapts a request/response pair for version
// compatibility between the gateway's API version and a pod's. A nil
// Converters map means no conversion is configured, and Forwarder passes
// bodies through unchanged.
type VersionConverter interface {
	ConvertRequest(headers http.Header, body []byte) ([]byte, error)
	ConvertResponse(headers http.Header, body []byte) ([]byte, error)
}

// Forwarder proxies a request to a pod's endpoint for a given service
// type, with endpoint caching and one auto-refresh retry on connection
// failure.
type Forwarder struct {
	Client              *http.Client
	Endpoints            EndpointCatalog
	Converters           map[string]VersionConverter // keyed by service_type
	AutoRefreshEndpoint  bool
	Logger               log.Logger

	cache *lru.Cache[string, string] // podID+serviceType -> resolved base URL
}

// NewForwarder returns a Forwarder with a bounded endpoint cache.
func NewForwarder(client *http.Client, endpoints EndpointCatalog, autoRefresh bool, logger log.Logger) *Forwarder {
	cache, _ := lru.New[string, string](256)
	return &Forwarder{
		Client:              client,
		Endpoints:           endpoints,
		Converters:          map[string]VersionConverter{},
		AutoRefreshEndpoint: autoRefresh,
		Logger:              logger,
		cache:               cache,
	}
}

func cacheKey(podID, serviceType string) string {
	return podID + "/" + serviceType
}

// Do sends method to pod's endpoint for serviceType at urlPath, with body
// and headers converted for version compatibility if a converter is
// registered for serviceType. It never retries on application-layer
// (4xx/5xx body) responses; it retries exactly once, after refreshing the
// cached endpoint, on a connection failure, iff AutoRefreshEndpoint.
func (f *Forwarder) Do(ctx context.Context, p pod.Pod, serviceType, method, urlPath string, headers http.Header, body []byte) (status int, respBody []byte, err error) {
	if conv, ok := f.Converters[serviceType]; ok {
		body, err = conv.ConvertRequest(headers, body)
		if err != nil {
			return 0, nil, apierror.New(apierror.InvalidInput, "request conversion: %v", err)
		}
	}

	status, respBody, err = f.attempt(ctx, p, serviceType, method, urlPath, headers, body)
	if err == nil {
		if conv, ok := f.Converters[serviceType]; ok {
			respBody, err = conv.ConvertResponse(headers, respBody)
			if err != nil {
				return 0, nil, apierror.New(apierror.InvalidInput, "response conversion: %v", err)
			}
		}
		return status, respBody, nil
	}

	f.cache.Remove(cacheKey(p.PodID, serviceType))
	if !f.AutoRefreshEndpoint {
		return 0, nil, apierror.New(apierror.EndpointNotAvailable, "%v", err)
	}

	status, respBody, err = f.attempt(ctx, p, serviceType, method, urlPath, headers, body)
	if err != nil {
		return 0, nil, apierror.New(apierror.EndpointNotAvailable, "retry after endpoint refresh: %v", err)
	}
	if conv, ok := f.Converters[serviceType]; ok {
		respBody, err = conv.ConvertResponse(headers, respBody)
		if err != nil {
			return 0, nil, apierror.New(apierror.InvalidInput, "response conversion: %v", err)
		}
	}
	return status, respBody, nil
}

func (f *Forwarder) attempt(ctx context.Context, p pod.Pod, serviceType, method, urlPath string, headers http.Header, body []byte) (int, []byte, error) {
	base, ok := f.cache.Get(cacheKey(p.PodID, serviceType))
	if !ok {
		var err error
		base, err = f.Endpoints.Endpoint(ctx, p.PodID, serviceType)
		if err != nil {
			return 0, nil, err
		}
		f.cache.Add(cacheKey(p.PodID, serviceType), base)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+"/"+urlPath, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return 0, nil, err // connection failure: caller decides on refresh+retry
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// GetJSON is a convenience wrapper for handlers (and job handlers like
// pod_state_statistics) that just need a GET decoded into out.
func (f *Forwarder) GetJSON(ctx context.Context, p pod.Pod, urlPath string, out interface{}) error {
	status, body, err := f.Do(ctx, p, "compute", http.MethodGet, urlPath, nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return apierror.New(apierror.NotFound, "not found at pod %s: %s", p.PodName, urlPath)
	}
	if status >= 400 {
		return apierror.New(apierror.ServiceUnavailable, "pod %s returned %d for %s", p.PodName, status, urlPath)
	}
	return json.Unmarshal(body, out)
}

// AnnotateAZ stamps item's "az_name" field on a listed resource, so list
// responses show which availability zone backs each item.
func AnnotateAZ(item map[string]interface{}, azName string) map[string]interface{} {
	if item == nil {
		item = map[string]interface{}{}
	}
	item["az_name"] = azName
	return item
}
