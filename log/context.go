// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package log

import "context"

// RequestContext carries the identity and correlation fields that the API
// handlers, Scheduler, JobCoordinator and Forwarder all want attached to
// every log line for a given call: which tenant it's acting on behalf of,
// whether the caller is an admin (affinity tag admin API), and a request id
// for tracing a create→forward→route round trip through logs.
//
// Collapses what the teacher carries as three separate logging packages
// (log/, logging/, internal/logging) into one RequestContext living beside
// the Logger it's threaded alongside.
type RequestContext struct {
	RequestID string
	ProjectID string
	IsAdmin   bool
}

type requestContextKey struct{}

// NewContext returns a copy of parent with an associated RequestContext.
func NewContext(parent context.Context, val *RequestContext) context.Context {
	return context.WithValue(parent, requestContextKey{}, val)
}

// FromContext returns the RequestContext associated with ctx, if any.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	val, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return val, ok
}

// Fields renders the RequestContext (if any) as logrus Fields suitable for
// WithFields, so handlers don't need to unpack it by hand at every log
// call site.
func Fields(ctx context.Context) Fields {
	rctx, ok := FromContext(ctx)
	if !ok {
		return Fields{}
	}
	f := Fields{}
	if rctx.RequestID != "" {
		f["request_id"] = rctx.RequestID
	}
	if rctx.ProjectID != "" {
		f["project_id"] = rctx.ProjectID
	}
	if rctx.IsAdmin {
		f["admin"] = true
	}
	return f
}
