// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package apierror defines the federation core's error taxonomy and the
// `{<type>: {message, code}}` envelope every handler wraps a failure in
// before it reaches a downstream client.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of failure. Kinds are stable identifiers used by
// callers to branch on error category; they are distinct from the wire-level
// Type, which groups several kinds under the same envelope key.
type Kind string

const (
	NotFound                 Kind = "not_found"
	EndpointNotAvailable      Kind = "endpoint_not_available"
	EndpointNotFound          Kind = "endpoint_not_found"
	Conflict                  Kind = "conflict"
	InvalidInput              Kind = "invalid_input"
	OverQuotaFileCount        Kind = "over_quota_file_count"
	OverQuotaFilePathLength   Kind = "over_quota_file_path_length"
	OverQuotaFileContentLength Kind = "over_quota_file_content_length"
	OverQuotaMetadataItems    Kind = "over_quota_metadata_items"
	PolicyNotAuthorized       Kind = "policy_not_authorized"
	ServiceUnavailable        Kind = "service_unavailable"
	PodNotFound               Kind = "pod_not_found"
	SchedulerPodFilterNotFound Kind = "scheduler_pod_filter_not_found"
)

// wireType is the JSON envelope key a Kind renders under. Several kinds
// share an envelope type: the taxonomy is finer-grained than the wire
// contract spec.md §6 promises to downstream clients.
func (k Kind) wireType() string {
	switch k {
	case NotFound, EndpointNotFound, PodNotFound:
		return "itemNotFound"
	case Conflict:
		return "conflictingRequest"
	case InvalidInput, OverQuotaFileCount, OverQuotaFilePathLength, OverQuotaFileContentLength, OverQuotaMetadataItems:
		return "badRequest"
	case PolicyNotAuthorized:
		return "forbidden"
	case EndpointNotAvailable, ServiceUnavailable, SchedulerPodFilterNotFound:
		return "internalServerError"
	default:
		return "Error"
	}
}

// HTTPStatus returns the status code a handler should respond with for k.
func (k Kind) HTTPStatus() int {
	switch k {
	case NotFound, EndpointNotFound, PodNotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case InvalidInput, OverQuotaFileCount, OverQuotaFilePathLength, OverQuotaFileContentLength, OverQuotaMetadataItems:
		return http.StatusBadRequest
	case PolicyNotAuthorized:
		return http.StatusForbidden
	case EndpointNotAvailable, ServiceUnavailable, SchedulerPodFilterNotFound:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the error value carried through the core: a Kind, a code (stable
// machine-readable sub-identifier, defaults to the Kind itself) and a
// human-readable message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New returns an *Error of kind with message formatted per fmt.Sprintf.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: string(kind), Message: fmt.Sprintf(format, args...)}
}

// WithCode returns a copy of e with Code overridden, for callers that report
// a finer-grained code than the Kind itself.
func (e *Error) WithCode(code string) *Error {
	cp := *e
	cp.Code = code
	return &cp
}

// As reports whether err is (or wraps) an *Error, mirroring errors.As
// without requiring callers to import "errors" for this common case.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// envelope is the `{<type>: {message, code}}` wire format.
type envelope map[string]envelopeBody

type envelopeBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// WriteHTTP renders err as the wire envelope and writes it to w with err's
// HTTP status. A nil or non-*Error err is rendered as an opaque
// internalServerError.
func WriteHTTP(w http.ResponseWriter, err error) {
	apiErr, ok := As(err)
	if !ok {
		apiErr = New(ServiceUnavailable, "%v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(envelope{
		apiErr.Kind.wireType(): {Message: apiErr.Message, Code: apiErr.Code},
	})
}
