// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package apierror

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteHTTPEnvelope(t *testing.T) {
	cases := []struct {
		kind       Kind
		wantType   string
		wantStatus int
	}{
		{NotFound, "itemNotFound", http.StatusNotFound},
		{PodNotFound, "itemNotFound", http.StatusNotFound},
		{Conflict, "conflictingRequest", http.StatusConflict},
		{InvalidInput, "badRequest", http.StatusBadRequest},
		{PolicyNotAuthorized, "forbidden", http.StatusForbidden},
		{EndpointNotAvailable, "internalServerError", http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteHTTP(rec, New(tc.kind, "boom"))

		if rec.Code != tc.wantStatus {
			t.Fatalf("%s: expected status %d, got %d", tc.kind, tc.wantStatus, rec.Code)
		}

		var body map[string]envelopeBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if _, ok := body[tc.wantType]; !ok {
			t.Fatalf("%s: expected envelope key %q, got %v", tc.kind, tc.wantType, body)
		}
	}
}

func TestWriteHTTPOpaqueError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, errPlain("unexpected"))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for opaque error, got %d", rec.Code)
	}
}

type errPlain string

func (e errPlain) Error() string { return string(e) }

func TestWithCode(t *testing.T) {
	base := New(OverQuotaFileCount, "too many files")
	scoped := base.WithCode("over_quota.file_count")

	if base.Code == scoped.Code {
		t.Fatal("expected WithCode to not mutate the receiver")
	}
	if scoped.Code != "over_quota.file_count" {
		t.Fatalf("unexpected code: %s", scoped.Code)
	}
}
