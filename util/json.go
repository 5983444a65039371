// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package util

import (
	"bytes"
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// UnmarshalJSON parses the JSON encoded data and stores the result in the
// value pointed to by x, preserving numeric precision (json.Number) instead
// of collapsing everything to float64.
func UnmarshalJSON(bs []byte, x interface{}) error {
	return NewJSONDecoder(bytes.NewReader(bs)).Decode(x)
}

// NewJSONDecoder returns a new decoder that reads from r, with UseNumber
// enabled.
func NewJSONDecoder(r io.Reader) *json.Decoder {
	d := json.NewDecoder(r)
	d.UseNumber()
	return d
}

// MustUnmarshalJSON parses the JSON encoded data and returns the result. If
// the data cannot be decoded, this function panics. For test purposes.
func MustUnmarshalJSON(bs []byte) interface{} {
	var x interface{}
	if err := UnmarshalJSON(bs, &x); err != nil {
		panic(err)
	}
	return x
}

// MustMarshalJSON returns the JSON encoding of x. If the data cannot be
// encoded, this function panics. For test purposes.
func MustMarshalJSON(x interface{}) []byte {
	bs, err := json.Marshal(x)
	if err != nil {
		panic(err)
	}
	return bs
}

// Unmarshal decodes a YAML or JSON document into the value pointed to by v.
// JSON is a subset of YAML, so a single YAML decode handles both; config
// files may be written in either.
func Unmarshal(bs []byte, v interface{}) error {
	return yaml.Unmarshal(bs, v)
}
