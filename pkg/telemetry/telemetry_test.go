// Copyright 2022 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trio2o/trio2o/log"
)

func TestInitDisabledReturnsNoop(t *testing.T) {
	tp, shutdown, err := Init(context.Background(), Config{}, "gw-1")
	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSampleRatio(t *testing.T) {
	cases := map[float64]float64{
		0:   1,
		-5:  1,
		200: 1,
		50:  0.5,
		100: 1,
	}
	for in, want := range cases {
		assert.Equal(t, want, sampleRatio(in), "sampleRatio(%v)", in)
	}
}

func TestSetupLoggingDoesNotPanic(t *testing.T) {
	SetupLogging(log.NewLogger())
}
